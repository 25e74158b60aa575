package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	iso8211 "github.com/beetlebugorg/iso8211/pkg/v1"
	"github.com/spf13/cobra"
)

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index <file>",
		Short: "List the byte extent of every data record",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return listIndex(cmd.OutOrStdout(), args[0])
		},
	}
}

func newLocateCmd() *cobra.Command {
	var dumpRecord bool
	cmd := &cobra.Command{
		Use:   "locate <file> <offset>",
		Short: "Find the data record holding a byte offset",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			offset, err := parseOffset(args[1])
			if err != nil {
				return err
			}
			return locate(cmd.OutOrStdout(), args[0], offset, dumpRecord)
		},
	}
	cmd.Flags().BoolVarP(&dumpRecord, "dump", "d", false, "Dump the record found")
	return cmd
}

func openIndex(path string) (*iso8211.Index, error) {
	opts := iso8211.DefaultReaderOptions()
	opts.Logger = log
	return iso8211.BuildIndexWithOptions(path, opts)
}

func listIndex(out io.Writer, path string) error {
	idx, err := openIndex(path)
	if err != nil {
		return err
	}
	defer idx.Close()

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RECORD\tOFFSET\tSIZE\tLEADER\tFIELDS")
	for _, e := range idx.All() {
		fmt.Fprintln(w, extentRow(e))
	}
	return w.Flush()
}

func extentRow(e iso8211.RecordExtent) string {
	leader := "own"
	if e.DataOnly {
		leader = fmt.Sprintf("@%d", e.Base)
	}
	return fmt.Sprintf("%d\t%d\t%d\t%s\t%s", e.Ordinal, e.Offset, e.Size, leader, strings.Join(e.Tags, " "))
}

func locate(out io.Writer, path string, offset int64, dumpRecord bool) error {
	idx, err := openIndex(path)
	if err != nil {
		return err
	}
	defer idx.Close()

	e, ok := idx.Locate(offset)
	if !ok {
		return fmt.Errorf("%w %d in %s", ErrRecordNotFound, offset, path)
	}
	fmt.Fprintf(out, "record %d at %d (%d bytes): %s\n", e.Ordinal, e.Offset, e.Size, strings.Join(e.Tags, " "))
	if !dumpRecord {
		return nil
	}
	rec, err := idx.Record(e.Ordinal)
	if err != nil {
		return err
	}
	defer rec.Release()
	return rec.Dump(out)
}
