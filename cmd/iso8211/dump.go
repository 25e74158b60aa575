package main

import (
	"errors"
	"io"

	ddf "github.com/beetlebugorg/iso8211/pkg/iso8211"
	"github.com/spf13/cobra"
)

func newDumpCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "dump <file>",
		Short: "Print the DDR and the decoded data records",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return dump(cmd.OutOrStdout(), args[0], limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "records", "n", 0, "Stop after this many records (0 for all)")
	return cmd
}

func dump(out io.Writer, path string, limit int) error {
	m, err := ddf.OpenWithOptions(path, ddf.OpenOptions{Logger: log})
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Dump(out); err != nil {
		return err
	}
	for n := 0; limit == 0 || n < limit; n++ {
		rec, err := m.ReadRecord()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := rec.Dump(out); err != nil {
			return err
		}
	}
	return nil
}
