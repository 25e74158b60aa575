package main

import (
	"fmt"
	"io"
	"os"

	"github.com/beetlebugorg/iso8211/internal/document"
	ddf "github.com/beetlebugorg/iso8211/pkg/iso8211"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func newExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Write a file as a YAML document",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" || output == "-" {
				return export(cmd.OutOrStdout(), args[0])
			}
			return exportFile(output, args[0])
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "YAML output file (default stdout)")
	return cmd
}

func exportFile(output, path string) (err error) {
	f, err := os.Create(output)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()
	return export(f, path)
}

func export(out io.Writer, path string) error {
	m, err := ddf.OpenWithOptions(path, ddf.OpenOptions{Logger: log})
	if err != nil {
		return err
	}
	defer m.Close()

	doc, err := document.Export(m)
	if err != nil {
		return err
	}
	log.Debug("exported", zap.String("file", path), zap.Int("records", len(doc.Records)))
	return doc.Encode(out)
}

func newCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <document.yaml> <file>",
		Short: "Author an ISO 8211 file from a YAML document",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return create(cmd.OutOrStdout(), args[0], args[1])
		},
	}
}

func create(out io.Writer, docPath, path string) error {
	f, err := os.Open(docPath)
	if err != nil {
		return err
	}
	defer f.Close()

	doc, err := document.Decode(f)
	if err != nil {
		return err
	}
	if err := document.CreateFile(path, doc, log); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s: %d fields, %d records\n", path, len(doc.Fields), len(doc.Records))
	return nil
}
