// Command iso8211 inspects, indexes, exports and authors ISO 8211 files.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	ErrInvalidNumberOfArguments = errors.New("invalid number of arguments")
	ErrInvalidOffset            = errors.New("invalid offset")
	ErrRecordNotFound           = errors.New("no record at offset")
)

// --verbose
var verbose bool

var log = zap.NewNop()

func main() {
	if err := execRootCmd(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func execRootCmd(args []string, out io.Writer) error {
	rootCmd := &cobra.Command{
		Use:           "iso8211",
		Short:         "Inspect and author ISO 8211 files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLogger(verbose)
			if err != nil {
				return err
			}
			log = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = log.Sync()
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log decode details")
	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)

	rootCmd.AddCommand(
		newDumpCmd(),
		newExportCmd(),
		newCreateCmd(),
		newIndexCmd(),
		newLocateCmd(),
		newInfoCmd(),
		newScanCmd(),
	)
	return rootCmd.Execute()
}

// newLogger logs at debug level to stderr with --verbose, else only
// warnings and errors.
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	cfg.Encoding = "console"
	return cfg.Build()
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return ErrInvalidNumberOfArguments
		}
		return nil
	}
}

func parseOffset(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidOffset, s)
	}
	return n, nil
}
