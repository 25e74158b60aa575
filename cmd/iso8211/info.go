package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	iso8211 "github.com/beetlebugorg/iso8211/pkg/v1"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <file>...",
		Short: "Summarize the leader, fields and records of files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, path := range args {
				meta, err := iso8211.ExtractMetadata(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				printMetadata(out, meta)
			}
			return nil
		},
	}
}

func printMetadata(out io.Writer, meta *iso8211.FileMetadata) {
	fmt.Fprintf(out, "%s\n", meta.Path)
	fmt.Fprintf(out, "  size:           %d bytes\n", meta.FileSize)
	fmt.Fprintf(out, "  leader:         level %c, version %c, charset %q, entry %d/%d/%d\n",
		meta.Leader.InterchangeLevel, meta.Leader.VersionNumber, meta.Leader.ExtendedCharSet,
		meta.Leader.SizeFieldLength, meta.Leader.SizeFieldPos, meta.Leader.SizeFieldTag)
	fmt.Fprintf(out, "  field defns:    %d\n", meta.FieldCount)
	fmt.Fprintf(out, "  first record:   %d\n", meta.FirstRecordOffset)
	fmt.Fprintf(out, "  records:        %d\n", meta.RecordCount)

	tags := make([]string, 0, len(meta.TagCounts))
	for tag := range meta.TagCounts {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		fmt.Fprintf(out, "    %-6s %d\n", tag, meta.TagCounts[tag])
	}
}

func newScanCmd() *cobra.Command {
	var (
		workers int
		cacheMB int
		exts    []string
	)
	cmd := &cobra.Command{
		Use:   "scan <dir>...",
		Short: "Parse every ISO 8211 file under one or more directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cache *iso8211.FileCache
			if cacheMB > 0 {
				cache = iso8211.NewFileCache(int64(cacheMB) << 20)
			}
			return scan(cmd.Context(), cmd.OutOrStdout(), args, workers, exts, cache)
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", runtime.NumCPU(), "Files parsed at once")
	cmd.Flags().IntVar(&cacheMB, "cache", 0, "Keep parsed files in a cache of this many MiB, so files reached from overlapping directories are parsed once")
	cmd.Flags().StringSliceVar(&exts, "ext", iso8211.DefaultExtensions, "File extensions to parse")
	return cmd
}

func scan(ctx context.Context, out io.Writer, roots []string, workers int, exts []string, cache *iso8211.FileCache) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var paths []string
	for _, root := range roots {
		found, err := iso8211.FindFiles(root, exts...)
		if err != nil {
			return err
		}
		for _, path := range found {
			// one key per file, however the root was spelled
			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}
			paths = append(paths, abs)
		}
	}

	opts := iso8211.DefaultLoadOptions()
	opts.Workers = workers
	opts.ErrorLog = os.Stderr
	opts.Reader.Logger = log
	opts.Cache = cache
	opts.Progress = func(loaded, total int) {
		log.Debug("scan progress", zap.Int("loaded", loaded), zap.Int("total", total))
	}

	files, errs := iso8211.ParseFiles(ctx, paths, opts)
	records := 0
	for _, f := range files {
		records += len(f.Records)
		fmt.Fprintf(out, "%s\t%d records\n", f.Path, len(f.Records))
	}
	fmt.Fprintf(out, "%d files, %d records, %d failed\n", len(files), records, len(errs))
	if cache != nil {
		stats := cache.Stats()
		fmt.Fprintf(out, "cache: %d hits, %d misses, %d bytes\n", stats.Hits, stats.Misses, stats.UsedMemory)
	}
	return nil
}
