package iso8211

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// LoadOptions controls parallel parsing and error handling.
type LoadOptions struct {
	// Parallel enables concurrent parsing.
	// When true, files are parsed by multiple goroutines, one Module each.
	Parallel bool

	// Workers specifies the number of parallel parsers.
	// If 0, defaults to runtime.NumCPU().
	// Only used when Parallel is true.
	Workers int

	// SkipErrors causes parsing to continue when individual files fail.
	// Failed files are skipped and errors are collected.
	// When false, the first error stops parsing and is returned.
	SkipErrors bool

	// Progress is an optional callback for tracking progress.
	// Called after each file is parsed (successfully or with error).
	// Parameters: (loaded, total) where loaded is count of files processed so far.
	Progress func(loaded, total int)

	// ErrorLog is an optional writer for detailed error reporting.
	// Each parse error is written here with the file path and error details.
	ErrorLog io.Writer

	// Reader configures how each file is opened.
	Reader ReaderOptions

	// Cache, when set, is consulted before parsing and filled after.
	Cache *FileCache
}

// DefaultLoadOptions returns load options with sensible defaults.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		Parallel:   true,
		Workers:    runtime.NumCPU(),
		SkipErrors: true,
		Progress:   nil,
		ErrorLog:   nil,
		Reader:     DefaultReaderOptions(),
		Cache:      nil,
	}
}

// ParseFiles parses many files, in parallel when opts.Parallel is set.
//
// Results keep the order of paths; failed files are left out. With
// SkipErrors the per-file errors are returned alongside the results,
// otherwise the first error cancels the rest and is returned alone.
//
// Example:
//
//	files, errs := iso8211.ParseFiles(ctx, paths, iso8211.LoadOptions{
//	    Parallel:   true,
//	    Workers:    8,
//	    SkipErrors: true,
//	    Progress: func(loaded, total int) {
//	        fmt.Printf("\rParsing: %d/%d", loaded, total)
//	    },
//	    ErrorLog: os.Stderr,
//	})
//
//	if len(errs) > 0 {
//	    fmt.Printf("\nSkipped %d files due to errors\n", len(errs))
//	}
func ParseFiles(ctx context.Context, paths []string, opts LoadOptions) ([]*ISO8211File, []error) {
	if len(paths) == 0 {
		return []*ISO8211File{}, nil
	}

	if !opts.Parallel {
		return parseFilesSerial(ctx, paths, opts)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	results := make([]*ISO8211File, len(paths))
	var (
		mu     sync.Mutex
		errs   []error
		loaded int
	)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			file, err := loadFile(path, opts)

			mu.Lock()
			defer mu.Unlock()
			loaded++
			if opts.Progress != nil {
				opts.Progress(loaded, len(paths))
			}
			if err != nil {
				err = fmt.Errorf("%s: %w", path, err)
				if opts.ErrorLog != nil {
					fmt.Fprintf(opts.ErrorLog, "Error parsing file: %v\n", err)
				}
				if !opts.SkipErrors {
					return err
				}
				errs = append(errs, err)
				return nil
			}
			results[i] = file
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, []error{err}
	}
	return compact(results), errs
}

// parseFilesSerial parses files one at a time (fallback when Parallel=false).
func parseFilesSerial(ctx context.Context, paths []string, opts LoadOptions) ([]*ISO8211File, []error) {
	files := make([]*ISO8211File, 0, len(paths))
	var errs []error

	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, []error{err}
		}
		if opts.Progress != nil {
			opts.Progress(i, len(paths))
		}

		file, err := loadFile(path, opts)
		if err != nil {
			err = fmt.Errorf("%s: %w", path, err)
			if opts.ErrorLog != nil {
				fmt.Fprintf(opts.ErrorLog, "Error parsing file: %v\n", err)
			}
			if !opts.SkipErrors {
				return nil, []error{err}
			}
			errs = append(errs, err)
			continue
		}
		files = append(files, file)
	}

	// Final progress callback
	if opts.Progress != nil {
		opts.Progress(len(paths), len(paths))
	}

	return files, errs
}

func loadFile(path string, opts LoadOptions) (*ISO8211File, error) {
	if opts.Cache == nil {
		return ParseFile(path, opts.Reader)
	}
	return opts.Cache.Get(path, func() (*ISO8211File, error) {
		return ParseFile(path, opts.Reader)
	})
}

func compact(files []*ISO8211File) []*ISO8211File {
	out := make([]*ISO8211File, 0, len(files))
	for _, f := range files {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}
