package iso8211

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// DefaultExtensions are the file extensions ExtractMetadataFromDir looks
// for when none are given: S-57 base cells and generic DDF files.
var DefaultExtensions = []string{".000", ".ddf"}

// FileMetadata is a summary of an ISO 8211 file.
//
// It is cheaper than Parse: records are read for their directories only and
// no field bytes are copied.
type FileMetadata struct {
	Path              string         // Path as given
	FileSize          int64          // File size in bytes
	ModTime           time.Time      // File modification time
	Leader            Leader         // DDR leader values
	FieldCount        int            // Field definitions in the DDR
	FirstRecordOffset int64          // Offset of the first data record
	RecordCount       int            // Data records
	TagCounts         map[string]int // Field occurrences per tag across all records
}

// ExtractMetadata reads the DDR and the record directories of a file.
//
// Example:
//
//	meta, err := iso8211.ExtractMetadata("/tmp/charts/US5MA22M.000")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%s: %d records, %d VRID fields\n",
//	    meta.Path, meta.RecordCount, meta.TagCounts["VRID"])
func ExtractMetadata(path string) (*FileMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}

	reader, err := NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("open ISO 8211 file: %w", err)
	}
	defer reader.Close()

	m := reader.Module()
	meta := &FileMetadata{
		Path:              path,
		FileSize:          info.Size(),
		ModTime:           info.ModTime(),
		Leader:            reader.Leader(),
		FieldCount:        m.FieldCount(),
		FirstRecordOffset: m.FirstRecordOffset(),
		TagCounts:         make(map[string]int),
	}

	for {
		rec, err := m.ReadRecord()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record %d: %w", meta.RecordCount, err)
		}
		meta.RecordCount++
		for _, f := range rec.Fields() {
			meta.TagCounts[f.Tag()]++
		}
	}
	return meta, nil
}

// ExtractMetadataFromDir scans a directory for ISO 8211 files and extracts
// metadata from each.
//
// Files are matched by extension, case-insensitively; with no extensions
// DefaultExtensions is used. Files that fail to parse are skipped and
// reported in the error slice.
//
// Example:
//
//	files, errs := iso8211.ExtractMetadataFromDir("/tmp/noaa_encs/ENC_ROOT")
//	fmt.Printf("Found %d files, %d errors\n", len(files), len(errs))
func ExtractMetadataFromDir(root string, exts ...string) ([]*FileMetadata, []error) {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}

	var files []*FileMetadata
	var errs []error

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !matchExt(path, exts) {
			return nil
		}

		meta, err := ExtractMetadata(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			return nil // Continue walking
		}
		files = append(files, meta)
		return nil
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("walk directory: %w", err))
	}

	return files, errs
}

// FindFiles returns the paths under root with one of the extensions,
// in lexical order.
func FindFiles(root string, exts ...string) ([]string, error) {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && matchExt(path, exts) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return paths, nil
}

func matchExt(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return slices.ContainsFunc(exts, func(e string) bool {
		return strings.ToLower(e) == ext
	})
}
