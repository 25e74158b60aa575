package iso8211

import "go.uber.org/zap"

// ReaderOptions configures how files are opened and which fields are kept.
type ReaderOptions struct {
	// Logger receives decode warnings from the record engine.
	// Default: zap.NewNop()
	Logger *zap.Logger

	// SkipBadFieldDefns drops DDR field descriptions that fail to decode
	// instead of failing NewReader.
	SkipBadFieldDefns bool

	// TagFilter limits DataRecord.Fields and Occurrences to these tags.
	// Empty keeps every field. DataRecord.Tags always lists the full
	// directory.
	TagFilter []string
}

// DefaultReaderOptions returns default options.
func DefaultReaderOptions() ReaderOptions {
	return ReaderOptions{
		Logger:            zap.NewNop(),
		SkipBadFieldDefns: false,
		TagFilter:         nil,
	}
}
