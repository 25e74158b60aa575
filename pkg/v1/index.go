package iso8211

import (
	"errors"
	"fmt"
	"io"
	"sort"

	ddf "github.com/beetlebugorg/iso8211/pkg/iso8211"
	"github.com/dhconnelly/rtreego"
)

// Index keeps the byte extent of every data record of a file so records
// can be read by ordinal or by file offset.
//
// Extents live in a one-dimensional R-tree keyed on file offset. Offset
// queries are O(log N) with the R-tree, compared to O(N) with a linear scan.
//
// The Index keeps its file open until Close.
//
// Example:
//
//	idx, err := iso8211.BuildIndex("US5MA22M.000")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer idx.Close()
//
//	// Which record holds byte 81234?
//	extent, ok := idx.Locate(81234)
type Index struct {
	module  *ddf.Module
	extents []RecordExtent
	rtree   *rtreego.Rtree
}

// RecordExtent is where one data record sits in the file.
type RecordExtent struct {
	Ordinal  int      // position among the data records, from 0
	Offset   int64    // file offset of the record
	Size     int64    // bytes on disk, leader included
	Tags     []string // field tags in directory order
	DataOnly bool     // stored without leader after an 'R' record
	Base     int64    // offset of the leader-bearing record a DataOnly record follows
}

// Bounds method for rtreego.Spatial interface.
// Maps the byte range [Offset, Offset+Size) to a one-dimensional rectangle.
func (e RecordExtent) Bounds() rtreego.Rect {
	rect, _ := rtreego.NewRect(rtreego.Point{float64(e.Offset)}, []float64{float64(e.Size)})
	return rect
}

// End returns the offset just past the record.
func (e RecordExtent) End() int64 {
	return e.Offset + e.Size
}

// BuildIndex scans a file with default options and indexes its records.
func BuildIndex(path string) (*Index, error) {
	return BuildIndexWithOptions(path, DefaultReaderOptions())
}

// BuildIndexWithOptions scans a file and indexes its records.
func BuildIndexWithOptions(path string, opts ReaderOptions) (*Index, error) {
	reader, err := NewReaderWithOptions(path, opts)
	if err != nil {
		return nil, err
	}
	m := reader.Module()

	idx := &Index{
		module: m,
		rtree:  rtreego.NewTree(1, 25, 50),
	}
	base := int64(-1)
	for {
		rec, err := m.ReadRecord()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("index %s: %w", path, err)
		}
		end, err := m.Tell()
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("index %s: %w", path, err)
		}

		extent := RecordExtent{
			Ordinal:  len(idx.extents),
			Offset:   rec.Offset(),
			Size:     end - rec.Offset(),
			DataOnly: rec.DataOnly(),
			Base:     base,
		}
		if !rec.DataOnly() {
			base = rec.Offset()
			extent.Base = base
		}
		for _, f := range rec.Fields() {
			extent.Tags = append(extent.Tags, f.Tag())
		}
		idx.extents = append(idx.extents, extent)
		idx.rtree.Insert(extent)
	}
	return idx, nil
}

// Len returns the number of indexed records.
func (idx *Index) Len() int {
	return len(idx.extents)
}

// Extent returns the extent of the n-th record.
func (idx *Index) Extent(n int) (RecordExtent, bool) {
	if n < 0 || n >= len(idx.extents) {
		return RecordExtent{}, false
	}
	return idx.extents[n], true
}

// All returns every extent in file order.
func (idx *Index) All() []RecordExtent {
	return idx.extents
}

// Record reads the n-th record and returns a clone the caller owns.
// Release it when done.
func (idx *Index) Record(n int) (*ddf.Record, error) {
	extent, ok := idx.Extent(n)
	if !ok {
		return nil, fmt.Errorf("%w: record %d of %d", ddf.ErrRange, n, len(idx.extents))
	}
	if extent.DataOnly {
		// The reused leader and directory come from the base record.
		if _, err := idx.module.ReadRecordAt(extent.Base); err != nil {
			return nil, err
		}
		if err := idx.module.RewindTo(extent.Offset); err != nil {
			return nil, err
		}
		rec, err := idx.module.ReadRecord()
		if err != nil {
			return nil, err
		}
		return rec.Clone(), nil
	}
	rec, err := idx.module.ReadRecordAt(extent.Offset)
	if err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// Locate returns the extent of the record containing the byte at offset.
func (idx *Index) Locate(offset int64) (RecordExtent, bool) {
	if offset < 0 {
		return RecordExtent{}, false
	}
	rect, err := rtreego.NewRect(rtreego.Point{float64(offset)}, []float64{1})
	if err != nil {
		return RecordExtent{}, false
	}
	for _, s := range idx.rtree.SearchIntersect(rect) {
		e := s.(RecordExtent)
		if e.Offset <= offset && offset < e.End() {
			return e, true
		}
	}
	return RecordExtent{}, false
}

// Overlapping returns the extents of records with any byte in
// [start, end), sorted by offset.
//
// Example:
//
//	// Records touched by a damaged block
//	damaged := idx.Overlapping(40960, 45056)
func (idx *Index) Overlapping(start, end int64) []RecordExtent {
	if end <= start {
		return nil
	}
	rect, err := rtreego.NewRect(rtreego.Point{float64(start)}, []float64{float64(end - start)})
	if err != nil {
		return nil
	}

	var result []RecordExtent
	for _, s := range idx.rtree.SearchIntersect(rect) {
		e := s.(RecordExtent)
		// R-tree rectangles touching at an edge intersect; byte ranges do not.
		if e.Offset < end && e.End() > start {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Offset < result[j].Offset
	})
	return result
}

// WithTag returns the extents of records carrying a field with tag.
func (idx *Index) WithTag(tag string) []RecordExtent {
	var result []RecordExtent
	for _, e := range idx.extents {
		for _, t := range e.Tags {
			if t == tag {
				result = append(result, e)
				break
			}
		}
	}
	return result
}

// Close closes the indexed file.
func (idx *Index) Close() error {
	return idx.module.Close()
}
