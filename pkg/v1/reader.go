package iso8211

import (
	"errors"
	"fmt"
	"io"

	ddf "github.com/beetlebugorg/iso8211/pkg/iso8211"
	"go.uber.org/zap"
)

// Reader reads the data records of one ISO 8211 file.
//
// Example:
//
//	reader, err := iso8211.NewReader("US5MA22M.000")
//	if err != nil {
//	    return err
//	}
//	defer reader.Close()
//
//	for {
//	    record, err := reader.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(record.Offset, record.Tags)
//	}
type Reader struct {
	path   string
	module *ddf.Module
	filter map[string]bool
	log    *zap.Logger
}

// ISO8211File is a parsed file: the DDR summary and every data record.
type ISO8211File struct {
	Path       string
	Leader     Leader
	FieldDefns []FieldDefnInfo
	Records    []*DataRecord
}

// Leader holds the DDR leader values of a file.
type Leader struct {
	InterchangeLevel       byte
	LeaderIden             byte
	CodeExtensionIndicator byte
	VersionNumber          byte
	AppIndicator           byte
	FieldControlLength     int
	ExtendedCharSet        string
	SizeFieldLength        int
	SizeFieldPos           int
	SizeFieldTag           int
}

// FieldDefnInfo summarizes one field definition of the DDR.
type FieldDefnInfo struct {
	Tag            string
	Name           string
	ArrayDescr     string
	FormatControls string
	StructCode     string
	TypeCode       string
	Repeating      bool
	FixedWidth     int // 0 if any subfield is variable
	Subfields      []SubfieldInfo
}

// SubfieldInfo is the name and format of one subfield.
type SubfieldInfo struct {
	Name   string
	Format string
}

// DataRecord is one data record copied out of the file.
type DataRecord struct {
	Offset int64    // file offset of the record
	Tags   []string // field tags in directory order

	// Fields holds the first occurrence of each tag, field terminator removed.
	Fields map[string][]byte

	// Occurrences holds every occurrence of each tag in directory order.
	Occurrences map[string][][]byte

	record *ddf.Record
}

// NewReader opens an ISO 8211 file with default options.
func NewReader(path string) (*Reader, error) {
	return NewReaderWithOptions(path, DefaultReaderOptions())
}

// NewReaderWithOptions opens an ISO 8211 file and decodes its DDR.
func NewReaderWithOptions(path string, opts ReaderOptions) (*Reader, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	m, err := ddf.OpenWithOptions(path, ddf.OpenOptions{
		Quiet:             true,
		Logger:            log,
		SkipBadFieldDefns: opts.SkipBadFieldDefns,
	})
	if err != nil {
		return nil, err
	}

	r := &Reader{path: path, module: m, log: log}
	if len(opts.TagFilter) > 0 {
		r.filter = make(map[string]bool, len(opts.TagFilter))
		for _, tag := range opts.TagFilter {
			r.filter[tag] = true
		}
	}
	return r, nil
}

// Module returns the underlying record engine module.
func (r *Reader) Module() *ddf.Module {
	return r.module
}

// Leader returns the DDR leader values.
func (r *Reader) Leader() Leader {
	return leaderOf(r.module)
}

func leaderOf(m *ddf.Module) Leader {
	return Leader{
		InterchangeLevel:       m.InterchangeLevel(),
		LeaderIden:             m.LeaderIden(),
		CodeExtensionIndicator: m.CodeExtensionIndicator(),
		VersionNumber:          m.VersionNumber(),
		AppIndicator:           m.AppIndicator(),
		FieldControlLength:     m.FieldControlLength(),
		ExtendedCharSet:        m.ExtendedCharSet(),
		SizeFieldLength:        m.SizeFieldLength(),
		SizeFieldPos:           m.SizeFieldPos(),
		SizeFieldTag:           m.SizeFieldTag(),
	}
}

// FieldDefns summarizes the field definitions in DDR order.
func (r *Reader) FieldDefns() []FieldDefnInfo {
	defns := r.module.FieldDefns()
	infos := make([]FieldDefnInfo, 0, len(defns))
	for _, d := range defns {
		info := FieldDefnInfo{
			Tag:            d.Tag(),
			Name:           d.Name(),
			ArrayDescr:     d.ArrayDescr(),
			FormatControls: d.FormatControls(),
			StructCode:     d.DataStructCode().String(),
			TypeCode:       d.DataTypeCode().String(),
			Repeating:      d.IsRepeating(),
			FixedWidth:     d.FixedWidth(),
		}
		for _, sf := range d.Subfields() {
			info.Subfields = append(info.Subfields, SubfieldInfo{Name: sf.Name(), Format: sf.Format()})
		}
		infos = append(infos, info)
	}
	return infos
}

// Next returns the next data record, or io.EOF after the last one.
func (r *Reader) Next() (*DataRecord, error) {
	rec, err := r.module.ReadRecord()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read record: %w", err)
	}
	return r.copyRecord(rec), nil
}

func (r *Reader) copyRecord(rec *ddf.Record) *DataRecord {
	clone := rec.Clone()
	dr := &DataRecord{
		Offset:      rec.Offset(),
		Tags:        make([]string, 0, clone.FieldCount()),
		Fields:      make(map[string][]byte),
		Occurrences: make(map[string][][]byte),
		record:      clone,
	}
	for _, f := range clone.Fields() {
		tag := f.Tag()
		dr.Tags = append(dr.Tags, tag)
		if r.filter != nil && !r.filter[tag] {
			continue
		}
		data := trimTerminator(f.Data())
		if _, ok := dr.Fields[tag]; !ok {
			dr.Fields[tag] = data
		}
		dr.Occurrences[tag] = append(dr.Occurrences[tag], data)
	}
	return dr
}

// trimTerminator drops the field terminator, and the NUL following it in
// double-byte fields.
func trimTerminator(data []byte) []byte {
	n := len(data)
	switch {
	case n >= 2 && data[n-2] == ddf.FieldTerminator && data[n-1] == 0:
		return data[:n-2]
	case n >= 1 && data[n-1] == ddf.FieldTerminator:
		return data[:n-1]
	}
	return data
}

// ReadAll rewinds to the first data record and returns all of them.
func (r *Reader) ReadAll() ([]*DataRecord, error) {
	if err := r.module.Rewind(); err != nil {
		return nil, err
	}
	var records []*DataRecord
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}

// Parse reads the whole file.
func (r *Reader) Parse() (*ISO8211File, error) {
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	r.log.Debug("parsed file", zap.String("path", r.path), zap.Int("records", len(records)))
	return &ISO8211File{
		Path:       r.path,
		Leader:     r.Leader(),
		FieldDefns: r.FieldDefns(),
		Records:    records,
	}, nil
}

// Close closes the file. Records already returned stay usable.
func (r *Reader) Close() error {
	return r.module.Close()
}

// ParseFile opens, parses and closes one file.
func ParseFile(path string, opts ReaderOptions) (*ISO8211File, error) {
	reader, err := NewReaderWithOptions(path, opts)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return reader.Parse()
}

// Record returns the record as held by the engine, for subfield access
// beyond the helpers below.
func (d *DataRecord) Record() *ddf.Record {
	return d.record
}

// Int decodes the first value of an integer subfield.
//
// Example:
//
//	rcid, err := record.Int("FRID", "RCID")
func (d *DataRecord) Int(tag, subfield string) (int, error) {
	return d.record.GetIntSubfield(tag, 0, subfield, 0)
}

// Float decodes the first value of a floating point subfield.
func (d *DataRecord) Float(tag, subfield string) (float64, error) {
	return d.record.GetFloatSubfield(tag, 0, subfield, 0)
}

// Text returns the first value of a subfield as text.
func (d *DataRecord) Text(tag, subfield string) (string, error) {
	return d.record.GetStringSubfield(tag, 0, subfield, 0)
}

// Filter returns the records that carry a field with the given tag.
func (f *ISO8211File) Filter(tag string) []*DataRecord {
	var out []*DataRecord
	for _, rec := range f.Records {
		for _, t := range rec.Tags {
			if t == tag {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}
