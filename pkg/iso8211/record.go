package iso8211

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"

	"go.uber.org/zap"
)

const (
	// Sanity limits on leader values of data records.
	maxRecordLength    = 100000000
	maxFieldAreaStart  = 100000
	maxVariantFields   = 1000
	defaultSizeFieldLP = 5
)

// Record is a data record: a directory and the field occurrences it
// describes. Records come from Module.ReadRecord, Clone or NewRecord.
//
// The record returned by ReadRecord belongs to the Module and is
// overwritten by the next read. Clones own their bytes and survive the
// Module; after Close they can still be read but not written.
type Record struct {
	module *Module

	reuseHeader bool
	dataOnly    bool // read without a leader after an 'R' record
	fieldOffset int  // start of the field area within data

	sizeFieldTag    int
	sizeFieldPos    int
	sizeFieldLength int

	data   []byte // directory plus field area, leader excluded
	fields []*Field

	isClone    bool
	offset     int64 // file offset the record was read from, -1 if none
	onDiskSize int
}

// NewRecord returns an empty record for authoring on m.
func NewRecord(m *Module) *Record {
	r := &Record{
		module:          m,
		sizeFieldTag:    4,
		sizeFieldPos:    defaultSizeFieldLP,
		sizeFieldLength: defaultSizeFieldLP,
		offset:          -1,
	}
	if m != nil {
		r.sizeFieldTag = m.sizeFieldTag
	}
	return r
}

func (r *Record) logger() *zap.Logger {
	if r.module != nil {
		return r.module.log
	}
	return zap.NewNop()
}

// Read reads the next record from the Module's file. It returns io.EOF at
// the end of the file, including trailing '^' padding.
func (r *Record) Read() error {
	if r.module == nil || r.module.closed {
		return ErrClosed
	}
	if !r.reuseHeader {
		err := r.readHeader()
		if err != nil && !errors.Is(err, io.EOF) {
			r.logger().Error("reading record failed", zap.Error(err))
			r.Clear()
		}
		return err
	}

	// Leader and directory repeat from the previous record: only the field
	// area is stored.
	f := r.module.f
	off, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	area := r.data[r.fieldOffset:]
	n, err := io.ReadFull(f, area)
	switch {
	case n == 0 && errors.Is(err, io.EOF):
		return io.EOF
	case n > 0 && area[0] == '^':
		return io.EOF
	case err != nil:
		r.logger().Error("data record is short", zap.Int64("offset", off), zap.Error(err))
		r.Clear()
		return formatErrorf("", off, "data record is short (%d of %d bytes): %v", n, len(area), err)
	}
	r.offset = off
	r.dataOnly = true
	r.onDiskSize = len(area)
	return nil
}

func (r *Record) readHeader() error {
	r.Clear()
	f := r.module.f

	off, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	leader := make([]byte, LeaderSize)
	n, err := io.ReadFull(f, leader)
	switch {
	case n == 0 && errors.Is(err, io.EOF):
		return io.EOF
	case n > 0 && leader[0] == '^':
		// padding after the last record
		return io.EOF
	case err != nil:
		return formatErrorf("", off, "leader is short (%d bytes)", n)
	}
	r.offset = off

	recLength := ScanInt(leader[0:], 5)
	fieldAreaStart := ScanInt(leader[12:], 5)
	for _, i := range []int{20, 21, 23} {
		if leader[i] < '1' || leader[i] > '9' {
			return formatErrorf("", off, "record leader appears to be corrupt (entry size %q)", leader[i])
		}
	}
	r.sizeFieldLength = int(leader[20] - '0')
	r.sizeFieldPos = int(leader[21] - '0')
	r.sizeFieldTag = int(leader[23] - '0')
	if leader[6] == 'R' {
		r.reuseHeader = true
	}
	r.fieldOffset = fieldAreaStart - LeaderSize

	if ((recLength <= LeaderSize || recLength > maxRecordLength) && recLength != 0) ||
		fieldAreaStart < LeaderSize || fieldAreaStart > maxFieldAreaStart {
		return formatErrorf("", off, "data record appears to be corrupt (length %d, field area %d)",
			recLength, fieldAreaStart)
	}

	if recLength == 0 {
		if err := r.readVariantBody(off); err != nil {
			return err
		}
	} else {
		r.data = make([]byte, recLength-LeaderSize)
		if n, err := io.ReadFull(f, r.data); err != nil {
			return formatErrorf("", off, "data record is short (%d of %d bytes)", n, len(r.data))
		}
		// Some producers undercount the record length; read on until the
		// record ends with a field terminator.
		for !endsWithTerminator(r.data) {
			var b [1]byte
			if _, err := io.ReadFull(f, b[:]); err != nil {
				return formatErrorf("", off, "data record is short, no closing field terminator")
			}
			r.data = append(r.data, b[0])
			r.logger().Debug("record extended past its leader length", zap.Int64("offset", off))
		}
	}
	if r.fieldOffset >= len(r.data) {
		return formatErrorf("", off, "field area start %d beyond record of %d bytes", fieldAreaStart, len(r.data)+LeaderSize)
	}
	if err := r.parseDirectory(); err != nil {
		return err
	}
	end, err := f.Seek(0, io.SeekCurrent)
	if err == nil {
		r.onDiskSize = int(end - off)
	}
	return nil
}

func endsWithTerminator(data []byte) bool {
	n := len(data)
	return n > 0 && (data[n-1] == FieldTerminator || (n > 1 && data[n-2] == FieldTerminator))
}

// readVariantBody reads a record whose leader length is zero (ISO 8211
// Annex C.1.5.1): the directory is read entry by entry until the field
// terminator and each field is then read by its directory length.
func (r *Record) readVariantBody(off int64) error {
	f := r.module.f
	width := r.sizeFieldLength + r.sizeFieldPos + r.sizeFieldTag
	var dir []byte
	count := 0
	back := 0
	for {
		entry := make([]byte, width)
		n, err := io.ReadFull(f, entry)
		if n > 0 && entry[0] == FieldTerminator {
			// only the terminator belongs to the directory
			back = n - 1
			dir = append(dir, FieldTerminator)
			break
		}
		if err != nil {
			return formatErrorf("", off, "directory is short")
		}
		dir = append(dir, entry...)
		count++
		if count == maxVariantFields {
			return formatErrorf("", off, "too many fields in record")
		}
	}
	if back > 0 {
		if _, err := f.Seek(int64(-back), io.SeekCurrent); err != nil {
			return err
		}
	}

	data := dir
	for i := 0; i < count; i++ {
		length := ScanInt(dir[i*width+r.sizeFieldTag:], r.sizeFieldLength)
		if length < 0 {
			return formatErrorf(string(dir[i*width:i*width+r.sizeFieldTag]), off, "negative field length")
		}
		// bounded read: a short file ends it before the directory length is allocated
		field, err := io.ReadAll(io.LimitReader(f, int64(length)))
		if err != nil || len(field) != length {
			return formatErrorf(string(dir[i*width:i*width+r.sizeFieldTag]), off, "field data is short")
		}
		data = append(data, field...)
	}
	r.data = data
	return nil
}

// parseDirectory builds the field views from the directory in r.data.
func (r *Record) parseDirectory() error {
	width := r.sizeFieldLength + r.sizeFieldPos + r.sizeFieldTag
	count := 0
	for i := 0; i+width <= r.fieldOffset; i += width {
		if r.data[i] == FieldTerminator {
			break
		}
		count++
	}

	r.fields = make([]*Field, 0, count)
	for i := 0; i < count; i++ {
		entry := r.data[i*width:]
		tag := string(entry[:r.sizeFieldTag])
		length := ScanInt(entry[r.sizeFieldTag:], r.sizeFieldLength)
		pos := ScanInt(entry[r.sizeFieldTag+r.sizeFieldLength:], r.sizeFieldPos)

		defn := r.module.FindFieldDefn(tag)
		if defn == nil {
			return formatErrorf(tag, r.offset, "undefined field encountered in data record")
		}
		start := r.fieldOffset + pos
		if pos < 0 || length < 0 || start+length > len(r.data) {
			return formatErrorf(tag, r.offset, "not enough bytes to initialize field (pos %d, length %d)", pos, length)
		}
		r.fields = append(r.fields, &Field{defn: defn, buf: &r.data, offset: start, size: length})
	}
	return nil
}

// Clear drops the record's contents and leader reuse state.
func (r *Record) Clear() {
	r.fields = nil
	r.data = nil
	r.reuseHeader = false
	r.dataOnly = false
	r.fieldOffset = 0
	r.onDiskSize = 0
}

// Module returns the owning module, nil once a clone is orphaned.
func (r *Record) Module() *Module { return r.module }

// Offset returns the file offset the record was last read from or written
// to, or -1.
func (r *Record) Offset() int64 { return r.offset }

// IsClone reports whether the record was made by Clone.
func (r *Record) IsClone() bool { return r.isClone }

// ReuseHeader reports whether the record was read with, or will be written
// with, an 'R' leader.
func (r *Record) ReuseHeader() bool { return r.reuseHeader }

// DataOnly reports whether the record was stored without leader and
// directory, following an 'R' record.
func (r *Record) DataOnly() bool { return r.dataOnly }

// SetReuseHeader asks Write to emit an 'R' leader. Every record written
// after it must keep the same directory.
func (r *Record) SetReuseHeader(reuse bool) { r.reuseHeader = reuse }

// DataSize returns the size of directory plus field area.
func (r *Record) DataSize() int { return len(r.data) }

// Data returns the directory and field area bytes.
func (r *Record) Data() []byte { return r.data }

// FieldCount returns the number of field occurrences.
func (r *Record) FieldCount() int { return len(r.fields) }

// Field returns the i-th field occurrence or nil.
func (r *Record) Field(i int) *Field {
	if i < 0 || i >= len(r.fields) {
		return nil
	}
	return r.fields[i]
}

// Fields returns the field occurrences in directory order.
func (r *Record) Fields() []*Field { return r.fields }

// FindField returns the occurrence-th field with this tag, or nil.
func (r *Record) FindField(tag string, occurrence int) *Field {
	for _, f := range r.fields {
		if f.defn.tag != tag {
			continue
		}
		if occurrence == 0 {
			return f
		}
		occurrence--
	}
	return nil
}

func (r *Record) fieldIndex(f *Field) int {
	return slices.Index(r.fields, f)
}

// Clone returns an independent copy registered with the Module. Call
// Release when done with it; Module.Close orphans the rest.
func (r *Record) Clone() *Record {
	nr := &Record{
		module:          r.module,
		reuseHeader:     r.reuseHeader,
		dataOnly:        r.dataOnly,
		fieldOffset:     r.fieldOffset,
		sizeFieldTag:    r.sizeFieldTag,
		sizeFieldPos:    r.sizeFieldPos,
		sizeFieldLength: r.sizeFieldLength,
		data:            bytes.Clone(r.data),
		isClone:         true,
		offset:          r.offset,
		onDiskSize:      r.onDiskSize,
	}
	nr.fields = make([]*Field, len(r.fields))
	for i, f := range r.fields {
		nr.fields[i] = &Field{defn: f.defn, buf: &nr.data, offset: f.offset, size: f.size}
	}
	if r.module != nil {
		r.module.addClone(nr)
	}
	return nr
}

// CloneOn copies the record onto another module, rebinding each field to
// the definition with the same tag there. It fails if m lacks any of the
// record's tags.
func (r *Record) CloneOn(m *Module) (*Record, error) {
	for _, f := range r.fields {
		if m.FindFieldDefn(f.defn.tag) == nil {
			return nil, fmt.Errorf("%w: %q is not defined on %s", ErrFieldNotFound, f.defn.tag, m.name)
		}
	}
	nr := r.Clone()
	for _, f := range nr.fields {
		f.defn = m.FindFieldDefn(f.defn.tag)
	}
	if nr.module != nil {
		nr.module.removeClone(nr)
	}
	nr.module = m
	nr.sizeFieldTag = m.sizeFieldTag
	nr.dataOnly = false
	nr.offset = -1
	m.addClone(nr)
	return nr, nil
}

// Release unregisters a clone from its Module and drops its contents.
func (r *Record) Release() {
	if !r.isClone {
		return
	}
	if r.module != nil {
		r.module.removeClone(r)
		r.module = nil
	}
	r.Clear()
}

func (r *Record) locate(tag string, fieldIndex int, subfield string) (*Field, *SubfieldDefn, error) {
	f := r.FindField(tag, fieldIndex)
	if f == nil {
		return nil, nil, fmt.Errorf("%w: %s[%d]", ErrFieldNotFound, tag, fieldIndex)
	}
	sf := f.defn.FindSubfieldDefn(subfield)
	if sf == nil {
		return nil, nil, fmt.Errorf("%w: %s.%s", ErrSubfieldNotFound, tag, subfield)
	}
	return f, sf, nil
}

// GetIntSubfield decodes an integer subfield.
//
// Example:
//
//	rcid, err := rec.GetIntSubfield("FRID", 0, "RCID", 0)
func (r *Record) GetIntSubfield(tag string, fieldIndex int, subfield string, subfieldIndex int) (int, error) {
	f, sf, err := r.locate(tag, fieldIndex, subfield)
	if err != nil {
		return 0, err
	}
	data, err := f.SubfieldData(sf, subfieldIndex)
	if err != nil {
		return 0, err
	}
	v, consumed := sf.ExtractIntData(data)
	if consumed == 0 {
		return 0, formatErrorf(tag, r.offset, "subfield %s: not enough data", subfield)
	}
	return v, nil
}

// GetFloatSubfield decodes a floating point subfield.
func (r *Record) GetFloatSubfield(tag string, fieldIndex int, subfield string, subfieldIndex int) (float64, error) {
	f, sf, err := r.locate(tag, fieldIndex, subfield)
	if err != nil {
		return 0, err
	}
	data, err := f.SubfieldData(sf, subfieldIndex)
	if err != nil {
		return 0, err
	}
	v, consumed := sf.ExtractFloatData(data)
	if consumed == 0 {
		return 0, formatErrorf(tag, r.offset, "subfield %s: not enough data", subfield)
	}
	return v, nil
}

// GetStringSubfield returns the raw value of a subfield.
func (r *Record) GetStringSubfield(tag string, fieldIndex int, subfield string, subfieldIndex int) (string, error) {
	f, sf, err := r.locate(tag, fieldIndex, subfield)
	if err != nil {
		return "", err
	}
	data, err := f.SubfieldData(sf, subfieldIndex)
	if err != nil {
		return "", err
	}
	v, _ := sf.ExtractStringData(data)
	return v, nil
}

// SetStringSubfield encodes value into a subfield, resizing the field as
// needed. Setting the occurrence just past the last one appends a new
// instance.
func (r *Record) SetStringSubfield(tag string, fieldIndex int, subfield string, subfieldIndex int, value string) error {
	return r.setSubfield(tag, fieldIndex, subfield, subfieldIndex, func(sf *SubfieldDefn) ([]byte, error) {
		return sf.FormatStringValue(value)
	})
}

// SetIntSubfield is SetStringSubfield for integers.
func (r *Record) SetIntSubfield(tag string, fieldIndex int, subfield string, subfieldIndex int, value int) error {
	return r.setSubfield(tag, fieldIndex, subfield, subfieldIndex, func(sf *SubfieldDefn) ([]byte, error) {
		return sf.FormatIntValue(value)
	})
}

// SetFloatSubfield is SetStringSubfield for floating point values.
func (r *Record) SetFloatSubfield(tag string, fieldIndex int, subfield string, subfieldIndex int, value float64) error {
	return r.setSubfield(tag, fieldIndex, subfield, subfieldIndex, func(sf *SubfieldDefn) ([]byte, error) {
		return sf.FormatFloatValue(value)
	})
}

func (r *Record) setSubfield(tag string, fieldIndex int, subfield string, subfieldIndex int,
	encode func(*SubfieldDefn) ([]byte, error)) error {
	f, sf, err := r.locate(tag, fieldIndex, subfield)
	if err != nil {
		return err
	}
	encoded, err := encode(sf)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", tag, subfield, err)
	}

	data := f.Data()
	if subfieldIndex == 0 && (len(data) == 0 || (len(data) == 1 && data[0] == FieldTerminator)) {
		// nothing but the terminator: lay out one default instance first
		if err := r.spliceField(f, 0, len(data), append(f.defn.DefaultValue(), FieldTerminator)); err != nil {
			return err
		}
	}
	start, err := f.subfieldOffset(sf, subfieldIndex)
	if errors.Is(err, ErrRange) && f.defn.repeating && subfieldIndex == f.RepeatCount() {
		// one past the last instance: add a default one to write into
		if err := r.CreateDefaultFieldInstance(f, subfieldIndex); err != nil {
			return err
		}
		start, err = f.subfieldOffset(sf, subfieldIndex)
	}
	if err != nil {
		return err
	}
	data = f.Data()

	length, existing := sf.DataLength(data[start:])
	if sf.IsVariable() && existing > length && data[start+length] == FieldTerminator {
		// keep the field terminator, the new value brings its own delimiter
		existing = length
	}
	if existing == len(encoded) {
		copy(data[start:], encoded)
		return nil
	}
	return r.spliceField(f, start, existing, encoded)
}

// spliceField replaces oldLen bytes at start of f with repl.
func (r *Record) spliceField(f *Field, start, oldLen int, repl []byte) error {
	data := f.Data()
	img := make([]byte, 0, len(data)-oldLen+len(repl))
	img = append(img, data[:start]...)
	img = append(img, repl...)
	img = append(img, data[start+oldLen:]...)
	if err := r.ResizeField(f, len(img)); err != nil {
		return err
	}
	copy(f.Data(), img)
	return nil
}

// CreateDefaultFieldInstance sets one instance of f to its default value.
func (r *Record) CreateDefaultFieldInstance(f *Field, instance int) error {
	return r.SetFieldRaw(f, instance, f.defn.DefaultValue())
}

// SetFieldRaw replaces an instance of f with raw bytes. A non-repeating
// field is replaced whole and gets a field terminator appended. For a
// repeating field, instance equal to the repeat count appends.
func (r *Record) SetFieldRaw(f *Field, instance int, raw []byte) error {
	if r.fieldIndex(f) < 0 {
		return fmt.Errorf("%w: field %s is not part of this record", ErrFieldNotFound, f.defn.tag)
	}

	if !f.defn.repeating {
		if instance != 0 {
			return &RangeError{Tag: f.defn.tag, Index: instance, Limit: 1}
		}
		img := append(bytes.Clone(raw), FieldTerminator)
		if err := r.ResizeField(f, len(img)); err != nil {
			return err
		}
		copy(f.Data(), img)
		return nil
	}

	rc := f.RepeatCount()
	if instance < 0 || instance > rc {
		return &RangeError{Tag: f.defn.tag, Index: instance, Limit: rc}
	}
	if instance == rc {
		data := f.Data()
		body := len(data)
		if body > 0 && data[body-1] == FieldTerminator {
			body--
		}
		return r.spliceField(f, body, len(data)-body, append(bytes.Clone(raw), FieldTerminator))
	}

	start, size, err := f.instanceBounds(instance)
	if err != nil {
		return err
	}
	return r.spliceField(f, start, size, raw)
}

// UpdateFieldRaw replaces oldSize bytes at startOffset within one instance
// of f.
func (r *Record) UpdateFieldRaw(f *Field, instance, startOffset, oldSize int, raw []byte) error {
	if r.fieldIndex(f) < 0 {
		return fmt.Errorf("%w: field %s is not part of this record", ErrFieldNotFound, f.defn.tag)
	}
	start, size, err := f.instanceBounds(instance)
	if err != nil {
		return err
	}
	if startOffset < 0 || oldSize < 0 || startOffset+oldSize > size {
		return &RangeError{Tag: f.defn.tag, Index: startOffset + oldSize, Limit: size}
	}
	return r.spliceField(f, start+startOffset, oldSize, raw)
}

// ResizeField grows or shrinks f in place, moving the fields behind it.
// Grown bytes are zero; shrinking keeps the head of the field.
func (r *Record) ResizeField(f *Field, size int) error {
	if r.fieldIndex(f) < 0 {
		return fmt.Errorf("%w: field %s is not part of this record", ErrFieldNotFound, f.defn.tag)
	}
	if size < 0 {
		return &RangeError{Tag: f.defn.tag, Index: size, Limit: -1}
	}
	delta := size - f.size
	if delta == 0 {
		return nil
	}

	end := f.offset + f.size
	data := make([]byte, 0, len(r.data)+delta)
	data = append(data, r.data[:f.offset+min(f.size, size)]...)
	if delta > 0 {
		data = append(data, make([]byte, delta)...)
	}
	data = append(data, r.data[end:]...)

	for _, other := range r.fields {
		if other != f && other.offset >= end {
			other.offset += delta
		}
	}
	f.size = size
	r.data = data
	return nil
}

// DeleteField removes f from the record.
func (r *Record) DeleteField(f *Field) error {
	i := r.fieldIndex(f)
	if i < 0 {
		return fmt.Errorf("%w: field %s is not part of this record", ErrFieldNotFound, f.defn.tag)
	}
	if err := r.ResizeField(f, 0); err != nil {
		return err
	}
	r.fields = slices.Delete(r.fields, i, i+1)
	return nil
}

// AddField appends an occurrence of defn holding one default instance.
func (r *Record) AddField(defn *FieldDefn) (*Field, error) {
	if defn == nil {
		return nil, fmt.Errorf("%w: nil definition", ErrFieldNotFound)
	}
	off := r.fieldOffset
	for _, f := range r.fields {
		off = max(off, f.offset+f.size)
	}
	if off > len(r.data) {
		off = len(r.data)
	}
	nf := &Field{defn: defn, buf: &r.data, offset: off}
	r.fields = append(r.fields, nf)
	if err := r.CreateDefaultFieldInstance(nf, 0); err != nil {
		r.fields = r.fields[:len(r.fields)-1]
		return nil, err
	}
	return nf, nil
}

// buildDirectory lays out a fresh directory for the current fields. The
// field area is kept as is. Entry widths grow when a value does not fit.
func (r *Record) buildDirectory() (data []byte, dirSize, sizeLength, sizePos int, err error) {
	sizeTag := r.sizeFieldTag
	if r.module != nil {
		sizeTag = r.module.sizeFieldTag
	}
	sizeLength, sizePos = r.sizeFieldLength, r.sizeFieldPos
	for _, f := range r.fields {
		sizeLength = max(sizeLength, digits(f.size))
		sizePos = max(sizePos, digits(f.offset-r.fieldOffset))
	}
	if sizeLength > 9 || sizePos > 9 {
		return nil, 0, 0, 0, formatErrorf("", r.offset, "record too large for a directory")
	}

	width := sizeTag + sizeLength + sizePos
	dirSize = width*len(r.fields) + 1
	if dirSize+LeaderSize > 99999 {
		return nil, 0, 0, 0, formatErrorf("", r.offset, "directory of %d bytes does not fit the leader", dirSize)
	}
	area := r.data[min(r.fieldOffset, len(r.data)):]
	data = make([]byte, 0, dirSize+len(area))
	for _, f := range r.fields {
		entry, err := directoryEntry(f.defn.tag, f.size, f.offset-r.fieldOffset, sizeTag, sizeLength, sizePos)
		if err != nil {
			return nil, 0, 0, 0, err
		}
		data = append(data, entry...)
	}
	data = append(data, FieldTerminator)
	data = append(data, area...)
	return data, dirSize, sizeLength, sizePos, nil
}

func (r *Record) commitDirectory(data []byte, dirSize, sizeLength, sizePos int) {
	shift := dirSize - r.fieldOffset
	for _, f := range r.fields {
		f.offset += shift
	}
	r.data = data
	r.fieldOffset = dirSize
	r.sizeFieldLength = sizeLength
	r.sizeFieldPos = sizePos
	if r.module != nil {
		r.sizeFieldTag = r.module.sizeFieldTag
	}
}

// ResetDirectory regenerates the directory from the current fields.
func (r *Record) ResetDirectory() error {
	data, dirSize, sizeLength, sizePos, err := r.buildDirectory()
	if err != nil {
		return err
	}
	r.commitDirectory(data, dirSize, sizeLength, sizePos)
	return nil
}

func (r *Record) leader(dataSize, dirSize int, iden byte, sizeLength, sizePos int) []byte {
	recLength := dataSize + LeaderSize
	if recLength > 99999 {
		// Annex C.1.5.1: length unknown, fields follow the directory in order
		recLength = 0
	}
	sizeTag := r.sizeFieldTag
	if r.module != nil {
		sizeTag = r.module.sizeFieldTag
	}
	out := make([]byte, 0, LeaderSize)
	out = fmt.Appendf(out, "%05d", recLength)
	out = append(out, ' ', iden, ' ', ' ', ' ', ' ', ' ')
	out = fmt.Appendf(out, "%05d", dirSize+LeaderSize)
	out = append(out, ' ', ' ', ' ', byte('0'+sizeLength), byte('0'+sizePos), '0', byte('0'+sizeTag))
	return out
}

// Write appends the record to the Module's file, writing the DDR first if
// it is still pending. The directory is regenerated from the fields.
//
// Once a record with an 'R' leader has been written, later records are
// written without leader and directory and must keep the same layout, else
// ErrLayoutChanged is returned and nothing is written.
//
// Writes are not transactional. A failed write may leave part of the
// record on disk; the in-memory record is left as it was.
func (r *Record) Write() error {
	m := r.module
	if m == nil || m.closed {
		return ErrClosed
	}
	if m.readOnly {
		return ErrReadOnly
	}
	if err := m.Flush(); err != nil {
		return err
	}

	data, dirSize, sizeLength, sizePos, err := r.buildDirectory()
	if err != nil {
		return err
	}

	var out []byte
	if m.reused != nil {
		if len(data) != m.reused.size || !bytes.Equal(data[:dirSize], m.reused.directory) {
			return ErrLayoutChanged
		}
		out = data[dirSize:]
	} else {
		iden := byte('D')
		if r.reuseHeader {
			iden = 'R'
		}
		out = append(r.leader(len(data), dirSize, iden, sizeLength, sizePos), data...)
	}

	off, err := m.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if _, err := m.f.Write(out); err != nil {
		m.log.Error("writing record failed", zap.Int64("offset", off), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	r.commitDirectory(data, dirSize, sizeLength, sizePos)
	r.offset = off
	r.onDiskSize = len(out)
	r.dataOnly = m.reused != nil
	if r.reuseHeader && m.reused == nil {
		m.reused = &reusedLeader{directory: bytes.Clone(data[:dirSize]), size: len(data)}
	}
	return nil
}

// Rewrite writes the record back over the bytes it was read from. The
// encoded size must not change; a record read without leader must also
// keep its directory. The file position is preserved.
func (r *Record) Rewrite() error {
	m := r.module
	if m == nil || m.closed {
		return ErrClosed
	}
	if m.readOnly {
		return ErrReadOnly
	}
	if r.offset < 0 {
		return fmt.Errorf("%w: record has no file position", ErrWriteFailed)
	}

	data, dirSize, sizeLength, sizePos, err := r.buildDirectory()
	if err != nil {
		return err
	}
	var out []byte
	if r.dataOnly {
		if dirSize != r.fieldOffset || !bytes.Equal(data[:dirSize], r.data[:r.fieldOffset]) {
			return ErrLayoutChanged
		}
		out = data[dirSize:]
	} else {
		iden := byte('D')
		if r.reuseHeader {
			iden = 'R'
		}
		out = append(r.leader(len(data), dirSize, iden, sizeLength, sizePos), data...)
	}
	if len(out) != r.onDiskSize {
		return fmt.Errorf("%w: record size changed from %d to %d bytes", ErrLayoutChanged, r.onDiskSize, len(out))
	}

	cur, err := m.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if _, err := m.f.Seek(r.offset, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if _, err := m.f.Write(out); err != nil {
		m.log.Error("rewriting record failed", zap.Int64("offset", r.offset), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if _, err := m.f.Seek(cur, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	r.commitDirectory(data, dirSize, sizeLength, sizePos)
	return nil
}

// Dump writes a description of the record and its fields.
func (r *Record) Dump(w io.Writer) error {
	ew := &errWriter{w: w}
	fmt.Fprintln(ew, "Record")
	fmt.Fprintf(ew, "  Offset = %d\n", r.offset)
	fmt.Fprintf(ew, "  ReuseHeader = %t\n", r.reuseHeader)
	fmt.Fprintf(ew, "  DataSize = %d\n", len(r.data))
	fmt.Fprintf(ew, "  SizeFieldLength = %d, SizeFieldPos = %d, SizeFieldTag = %d\n",
		r.sizeFieldLength, r.sizeFieldPos, r.sizeFieldTag)
	for _, f := range r.fields {
		f.Dump(ew)
	}
	return ew.err
}
