package iso8211

import (
	"fmt"
	"io"
)

// maxDumpRepeats bounds the instances Field.Dump prints.
const maxDumpRepeats = 8

// Field is one occurrence of a field inside a record. It is a view into
// the record's data and stays valid until the record is read again,
// cleared or released.
type Field struct {
	defn   *FieldDefn
	buf    *[]byte
	offset int
	size   int
}

// NewField wraps standalone field bytes, terminator included.
func NewField(defn *FieldDefn, data []byte) *Field {
	return &Field{defn: defn, buf: &data, size: len(data)}
}

// Defn returns the definition of the field.
func (f *Field) Defn() *FieldDefn { return f.defn }

// Tag returns the field tag.
func (f *Field) Tag() string { return f.defn.tag }

// Size returns the byte length of the field, terminator included.
func (f *Field) Size() int { return f.size }

// Data returns the raw field bytes. The slice aliases the record; it must
// not be retained across mutations.
func (f *Field) Data() []byte {
	b := *f.buf
	end := f.offset + f.size
	if f.offset < 0 || end > len(b) {
		return nil
	}
	return b[f.offset:end:end]
}

// subfieldOffset returns where occurrence of sf starts within the field.
func (f *Field) subfieldOffset(sf *SubfieldDefn, occurrence int) (int, error) {
	if sf == nil {
		return 0, fmt.Errorf("%w: nil subfield in %s", ErrSubfieldNotFound, f.defn.tag)
	}
	if occurrence < 0 {
		return 0, &RangeError{Tag: f.defn.tag, Subfield: sf.name, Index: occurrence, Limit: -1}
	}
	if occurrence > 0 {
		if rc := f.RepeatCount(); occurrence >= rc {
			return 0, &RangeError{Tag: f.defn.tag, Subfield: sf.name, Index: occurrence, Limit: rc}
		}
	}
	data := f.Data()
	want := occurrence
	off := 0
	if occurrence > 0 && f.defn.fixedWidth > 0 {
		off = f.defn.fixedWidth * occurrence
		occurrence = 0
	}

	for ; occurrence >= 0; occurrence-- {
		for _, this := range f.defn.subfields {
			if off >= len(data) {
				return 0, &RangeError{Tag: f.defn.tag, Subfield: sf.name, Index: want, Limit: f.RepeatCount()}
			}
			if this == sf && occurrence == 0 {
				return off, nil
			}
			_, consumed := this.DataLength(data[off:])
			off += consumed
		}
	}
	return 0, fmt.Errorf("%w: %s is not a subfield of %s", ErrSubfieldNotFound, sf.name, f.defn.tag)
}

// SubfieldData returns the field bytes starting at the given occurrence of
// sf. Decode the value with the Extract methods of sf.
//
// Example:
//
//	data, err := field.SubfieldData(field.Defn().FindSubfieldDefn("RCID"), 0)
//	if err != nil {
//	    return err
//	}
//	rcid, _ := sf.ExtractIntData(data)
func (f *Field) SubfieldData(sf *SubfieldDefn, occurrence int) ([]byte, error) {
	off, err := f.subfieldOffset(sf, occurrence)
	if err != nil {
		return nil, err
	}
	return f.Data()[off:], nil
}

// RepeatCount returns the number of subfield group instances in the field.
// Non-repeating fields always hold one.
func (f *Field) RepeatCount() int {
	if !f.defn.repeating {
		return 1
	}
	if f.defn.fixedWidth > 0 {
		return f.size / f.defn.fixedWidth
	}

	data := f.Data()
	off := 0
	for count := 1; ; count++ {
		before := off
		for _, sf := range f.defn.subfields {
			consumed := sf.Width()
			if consumed <= len(data)-off {
				_, consumed = sf.DataLength(data[off:])
			}
			off += consumed
			if off > len(data) {
				return count - 1
			}
		}
		if off == before {
			return count - 1
		}
		// only the field terminator left
		if off > len(data)-2 {
			return count
		}
	}
}

// instanceBounds returns the start and size of one subfield group instance.
func (f *Field) instanceBounds(instance int) (start, size int, err error) {
	if rc := f.RepeatCount(); instance < 0 || instance >= rc {
		return 0, 0, &RangeError{Tag: f.defn.tag, Index: instance, Limit: rc}
	}
	subfields := f.defn.subfields
	if len(subfields) == 0 {
		return 0, f.size, nil
	}
	start, err = f.subfieldOffset(subfields[0], instance)
	if err != nil {
		return 0, 0, err
	}
	last := subfields[len(subfields)-1]
	lastOff, err := f.subfieldOffset(last, instance)
	if err != nil {
		return 0, 0, err
	}
	data := f.Data()
	length, consumed := last.DataLength(data[lastOff:])
	end := lastOff + consumed
	if last.IsVariable() && consumed > length && data[lastOff+length] == FieldTerminator {
		end = lastOff + length
	}
	return start, end - start, nil
}

// InstanceData returns the bytes of one subfield group instance. For a
// field without subfields it returns the whole field.
func (f *Field) InstanceData(instance int) ([]byte, error) {
	start, size, err := f.instanceBounds(instance)
	if err != nil {
		return nil, err
	}
	return f.Data()[start : start+size], nil
}

// Dump writes the field bytes and its decoded subfields.
func (f *Field) Dump(w io.Writer) {
	data := f.Data()
	fmt.Fprintf(w, "  Field %s\n", f.defn.tag)
	fmt.Fprintf(w, "    DataSize = %d\n", f.size)
	fmt.Fprint(w, "    Data = `")
	for i, c := range data {
		if i == 40 {
			fmt.Fprint(w, "...")
			break
		}
		if c < 32 || c > 126 {
			fmt.Fprintf(w, "\\%02X", c)
		} else {
			fmt.Fprintf(w, "%c", c)
		}
	}
	fmt.Fprintln(w, "'")

	off := 0
	for n := 0; n < f.RepeatCount(); n++ {
		if n == maxDumpRepeats {
			fmt.Fprintln(w, "      ...")
			break
		}
		for _, sf := range f.defn.subfields {
			if off >= len(data) {
				return
			}
			sf.DumpData(w, data[off:])
			_, consumed := sf.DataLength(data[off:])
			off += consumed
		}
	}
}
