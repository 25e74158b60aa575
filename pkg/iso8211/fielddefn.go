package iso8211

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// DataStructCode is the first field control character of a DDR entry.
type DataStructCode int

const (
	Elementary DataStructCode = iota
	Vector
	Array
	Concatenated
)

func (c DataStructCode) String() string {
	switch c {
	case Elementary:
		return "elementary"
	case Vector:
		return "vector"
	case Array:
		return "array"
	case Concatenated:
		return "concatenated"
	default:
		return "unknown"
	}
}

// DataTypeCode is the second field control character of a DDR entry.
type DataTypeCode int

const (
	CharString DataTypeCode = iota
	ImplicitPoint
	ExplicitPoint
	ExplicitPointScaled
	CharBitString
	BitString
	MixedDataType
)

func (c DataTypeCode) String() string {
	switch c {
	case CharString:
		return "char-string"
	case ImplicitPoint:
		return "implicit-point"
	case ExplicitPoint:
		return "explicit-point"
	case ExplicitPointScaled:
		return "explicit-point-scaled"
	case CharBitString:
		return "char-bit-string"
	case BitString:
		return "bit-string"
	case MixedDataType:
		return "mixed-data-type"
	default:
		return "unknown"
	}
}

// FieldDefn is the DDR definition of one field: its tag, descriptive name,
// structure and the list of subfields every occurrence of the field holds.
//
// A field being defined does not mean it occurs in any record. Definitions
// are built once from the DDR and only change through AddSubfield while a
// new file is being authored.
type FieldDefn struct {
	module *Module

	tag            string
	name           string
	arrayDescr     string
	formatControls string

	repeating  bool
	fixedWidth int // zero if variable

	structCode DataStructCode
	typeCode   DataTypeCode

	subfields []*SubfieldDefn
}

// NewFieldDefn creates a definition for authoring a file.
//
// arrayDescr lists subfield mnemonics separated by '!', with a leading '*'
// when the subfield group repeats. When format is given the subfields are
// built from it immediately.
//
// Example:
//
//	defn, err := iso8211.NewFieldDefn("SG2D", "2-D coordinate field", "*YCOO!XCOO",
//	    iso8211.Array, iso8211.MixedDataType, "(2b24)")
func NewFieldDefn(tag, name, arrayDescr string, structCode DataStructCode, typeCode DataTypeCode, format string) (*FieldDefn, error) {
	f := &FieldDefn{
		tag:            tag,
		name:           name,
		arrayDescr:     arrayDescr,
		formatControls: format,
		structCode:     structCode,
		typeCode:       typeCode,
		repeating:      strings.HasPrefix(arrayDescr, "*"),
	}
	if format != "" {
		if err := f.buildSubfields(); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Initialize decodes the DDR field area entry of tag.
func (f *FieldDefn) Initialize(m *Module, tag string, entry []byte) error {
	f.module = m
	f.tag = tag
	f.subfields = nil
	f.fixedWidth = 0

	fcl := 9
	if m != nil {
		fcl = m.fieldControlLength
	}
	if len(entry) < fcl || len(entry) < 2 {
		return formatErrorf(tag, -1, "field description shorter than field controls (%d < %d)", len(entry), fcl)
	}

	switch entry[0] {
	case ' ', '0':
		// ' ' appears in ADRG and DIGEST files
		f.structCode = Elementary
	case '1':
		f.structCode = Vector
	case '2':
		f.structCode = Array
	case '3':
		f.structCode = Concatenated
	default:
		f.logger().Warn("unrecognised data structure code, assuming elementary",
			zap.String("tag", tag), zap.String("code", string(entry[0:1])))
		f.structCode = Elementary
	}

	switch entry[1] {
	case ' ', '0':
		f.typeCode = CharString
	case '1':
		f.typeCode = ImplicitPoint
	case '2':
		f.typeCode = ExplicitPoint
	case '3':
		f.typeCode = ExplicitPointScaled
	case '4':
		f.typeCode = CharBitString
	case '5':
		f.typeCode = BitString
	case '6':
		f.typeCode = MixedDataType
	default:
		f.logger().Warn("unrecognised data type code, assuming character string",
			zap.String("tag", tag), zap.String("code", string(entry[1:2])))
		f.typeCode = CharString
	}

	off := fcl
	var n int
	f.name, n = FetchVariable(entry[off:], len(entry)-off, UnitTerminator, FieldTerminator)
	off += n
	f.arrayDescr, n = FetchVariable(entry[off:], len(entry)-off, UnitTerminator, FieldTerminator)
	off += n
	f.formatControls, _ = FetchVariable(entry[off:], len(entry)-off, UnitTerminator, FieldTerminator)
	f.repeating = strings.HasPrefix(f.arrayDescr, "*")

	if f.structCode != Elementary {
		return f.buildSubfields()
	}

	// Elementary fields carry at most a single value; describe it when the
	// format allows, but never fail the DDR over it.
	if strings.Trim(f.formatControls, "() ") != "" {
		if err := f.buildSubfields(); err != nil {
			f.logger().Debug("ignoring format of elementary field",
				zap.String("tag", tag), zap.Error(err))
			f.subfields = nil
			f.fixedWidth = 0
		}
	}
	return nil
}

func (f *FieldDefn) logger() *zap.Logger {
	if f.module != nil {
		return f.module.log
	}
	return zap.NewNop()
}

// buildSubfields creates the subfields named by the array descriptor and
// applies the format controls to them.
func (f *FieldDefn) buildSubfields() error {
	f.subfields = nil
	list := f.arrayDescr
	if strings.HasPrefix(list, "*") {
		f.repeating = true
		list = list[1:]
	}
	for _, name := range strings.Split(list, "!") {
		if name == "" {
			continue
		}
		sf := &SubfieldDefn{}
		sf.SetName(name)
		f.AddSubfieldDefn(sf, true)
	}
	return f.applyFormats()
}

func (f *FieldDefn) applyFormats() error {
	fc := strings.TrimSpace(f.formatControls)
	if len(fc) < 2 || fc[0] != '(' || fc[len(fc)-1] != ')' {
		return formatErrorf(f.tag, -1, "format controls missing brackets: %q", f.formatControls)
	}

	expanded, ok := expandFormat(fc, maxExpandedFormat)
	if !ok {
		return formatErrorf(f.tag, -1, "format controls expand past %d bytes", maxExpandedFormat)
	}
	var items []string
	for _, item := range strings.Split(expanded, ",") {
		item = strings.TrimLeft(strings.TrimSpace(item), "0123456789")
		if item != "" {
			items = append(items, item)
		}
	}

	if len(f.subfields) == 0 {
		// No mnemonics in the descriptor: name the values after the field.
		for i := range items {
			name := f.tag
			if len(items) > 1 {
				name = f.tag + "_" + strconv.Itoa(i+1)
			}
			f.AddSubfieldDefn(&SubfieldDefn{name: name}, true)
		}
	}

	for i, item := range items {
		if i >= len(f.subfields) {
			f.logger().Warn("more formats than subfields, extra formats ignored",
				zap.String("tag", f.tag), zap.Int("formats", len(items)), zap.Int("subfields", len(f.subfields)))
			break
		}
		if err := f.subfields[i].SetFormat(item); err != nil {
			return fmt.Errorf("field %q: %w", f.tag, err)
		}
	}
	if len(items) < len(f.subfields) {
		return formatErrorf(f.tag, -1, "fewer formats (%d) than subfields (%d)", len(items), len(f.subfields))
	}

	f.updateFixedWidth()
	return nil
}

func (f *FieldDefn) updateFixedWidth() {
	f.fixedWidth = 0
	for _, sf := range f.subfields {
		if sf.Width() == 0 {
			f.fixedWidth = 0
			return
		}
		f.fixedWidth += sf.Width()
	}
}

// maxExpandedFormat bounds the expansion of one format control string.
const maxExpandedFormat = 64 << 10

// ExpandFormat expands repeat counts and strips redundant brackets from a
// format control string. Repeats may nest. A format that would expand past
// 64 KiB yields the empty string.
//
// Example:
//
//	iso8211.ExpandFormat("2A(4),I(3)")  // "A(4),A(4),I(3)"
//	iso8211.ExpandFormat("(A,2(I,R))")  // "A,I,R,I,R"
func ExpandFormat(src string) string {
	out, ok := expandFormat(src, maxExpandedFormat)
	if !ok {
		return ""
	}
	return out
}

// expandFormat is ExpandFormat with a limit on the expanded length. It
// reports false once the limit is exceeded.
func expandFormat(src string, limit int) (string, bool) {
	var dst strings.Builder
	for i := 0; i < len(src); {
		itemStart := i == 0 || src[i-1] == ','
		switch {
		case itemStart && src[i] == '(':
			// extra level of brackets, see 6.4.3.3 of the standard
			contents := extractSubstring(src[i:])
			expanded, ok := expandFormat(contents, limit-dst.Len())
			if !ok {
				return "", false
			}
			dst.WriteString(expanded)
			i += len(contents) + 2
		case itemStart && isDigit(src[i]):
			j := i
			for j < len(src) && isDigit(src[j]) {
				j++
			}
			repeat, err := strconv.Atoi(src[i:j])
			if err != nil {
				return "", false
			}
			contents := extractSubstring(src[j:])
			expanded, ok := expandFormat(contents, limit-dst.Len())
			if !ok {
				return "", false
			}
			if repeat > 0 && repeat > (limit-dst.Len()+1)/(len(expanded)+1) {
				return "", false
			}
			for k := 0; k < repeat; k++ {
				if k > 0 {
					dst.WriteByte(',')
				}
				dst.WriteString(expanded)
			}
			if j < len(src) && src[j] == '(' {
				i = j + len(contents) + 2
			} else {
				i = j + len(contents)
			}
		default:
			dst.WriteByte(src[i])
			i++
		}
		if dst.Len() > limit {
			return "", false
		}
	}
	return dst.String(), true
}

// extractSubstring returns the item at the start of src up to the next
// comma outside brackets, without its enclosing brackets.
func extractSubstring(src string) string {
	depth := 0
	i := 0
	for ; i < len(src) && (depth > 0 || src[i] != ','); i++ {
		switch src[i] {
		case '(':
			depth++
		case ')':
			depth--
		}
	}
	if len(src) > 0 && src[0] == '(' {
		if i < 2 {
			return ""
		}
		return src[1 : i-1]
	}
	return src[:i]
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// AddSubfield appends a subfield built from name and format, extending the
// format controls and array descriptor to match.
func (f *FieldDefn) AddSubfield(name, format string) error {
	sf, err := NewSubfieldDefn(name, format)
	if err != nil {
		return fmt.Errorf("field %q: %w", f.tag, err)
	}
	f.AddSubfieldDefn(sf, false)
	return nil
}

// AddSubfieldDefn appends sf. Unless dontAddToFormat is set the format
// controls and array descriptor are extended with its format and name.
func (f *FieldDefn) AddSubfieldDefn(sf *SubfieldDefn, dontAddToFormat bool) {
	f.subfields = append(f.subfields, sf)
	f.updateFixedWidth()
	if dontAddToFormat {
		return
	}

	fc := f.formatControls
	if fc == "" {
		fc = "()"
	}
	fc = strings.TrimSuffix(fc, ")")
	if !strings.HasSuffix(fc, "(") {
		fc += ","
	}
	f.formatControls = fc + sf.Format() + ")"

	if len(f.arrayDescr) > 0 && (f.arrayDescr[0] != '*' || len(f.arrayDescr) > 1) {
		f.arrayDescr += "!"
	}
	f.arrayDescr += sf.Name()
}

// GenerateDDREntry encodes the definition as a DDR field area entry, the
// inverse of Initialize.
func (f *FieldDefn) GenerateDDREntry(m *Module) ([]byte, error) {
	fcl := 9
	if m != nil {
		fcl = m.fieldControlLength
	}
	if fcl < 2 {
		return nil, formatErrorf(f.tag, -1, "field control length %d too small", fcl)
	}

	controls := []byte{
		byte('0' + f.structCode),
		byte('0' + f.typeCode),
		'0', '0', ';', '&', ' ', ' ', ' ',
	}
	for len(controls) < fcl {
		controls = append(controls, ' ')
	}
	controls = controls[:fcl]

	out := make([]byte, 0, fcl+len(f.name)+len(f.arrayDescr)+len(f.formatControls)+3)
	out = append(out, controls...)
	out = append(out, f.name...)
	out = append(out, UnitTerminator)
	out = append(out, f.arrayDescr...)
	if f.formatControls != "" {
		out = append(out, UnitTerminator)
		out = append(out, f.formatControls...)
	}
	return append(out, FieldTerminator), nil
}

// Tag returns the field tag.
func (f *FieldDefn) Tag() string { return f.tag }

// Name returns the descriptive field name.
func (f *FieldDefn) Name() string { return f.name }

// ArrayDescr returns the array descriptor (the subfield mnemonic list).
func (f *FieldDefn) ArrayDescr() string { return f.arrayDescr }

// FormatControls returns the format controls, e.g. "(A,I(3),3R)".
func (f *FieldDefn) FormatControls() string { return f.formatControls }

// SetFormatControls replaces the format controls string without touching
// the subfields.
func (f *FieldDefn) SetFormatControls(fc string) { f.formatControls = fc }

func (f *FieldDefn) DataStructCode() DataStructCode { return f.structCode }
func (f *FieldDefn) DataTypeCode() DataTypeCode     { return f.typeCode }

// FixedWidth returns the width of one instance of the field when every
// subfield is fixed width, otherwise zero.
func (f *FieldDefn) FixedWidth() int { return f.fixedWidth }

// IsRepeating reports whether the subfield group may repeat within one
// field occurrence.
func (f *FieldDefn) IsRepeating() bool { return f.repeating }

// SetRepeating overrides the repeating flag. Some producers mark repeating
// fields without the leading '*'.
func (f *FieldDefn) SetRepeating(repeating bool) { f.repeating = repeating }

// SubfieldCount returns the number of subfields.
func (f *FieldDefn) SubfieldCount() int { return len(f.subfields) }

// Subfield returns the i-th subfield or nil.
func (f *FieldDefn) Subfield(i int) *SubfieldDefn {
	if i < 0 || i >= len(f.subfields) {
		return nil
	}
	return f.subfields[i]
}

// Subfields returns the subfields in declaration order.
func (f *FieldDefn) Subfields() []*SubfieldDefn { return f.subfields }

// FindSubfieldDefn looks a subfield up by mnemonic.
func (f *FieldDefn) FindSubfieldDefn(name string) *SubfieldDefn {
	for _, sf := range f.subfields {
		if sf.name == name {
			return sf
		}
	}
	return nil
}

// DefaultValue returns one instance of the field filled with each
// subfield's default value.
func (f *FieldDefn) DefaultValue() []byte {
	var out []byte
	for _, sf := range f.subfields {
		out = append(out, sf.DefaultValue()...)
	}
	return out
}

// Dump writes a description of the definition and its subfields.
func (f *FieldDefn) Dump(w io.Writer) {
	fmt.Fprintf(w, "  FieldDefn %s\n", f.tag)
	fmt.Fprintf(w, "    Name = %q\n", f.name)
	fmt.Fprintf(w, "    ArrayDescr = %q\n", f.arrayDescr)
	fmt.Fprintf(w, "    FormatControls = %q\n", f.formatControls)
	fmt.Fprintf(w, "    Structure = %s, Type = %s\n", f.structCode, f.typeCode)
	if f.repeating {
		fmt.Fprintln(w, "    Repeating")
	}
	if f.fixedWidth > 0 {
		fmt.Fprintf(w, "    FixedWidth = %d\n", f.fixedWidth)
	}
	for _, sf := range f.subfields {
		sf.Dump(w)
	}
}
