package iso8211

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// DataType is the general type of a subfield value. It selects which of
// ExtractIntData, ExtractFloatData or ExtractStringData fits the subfield.
type DataType int

const (
	DataTypeInt DataType = iota
	DataTypeFloat
	DataTypeString
	DataTypeBinaryString
)

func (t DataType) String() string {
	switch t {
	case DataTypeInt:
		return "int"
	case DataTypeFloat:
		return "float"
	case DataTypeString:
		return "string"
	case DataTypeBinaryString:
		return "binary-string"
	default:
		return "unknown"
	}
}

// BinaryFormat is the digit following 'b' or 'B' in a binary format control.
type BinaryFormat int

const (
	NotBinary    BinaryFormat = 0
	UInt         BinaryFormat = 1
	SInt         BinaryFormat = 2
	FPReal       BinaryFormat = 3
	FloatReal    BinaryFormat = 4
	FloatComplex BinaryFormat = 5
)

func (f BinaryFormat) String() string {
	switch f {
	case NotBinary:
		return "not-binary"
	case UInt:
		return "uint"
	case SInt:
		return "sint"
	case FPReal:
		return "fp-real"
	case FloatReal:
		return "float-real"
	case FloatComplex:
		return "float-complex"
	default:
		return "unknown"
	}
}

// SubfieldDefn describes one subfield of a FieldDefn: its mnemonic, its
// format control and how values are laid out in a field instance.
//
// Values are returned fresh on every call, so a SubfieldDefn can be shared
// by any number of readers.
type SubfieldDefn struct {
	name   string
	format string

	typ       DataType
	binFormat BinaryFormat

	// variable selects delimiter-terminated values over fixed width ones.
	variable  bool
	delimiter byte
	width     int
}

// NewSubfieldDefn creates a subfield with the given mnemonic and format
// control (for example "A(3)", "I", "b14" or "B(40)").
func NewSubfieldDefn(name, format string) (*SubfieldDefn, error) {
	sf := &SubfieldDefn{}
	sf.SetName(name)
	if err := sf.SetFormat(format); err != nil {
		return nil, err
	}
	return sf, nil
}

// SetName sets the mnemonic, dropping trailing spaces.
func (s *SubfieldDefn) SetName(name string) {
	s.name = strings.TrimRight(name, " ")
}

// Name returns the subfield mnemonic.
func (s *SubfieldDefn) Name() string { return s.name }

// Format returns the format control this subfield was built from.
func (s *SubfieldDefn) Format() string { return s.format }

// Type returns the general value type.
func (s *SubfieldDefn) Type() DataType { return s.typ }

// BinaryFormat returns the binary sub-format, NotBinary for text formats.
func (s *SubfieldDefn) BinaryFormat() BinaryFormat { return s.binFormat }

// Width returns the fixed width in bytes, or zero for variable subfields.
func (s *SubfieldDefn) Width() int {
	if s.variable {
		return 0
	}
	return s.width
}

// IsVariable reports whether values are delimited by the unit terminator.
func (s *SubfieldDefn) IsVariable() bool { return s.variable }

// SetFormat interprets a single format control.
//
//	A, C      character string
//	I, S      integer
//	R         real
//	B(n)      bit string of n bits (n a multiple of 8)
//	bXn, BXn  binary of n bytes, X in 1..5 selects the BinaryFormat;
//	          'b' is least significant byte first, 'B' most significant first
//
// A width in brackets makes the subfield fixed width, otherwise values are
// terminated by the unit terminator.
func (s *SubfieldDefn) SetFormat(format string) error {
	if format == "" {
		return formatErrorf("", -1, "subfield %q: empty format", s.name)
	}
	s.format = format
	s.binFormat = NotBinary
	s.delimiter = UnitTerminator
	s.width = 0
	s.variable = true

	if len(format) > 1 && format[1] == '(' {
		s.width = ScanInt([]byte(format[2:]), len(format)-2)
		if s.width < 0 {
			return formatErrorf("", -1, "subfield %q: format width %q is invalid", s.name, format)
		}
		s.variable = s.width == 0
	}

	switch format[0] {
	case 'A', 'C':
		s.typ = DataTypeString
	case 'R':
		s.typ = DataTypeFloat
	case 'I', 'S':
		s.typ = DataTypeInt
	case 'B', 'b':
		s.variable = false
		if len(format) < 2 {
			return formatErrorf("", -1, "subfield %q: binary format %q has no width", s.name, format)
		}
		if format[1] == '(' {
			// Bit string: width is expressed in bits.
			if s.width <= 0 || s.width%8 != 0 {
				return formatErrorf("", -1, "subfield %q: format width %q is invalid", s.name, format)
			}
			s.width /= 8
			s.binFormat = SInt
			if s.width < 5 {
				s.typ = DataTypeInt
			} else {
				s.typ = DataTypeBinaryString
			}
			break
		}
		if format[1] < '1' || format[1] > '5' {
			return formatErrorf("", -1, "subfield %q: binary format %q is invalid", s.name, format[1:2])
		}
		s.binFormat = BinaryFormat(format[1] - '0')
		s.width = ScanInt([]byte(format[2:]), len(format)-2)
		if s.width <= 0 {
			return formatErrorf("", -1, "subfield %q: format width %q is invalid", s.name, format)
		}
		if s.binFormat == SInt || s.binFormat == UInt {
			s.typ = DataTypeInt
		} else {
			s.typ = DataTypeFloat
		}
	case 'X':
		return formatErrorf("", -1, "subfield %q: format type %q not supported", s.name, "X")
	default:
		return formatErrorf("", -1, "subfield %q: format type %q not recognised", s.name, format[:1])
	}
	return nil
}

func (s *SubfieldDefn) byteOrder() binary.ByteOrder {
	if s.format != "" && s.format[0] == 'B' {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// DataLength returns the length of the value at the start of data, and the
// number of bytes it consumes including any terminator.
//
// Variable width values end at the unit terminator or the field terminator.
// If data ends with a terminator followed by NUL the field is taken to be
// double byte (lexical level 2) text, and only a terminator followed by NUL
// ends the value.
func (s *SubfieldDefn) DataLength(data []byte) (length, consumed int) {
	n := len(data)
	if !s.variable {
		if s.width > n {
			return n, n
		}
		return s.width, s.width
	}

	ascii := true
	if n > 1 && (data[n-2] == s.delimiter || data[n-2] == FieldTerminator) && data[n-1] == 0 {
		ascii = false
	}

	extra := 0
	for length < n {
		if ascii {
			if data[length] == s.delimiter || data[length] == FieldTerminator {
				break
			}
		} else if length > 0 &&
			(data[length-1] == s.delimiter || data[length-1] == FieldTerminator) &&
			data[length] == 0 {
			// swallow a field terminator that follows, else it reads as a new subfield
			if length+1 < n && data[length+1] == FieldTerminator {
				extra++
			}
			break
		}
		length++
	}

	if length == n {
		return length, n
	}
	return length, length + extra + 1
}

// ExtractStringData returns the raw value at the start of data. Fixed width
// values that run past the end of data are returned shortened.
func (s *SubfieldDefn) ExtractStringData(data []byte) (string, int) {
	length, consumed := s.DataLength(data)
	return string(data[:length]), consumed
}

// ExtractIntData decodes an integer value. consumed is zero when the data
// is too short for a binary value.
func (s *SubfieldDefn) ExtractIntData(data []byte) (value int, consumed int) {
	switch s.format[0] {
	case 'B', 'b':
		if s.width > len(data) || s.width > 8 {
			return 0, 0
		}
		raw := data[:s.width]
		switch s.binFormat {
		case UInt:
			return int(s.unsigned(raw)), s.width
		case SInt:
			return int(s.signed(raw)), s.width
		case FloatReal:
			return int(s.float(raw)), s.width
		default:
			return 0, s.width
		}
	default:
		str, consumed := s.ExtractStringData(data)
		return ScanInt([]byte(str), len(str)), consumed
	}
}

// ExtractFloatData decodes a real value. consumed is zero when the data is
// too short for a binary value.
func (s *SubfieldDefn) ExtractFloatData(data []byte) (value float64, consumed int) {
	switch s.format[0] {
	case 'B', 'b':
		if s.width > len(data) || s.width > 8 {
			return 0, 0
		}
		raw := data[:s.width]
		switch s.binFormat {
		case UInt:
			return float64(s.unsigned(raw)), s.width
		case SInt:
			return float64(s.signed(raw)), s.width
		case FloatReal:
			return s.float(raw), s.width
		default:
			return 0, s.width
		}
	default:
		str, consumed := s.ExtractStringData(data)
		return atof(str), consumed
	}
}

func (s *SubfieldDefn) unsigned(raw []byte) uint64 {
	order := s.byteOrder()
	switch len(raw) {
	case 1:
		return uint64(raw[0])
	case 2:
		return uint64(order.Uint16(raw))
	case 4:
		return uint64(order.Uint32(raw))
	case 8:
		return order.Uint64(raw)
	default:
		var v uint64
		for i := range raw {
			b := raw[i]
			if order == binary.BigEndian {
				v = v<<8 | uint64(b)
			} else {
				v |= uint64(b) << (8 * i)
			}
		}
		return v
	}
}

func (s *SubfieldDefn) signed(raw []byte) int64 {
	switch len(raw) {
	case 1:
		return int64(int8(raw[0]))
	case 2:
		return int64(int16(s.byteOrder().Uint16(raw)))
	case 4:
		return int64(int32(s.byteOrder().Uint32(raw)))
	case 8:
		return int64(s.byteOrder().Uint64(raw))
	default:
		// sign extend odd widths such as the 3 byte B(24)
		v := s.unsigned(raw)
		shift := 64 - 8*uint(len(raw))
		return int64(v<<shift) >> shift
	}
}

func (s *SubfieldDefn) float(raw []byte) float64 {
	switch len(raw) {
	case 4:
		return float64(math.Float32frombits(s.byteOrder().Uint32(raw)))
	case 8:
		return math.Float64frombits(s.byteOrder().Uint64(raw))
	default:
		return 0
	}
}

// atof parses the longest numeric prefix of str, ignoring leading spaces.
func atof(str string) float64 {
	str = strings.TrimSpace(str)
	if v, err := strconv.ParseFloat(str, 64); err == nil {
		return v
	}
	end := 0
	for end < len(str) && strings.IndexByte("+-.0123456789eEdD", str[end]) >= 0 {
		end++
	}
	for ; end > 0; end-- {
		prefix := strings.NewReplacer("d", "e", "D", "e").Replace(str[:end])
		if v, err := strconv.ParseFloat(prefix, 64); err == nil {
			return v
		}
	}
	return 0
}

// FormatStringValue encodes value for this subfield. Variable subfields get
// a trailing unit terminator, fixed ones are padded with spaces (text) or
// NULs (binary) and truncated to the width.
func (s *SubfieldDefn) FormatStringValue(value string) ([]byte, error) {
	if s.binFormat == NotBinary && strings.ContainsAny(value, "\x1e\x1f") {
		return nil, formatErrorf("", -1, "subfield %q: value contains a reserved terminator", s.name)
	}
	if s.variable {
		out := make([]byte, 0, len(value)+1)
		out = append(out, value...)
		return append(out, UnitTerminator), nil
	}
	out := make([]byte, s.width)
	if s.binFormat == NotBinary {
		for i := range out {
			out[i] = ' '
		}
	}
	copy(out, value)
	return out, nil
}

// FormatIntValue encodes an integer. Fixed width text is zero filled;
// values that do not fit the width are rejected.
func (s *SubfieldDefn) FormatIntValue(value int) ([]byte, error) {
	work := strconv.Itoa(value)
	if s.variable {
		return append([]byte(work), UnitTerminator), nil
	}

	switch s.binFormat {
	case NotBinary:
		return s.zeroFill(work, fmt.Sprint(value))
	case UInt, SInt:
		if !s.fitsInt(value) {
			return nil, &RangeError{Subfield: s.name, Index: value, Limit: -1}
		}
		out := make([]byte, s.width)
		v := uint64(value)
		for i := 0; i < s.width; i++ {
			b := byte(v >> (8 * uint(i)))
			if s.format[0] == 'B' {
				out[s.width-i-1] = b
			} else {
				out[i] = b
			}
		}
		return out, nil
	case FloatReal:
		return s.encodeFloat(float64(value))
	default:
		return nil, formatErrorf("", -1, "subfield %q: cannot encode %s values", s.name, s.binFormat)
	}
}

// FormatFloatValue encodes a real. Fixed width text uses the most precision
// that fits the width.
func (s *SubfieldDefn) FormatFloatValue(value float64) ([]byte, error) {
	work := strconv.FormatFloat(value, 'g', -1, 64)
	if s.variable {
		return append([]byte(work), UnitTerminator), nil
	}

	switch s.binFormat {
	case NotBinary:
		if len(work) > s.width {
			for prec := s.width; prec >= 0; prec-- {
				w := strconv.FormatFloat(value, 'f', prec, 64)
				if len(w) <= s.width {
					work = w
					break
				}
			}
		}
		return s.zeroFill(work, fmt.Sprint(value))
	case FloatReal:
		return s.encodeFloat(value)
	case UInt, SInt:
		return s.FormatIntValue(int(value))
	default:
		return nil, formatErrorf("", -1, "subfield %q: cannot encode %s values", s.name, s.binFormat)
	}
}

func (s *SubfieldDefn) zeroFill(work, display string) ([]byte, error) {
	if len(work) > s.width {
		return nil, formatErrorf("", -1, "subfield %q: value %s does not fit in %d characters", s.name, display, s.width)
	}
	out := make([]byte, 0, s.width)
	if work[0] == '-' {
		out = append(out, '-')
		work = work[1:]
	}
	for len(out)+len(work) < s.width {
		out = append(out, '0')
	}
	return append(out, work...), nil
}

func (s *SubfieldDefn) fitsInt(value int) bool {
	if s.width >= 8 {
		return s.binFormat == SInt || value >= 0
	}
	bits := uint(8 * s.width)
	if s.binFormat == UInt {
		return value >= 0 && uint64(value) < 1<<bits
	}
	limit := int64(1) << (bits - 1)
	return int64(value) >= -limit && int64(value) < limit
}

func (s *SubfieldDefn) encodeFloat(value float64) ([]byte, error) {
	out := make([]byte, s.width)
	switch s.width {
	case 4:
		s.byteOrder().PutUint32(out, math.Float32bits(float32(value)))
	case 8:
		s.byteOrder().PutUint64(out, math.Float64bits(value))
	default:
		return nil, formatErrorf("", -1, "subfield %q: no %d byte float encoding", s.name, s.width)
	}
	return out, nil
}

// DefaultValue returns the value used to fill a new field instance: a lone
// unit terminator for variable subfields, otherwise zeros for numbers,
// spaces for text and NULs for binary.
func (s *SubfieldDefn) DefaultValue() []byte {
	if s.variable {
		return []byte{UnitTerminator}
	}
	fill := byte(0)
	if s.binFormat == NotBinary {
		if s.typ == DataTypeInt || s.typ == DataTypeFloat {
			fill = '0'
		} else {
			fill = ' '
		}
	}
	out := make([]byte, s.width)
	for i := range out {
		out[i] = fill
	}
	return out
}

// DumpData writes the decoded value at the start of data.
func (s *SubfieldDefn) DumpData(w io.Writer, data []byte) {
	switch s.typ {
	case DataTypeFloat:
		v, _ := s.ExtractFloatData(data)
		fmt.Fprintf(w, "      Subfield %s = %g\n", s.name, v)
	case DataTypeInt:
		v, _ := s.ExtractIntData(data)
		fmt.Fprintf(w, "      Subfield %s = %d\n", s.name, v)
	case DataTypeBinaryString:
		v, _ := s.ExtractStringData(data)
		fmt.Fprintf(w, "      Subfield %s = 0x%X\n", s.name, v)
	default:
		v, _ := s.ExtractStringData(data)
		fmt.Fprintf(w, "      Subfield %s = %q\n", s.name, v)
	}
}

// Dump writes a description of the subfield definition.
func (s *SubfieldDefn) Dump(w io.Writer) {
	fmt.Fprintf(w, "    Subfield %s\n", s.name)
	fmt.Fprintf(w, "      Format = %s\n", s.format)
	fmt.Fprintf(w, "      Type = %s", s.typ)
	if s.binFormat != NotBinary {
		fmt.Fprintf(w, " (%s, %d bytes)", s.binFormat, s.width)
	}
	fmt.Fprintln(w)
	if s.variable {
		fmt.Fprintf(w, "      Width = variable, delimiter 0x%02X\n", s.delimiter)
	} else {
		fmt.Fprintf(w, "      Width = %d\n", s.width)
	}
}
