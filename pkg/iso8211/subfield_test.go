package iso8211

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetFormat(t *testing.T) {
	tests := []struct {
		format   string
		typ      DataType
		bin      BinaryFormat
		width    int
		variable bool
	}{
		{"A", DataTypeString, NotBinary, 0, true},
		{"A(3)", DataTypeString, NotBinary, 3, false},
		{"C", DataTypeString, NotBinary, 0, true},
		{"I(5)", DataTypeInt, NotBinary, 5, false},
		{"S", DataTypeInt, NotBinary, 0, true},
		{"R", DataTypeFloat, NotBinary, 0, true},
		{"R(10)", DataTypeFloat, NotBinary, 10, false},
		{"b11", DataTypeInt, UInt, 1, false},
		{"b12", DataTypeInt, UInt, 2, false},
		{"b14", DataTypeInt, UInt, 4, false},
		{"b24", DataTypeInt, SInt, 4, false},
		{"B24", DataTypeInt, SInt, 4, false},
		{"b48", DataTypeFloat, FloatReal, 8, false},
		{"B(16)", DataTypeInt, SInt, 2, false},
		{"B(40)", DataTypeBinaryString, SInt, 5, false},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			sf, err := NewSubfieldDefn("TEST", tt.format)
			require.NoError(t, err)
			assert.Equal(t, tt.typ, sf.Type())
			assert.Equal(t, tt.bin, sf.BinaryFormat())
			assert.Equal(t, tt.width, sf.Width())
			assert.Equal(t, tt.variable, sf.IsVariable())
		})
	}
}

func TestSetFormatRejects(t *testing.T) {
	for _, format := range []string{"", "X", "X(3)", "Q", "b", "b9", "b10", "B(12)", "B(0)"} {
		_, err := NewSubfieldDefn("BAD", format)
		assert.ErrorIs(t, err, ErrFormat, "format %q", format)
	}
}

func TestSetNameTrimsTrailingSpaces(t *testing.T) {
	sf := &SubfieldDefn{}
	sf.SetName("RCID  ")
	assert.Equal(t, "RCID", sf.Name())
}

func TestExtractBinary(t *testing.T) {
	tests := []struct {
		format string
		data   []byte
		want   int
	}{
		{"b11", []byte{0xFE}, 254},
		{"b12", []byte{0x34, 0x12}, 0x1234},
		{"B12", []byte{0x12, 0x34}, 0x1234},
		{"b14", []byte{0x78, 0x56, 0x34, 0x12}, 0x12345678},
		{"b21", []byte{0xFF}, -1},
		{"b22", []byte{0xFE, 0xFF}, -2},
		{"b24", []byte{0x00, 0x00, 0x00, 0x80}, math.MinInt32},
		{"B(24)", []byte{0xFF, 0xFF, 0xFD}, -3},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			sf, err := NewSubfieldDefn("V", tt.format)
			require.NoError(t, err)
			got, consumed := sf.ExtractIntData(tt.data)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(tt.data), consumed)
		})
	}
}

func TestExtractBinaryShortData(t *testing.T) {
	sf, err := NewSubfieldDefn("V", "b14")
	require.NoError(t, err)
	_, consumed := sf.ExtractIntData([]byte{1, 2})
	assert.Zero(t, consumed)
	_, consumed = sf.ExtractFloatData([]byte{1, 2})
	assert.Zero(t, consumed)
}

func TestExtractText(t *testing.T) {
	a, _ := NewSubfieldDefn("A", "A")
	s, consumed := a.ExtractStringData([]byte("hello\x1fworld\x1e"))
	assert.Equal(t, "hello", s)
	assert.Equal(t, 6, consumed)

	// a value ending at the field terminator
	s, consumed = a.ExtractStringData([]byte("world\x1e"))
	assert.Equal(t, "world", s)
	assert.Equal(t, 6, consumed)

	i, _ := NewSubfieldDefn("I", "I(3)")
	n, consumed := i.ExtractIntData([]byte("042rest"))
	assert.Equal(t, 42, n)
	assert.Equal(t, 3, consumed)

	r, _ := NewSubfieldDefn("R", "R")
	f, consumed := r.ExtractFloatData([]byte(" -12.5\x1f"))
	assert.InDelta(t, -12.5, f, 1e-12)
	assert.Equal(t, 7, consumed)

	// fixed width past the end of data is shortened
	fixed, _ := NewSubfieldDefn("F", "A(6)")
	s, consumed = fixed.ExtractStringData([]byte("abc"))
	assert.Equal(t, "abc", s)
	assert.Equal(t, 3, consumed)
}

func TestDoubleByteDataLength(t *testing.T) {
	sf, err := NewSubfieldDefn("NATF", "A")
	require.NoError(t, err)

	// UCS-2 text, "AB" then a unit terminator and NUL, then the field terminator
	data := []byte{'A', 0, 'B', 0, 0x1F, 0, 0x1E}
	length, consumed := sf.DataLength(data[:6])
	assert.Equal(t, 5, length)
	assert.Equal(t, 6, consumed)

	// a 0x1F inside a wide character does not end the value
	data = []byte{0x1F, 0x20, 'B', 0, 0x1F, 0}
	length, _ = sf.DataLength(data)
	assert.Equal(t, 5, length)
}

func TestFormatValues(t *testing.T) {
	fixedInt, _ := NewSubfieldDefn("N", "I(5)")
	out, err := fixedInt.FormatIntValue(42)
	require.NoError(t, err)
	assert.Equal(t, "00042", string(out))

	out, err = fixedInt.FormatIntValue(-42)
	require.NoError(t, err)
	assert.Equal(t, "-0042", string(out))

	_, err = fixedInt.FormatIntValue(123456)
	assert.ErrorIs(t, err, ErrFormat)

	varInt, _ := NewSubfieldDefn("N", "I")
	out, err = varInt.FormatIntValue(7)
	require.NoError(t, err)
	assert.Equal(t, "7\x1f", string(out))

	u1, _ := NewSubfieldDefn("U", "b11")
	_, err = u1.FormatIntValue(256)
	assert.ErrorIs(t, err, ErrRange)
	_, err = u1.FormatIntValue(-1)
	assert.ErrorIs(t, err, ErrRange)

	be, _ := NewSubfieldDefn("B", "B22")
	out, err = be.FormatIntValue(-2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFE}, out)

	fixedStr, _ := NewSubfieldDefn("S", "A(4)")
	out, err = fixedStr.FormatStringValue("ab")
	require.NoError(t, err)
	assert.Equal(t, "ab  ", string(out))
	out, err = fixedStr.FormatStringValue("abcdef")
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(out))

	varStr, _ := NewSubfieldDefn("S", "A")
	_, err = varStr.FormatStringValue("bad\x1evalue")
	assert.ErrorIs(t, err, ErrFormat)

	fixedReal, _ := NewSubfieldDefn("R", "R(6)")
	out, err = fixedReal.FormatFloatValue(3.14159265)
	require.NoError(t, err)
	assert.Equal(t, "3.1416", string(out))

	double, _ := NewSubfieldDefn("D", "b48")
	out, err = double.FormatFloatValue(-0.5)
	require.NoError(t, err)
	f, consumed := double.ExtractFloatData(out)
	assert.Equal(t, -0.5, f)
	assert.Equal(t, 8, consumed)
}

func TestDefaultValue(t *testing.T) {
	tests := map[string][]byte{
		"A":    {UnitTerminator},
		"A(3)": []byte("   "),
		"I(4)": []byte("0000"),
		"b12":  {0, 0},
	}
	for format, want := range tests {
		sf, err := NewSubfieldDefn("V", format)
		require.NoError(t, err)
		assert.Equal(t, want, sf.DefaultValue(), format)
	}
}
