package document

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	ddf "github.com/beetlebugorg/iso8211/pkg/iso8211"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func ptr(s string) *string { return &s }

func sampleDocument() *Document {
	return &Document{
		Leader: Leader{
			InterchangeLevel:       "3",
			LeaderIden:             "L",
			CodeExtensionIndicator: "E",
			VersionNumber:          "1",
			AppIndicator:           " ",
			ExtendedCharSet:        " ! ",
			SizeFieldLength:        3,
			SizeFieldPos:           4,
			SizeFieldTag:           4,
		},
		Fields: []FieldDef{
			{Tag: "0001", Name: "ISO 8211 Record Identifier", Struct: "elementary", Type: "char-string"},
			{Tag: "DSID", Name: "Data set identification field", Struct: "vector", Type: "mixed-data-type",
				ArrayDescr: "RCNM!RCID!DSNM!SCAL!UUID", FormatControls: "(b11,b14,A,R,B(40))"},
			{Tag: "SG2D", Name: "2-D coordinate field", Struct: "array", Type: "mixed-data-type",
				ArrayDescr: "*YCOO!XCOO", FormatControls: "(2b24)"},
		},
		Records: []Record{
			{Fields: []Field{
				{Tag: "0001", Raw: ptr("1")},
				{Tag: "DSID", Instances: []map[string]any{
					{"RCNM": 10, "RCID": 1, "DSNM": "US5TEST.000", "SCAL": 1.25, "UUID": "00ff10ab7f"},
				}},
			}},
			{Fields: []Field{
				{Tag: "0001", Hex: "0203"},
				{Tag: "SG2D", Instances: []map[string]any{
					{"YCOO": 423500000, "XCOO": -710500000},
					{"YCOO": 423600000, "XCOO": -710400000},
				}},
				{Tag: "SG2D", Instances: []map[string]any{
					{"YCOO": -1, "XCOO": 7},
				}},
			}},
		},
	}
}

func exportFile(t *testing.T, path string) *Document {
	t.Helper()
	m, err := ddf.Open(path)
	require.NoError(t, err)
	defer m.Close()
	doc, err := Export(m)
	require.NoError(t, err)
	return doc
}

func withoutOffsets(doc *Document) *Document {
	out := *doc
	out.Records = make([]Record, len(doc.Records))
	for i, r := range doc.Records {
		r.Offset = 0
		out.Records[i] = r
	}
	return &out
}

func TestCreateAndExport(t *testing.T) {
	want := sampleDocument()
	path := filepath.Join(t.TempDir(), "doc.000")
	require.NoError(t, CreateFile(path, want, zaptest.NewLogger(t)))

	got := exportFile(t, path)
	assert.Equal(t, want.Leader, got.Leader)
	assert.Equal(t, want.Fields, got.Fields)
	assert.Equal(t, want.Records, withoutOffsets(got).Records)
	assert.Greater(t, got.Records[1].Offset, got.Records[0].Offset)
}

func TestYAMLRoundTrip(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.000")
	require.NoError(t, CreateFile(first, sampleDocument(), nil))

	var buf bytes.Buffer
	require.NoError(t, exportFile(t, first).Encode(&buf))
	assert.Contains(t, buf.String(), "tag: SG2D")
	assert.Contains(t, buf.String(), "DSNM: US5TEST.000")

	doc, err := Decode(&buf)
	require.NoError(t, err)
	second := filepath.Join(dir, "second.000")
	require.NoError(t, CreateFile(second, doc, nil))

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestReuseLeaderExport(t *testing.T) {
	doc := &Document{
		Fields: []FieldDef{
			{Tag: "FRID", Name: "Feature record identifier field", Struct: "vector", Type: "mixed-data-type",
				ArrayDescr: "RCNM!RCID", FormatControls: "(b11,b14)"},
		},
	}
	for i := 1; i <= 3; i++ {
		doc.Records = append(doc.Records, Record{
			ReuseLeader: i == 1,
			Fields: []Field{{Tag: "FRID", Instances: []map[string]any{
				{"RCNM": 100, "RCID": i},
			}}},
		})
	}
	path := filepath.Join(t.TempDir(), "reuse.000")
	require.NoError(t, CreateFile(path, doc, nil))

	got := exportFile(t, path)
	require.Len(t, got.Records, 3)
	assert.True(t, got.Records[0].ReuseLeader)
	assert.False(t, got.Records[1].ReuseLeader)
	assert.Equal(t, 3, got.Records[2].Fields[0].Instances[0]["RCID"])
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	_, err := Decode(strings.NewReader("leader: {}\nfeilds: []\n"))
	assert.Error(t, err)
}

func TestCreateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Document)
		target error
	}{
		{"unknown struct", func(d *Document) { d.Fields[1].Struct = "matrix" }, nil},
		{"leader char", func(d *Document) { d.Leader.LeaderIden = "LL" }, nil},
		{"charset", func(d *Document) { d.Leader.ExtendedCharSet = "!" }, nil},
		{"undefined tag", func(d *Document) {
			d.Records[0].Fields = append(d.Records[0].Fields, Field{Tag: "XXXX"})
		}, ddf.ErrFieldNotFound},
		{"unknown subfield", func(d *Document) {
			d.Records[0].Fields[1].Instances[0]["NOPE"] = 1
		}, ddf.ErrSubfieldNotFound},
		{"raw on subfields", func(d *Document) { d.Records[0].Fields[1].Raw = ptr("x") }, nil},
		{"bad hex", func(d *Document) { d.Records[1].Fields[0].Hex = "zz" }, nil},
		{"not a number", func(d *Document) {
			d.Records[1].Fields[1].Instances[0]["YCOO"] = "north"
		}, errNotNumber},
		{"too many instances", func(d *Document) {
			inst := d.Records[0].Fields[1].Instances
			d.Records[0].Fields[1].Instances = append(inst, inst[0])
		}, ddf.ErrRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := sampleDocument()
			tt.mutate(doc)
			err := CreateFile(filepath.Join(t.TempDir(), "bad.000"), doc, nil)
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}

func TestToInt(t *testing.T) {
	for _, v := range []any{42, int64(42), uint64(42), 42.0, " 42 "} {
		n, err := toInt(v)
		require.NoError(t, err, "%v", v)
		assert.Equal(t, 42, n)
	}
	_, err := toInt(4.5)
	assert.ErrorIs(t, err, errNotNumber)
	_, err = toInt(nil)
	assert.ErrorIs(t, err, errNotNumber)
}
