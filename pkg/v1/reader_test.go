package iso8211

import (
	"errors"
	"io"
	"path/filepath"
	"testing"

	ddf "github.com/beetlebugorg/iso8211/pkg/iso8211"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	path := writeSample(t, t.TempDir(), "US5TEST.000", 3)

	reader, err := NewReader(path)
	require.NoError(t, err)
	isoFile, err := reader.Parse()
	require.NoError(t, err)
	require.NoError(t, reader.Close())

	assert.Equal(t, path, isoFile.Path)
	assert.Equal(t, byte('3'), isoFile.Leader.InterchangeLevel)
	assert.Equal(t, byte('L'), isoFile.Leader.LeaderIden)
	assert.Equal(t, 4, isoFile.Leader.SizeFieldTag)

	var tags []string
	for _, d := range isoFile.FieldDefns {
		tags = append(tags, d.Tag)
	}
	assert.Equal(t, []string{"DSID", "VRID", "SG2D"}, tags)
	sg2d := isoFile.FieldDefns[2]
	assert.True(t, sg2d.Repeating)
	assert.Equal(t, 8, sg2d.FixedWidth)
	assert.Equal(t, []SubfieldInfo{{"YCOO", "b24"}, {"XCOO", "b24"}}, sg2d.Subfields)

	require.Len(t, isoFile.Records, 4)

	// records outlive the reader
	first := isoFile.Records[0]
	assert.Equal(t, []string{"DSID"}, first.Tags)
	dsid, ok := first.Fields["DSID"]
	require.True(t, ok)
	assert.NotEqual(t, ddf.FieldTerminator, dsid[len(dsid)-1])
	assert.Equal(t, byte(10), dsid[0])
	name, err := first.Text("DSID", "DSNM")
	require.NoError(t, err)
	assert.Equal(t, "US5TEST.000", name)

	vec := isoFile.Records[2]
	assert.Equal(t, []string{"VRID", "SG2D"}, vec.Tags)
	rcid, err := vec.Int("VRID", "RCID")
	require.NoError(t, err)
	assert.Equal(t, 2, rcid)
	assert.Len(t, vec.Fields["SG2D"], 16)
	assert.Len(t, vec.Occurrences["SG2D"], 1)
	ycoo, err := vec.Record().GetIntSubfield("SG2D", 0, "YCOO", 1)
	require.NoError(t, err)
	assert.Equal(t, 420002001, ycoo)

	_, err = vec.Float("VRID", "NOPE")
	assert.ErrorIs(t, err, ddf.ErrSubfieldNotFound)

	assert.Len(t, isoFile.Filter("VRID"), 3)
	assert.Empty(t, isoFile.Filter("FRID"))
}

func TestReaderNext(t *testing.T) {
	path := writeSample(t, t.TempDir(), "stream.000", 2)
	reader, err := NewReader(path)
	require.NoError(t, err)
	defer reader.Close()

	var offsets []int64
	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		offsets = append(offsets, rec.Offset)
	}
	require.Len(t, offsets, 3)
	assert.Equal(t, reader.Module().FirstRecordOffset(), offsets[0])
	assert.Less(t, offsets[0], offsets[1])

	// ReadAll starts over
	all, err := reader.ReadAll()
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestReaderTagFilter(t *testing.T) {
	path := writeSample(t, t.TempDir(), "filter.000", 1)
	opts := DefaultReaderOptions()
	opts.TagFilter = []string{"SG2D"}

	isoFile, err := ParseFile(path, opts)
	require.NoError(t, err)
	require.Len(t, isoFile.Records, 2)

	vec := isoFile.Records[1]
	assert.Equal(t, []string{"VRID", "SG2D"}, vec.Tags)
	assert.NotContains(t, vec.Fields, "VRID")
	assert.Contains(t, vec.Fields, "SG2D")
	assert.Empty(t, isoFile.Records[0].Fields)
}

func TestReaderLeaderReuse(t *testing.T) {
	path := writeReuseSample(t, t.TempDir(), 3)
	isoFile, err := ParseFile(path, DefaultReaderOptions())
	require.NoError(t, err)
	require.Len(t, isoFile.Records, 3)
	for i, rec := range isoFile.Records {
		rcid, err := rec.Int("FRID", "RCID")
		require.NoError(t, err)
		assert.Equal(t, i+1, rcid)
		assert.Equal(t, i > 0, rec.Record().DataOnly())
	}
}

func TestNewReaderErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewReader(filepath.Join(dir, "missing.000"))
	assert.ErrorIs(t, err, ddf.ErrOpenFailed)

	_, err = NewReader(writeGarbage(t, dir, "garbage.000"))
	assert.ErrorIs(t, err, ddf.ErrOpenFailed)
}

func TestTrimTerminator(t *testing.T) {
	tests := []struct {
		in, want []byte
	}{
		{[]byte("AB\x1e"), []byte("AB")},
		{[]byte{'A', 0, 0x1e, 0}, []byte{'A', 0}},
		{[]byte("AB"), []byte("AB")},
		{[]byte{}, []byte{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, trimTerminator(tt.in))
	}
}
