package iso8211

import (
	"testing"

	ddf "github.com/beetlebugorg/iso8211/pkg/iso8211"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ordinals(extents []RecordExtent) []int {
	out := make([]int, 0, len(extents))
	for _, e := range extents {
		out = append(out, e.Ordinal)
	}
	return out
}

func TestBuildIndex(t *testing.T) {
	path := writeSample(t, t.TempDir(), "indexed.000", 4)
	idx, err := BuildIndex(path)
	require.NoError(t, err)
	defer idx.Close()

	require.Equal(t, 5, idx.Len())
	all := idx.All()
	assert.Equal(t, idx.module.FirstRecordOffset(), all[0].Offset)
	for i := 1; i < len(all); i++ {
		assert.Equal(t, all[i-1].End(), all[i].Offset, "records are contiguous")
		assert.False(t, all[i].DataOnly)
		assert.Equal(t, all[i].Offset, all[i].Base)
	}
	assert.Equal(t, []string{"DSID"}, all[0].Tags)
	assert.Equal(t, []int{1, 2, 3, 4}, ordinals(idx.WithTag("SG2D")))

	_, ok := idx.Extent(5)
	assert.False(t, ok)
}

func TestIndexLocate(t *testing.T) {
	path := writeSample(t, t.TempDir(), "locate.000", 3)
	idx, err := BuildIndex(path)
	require.NoError(t, err)
	defer idx.Close()

	third, _ := idx.Extent(2)
	tests := []struct {
		name   string
		offset int64
		want   int
		found  bool
	}{
		{"first byte", third.Offset, 2, true},
		{"inside", third.Offset + 5, 2, true},
		{"last byte", third.End() - 1, 2, true},
		{"next record", third.End(), 3, true},
		{"in the DDR", 0, 0, false},
		{"negative", -1, 0, false},
		{"past the end", idx.All()[3].End(), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := idx.Locate(tt.offset)
			require.Equal(t, tt.found, ok)
			if ok {
				assert.Equal(t, tt.want, e.Ordinal)
			}
		})
	}
}

func TestIndexOverlapping(t *testing.T) {
	path := writeSample(t, t.TempDir(), "overlap.000", 3)
	idx, err := BuildIndex(path)
	require.NoError(t, err)
	defer idx.Close()

	second, _ := idx.Extent(1)
	third, _ := idx.Extent(2)

	assert.Equal(t, []int{1, 2}, ordinals(idx.Overlapping(second.Offset, third.Offset+1)))
	// a range ending where the third record starts does not touch it
	assert.Equal(t, []int{1}, ordinals(idx.Overlapping(second.Offset, third.Offset)))
	assert.Equal(t, []int{0, 1, 2, 3}, ordinals(idx.Overlapping(0, 1<<20)))
	assert.Empty(t, idx.Overlapping(third.Offset, third.Offset))
}

func TestIndexRecord(t *testing.T) {
	path := writeSample(t, t.TempDir(), "random.000", 3)
	idx, err := BuildIndex(path)
	require.NoError(t, err)
	defer idx.Close()

	// out of file order on purpose
	for _, n := range []int{3, 1, 2} {
		rec, err := idx.Record(n)
		require.NoError(t, err)
		rcid, err := rec.GetIntSubfield("VRID", 0, "RCID", 0)
		require.NoError(t, err)
		assert.Equal(t, n, rcid)
		assert.True(t, rec.IsClone())
		rec.Release()
	}

	_, err = idx.Record(99)
	assert.ErrorIs(t, err, ddf.ErrRange)
}

func TestIndexLeaderReuse(t *testing.T) {
	path := writeReuseSample(t, t.TempDir(), 4)
	idx, err := BuildIndex(path)
	require.NoError(t, err)
	defer idx.Close()

	require.Equal(t, 4, idx.Len())
	first, _ := idx.Extent(0)
	assert.False(t, first.DataOnly)
	for i := 1; i < idx.Len(); i++ {
		e, _ := idx.Extent(i)
		assert.True(t, e.DataOnly)
		assert.Equal(t, first.Offset, e.Base)
		assert.Equal(t, []string{"FRID"}, e.Tags)
	}

	for _, n := range []int{2, 0, 3} {
		rec, err := idx.Record(n)
		require.NoError(t, err)
		rcid, err := rec.GetIntSubfield("FRID", 0, "RCID", 0)
		require.NoError(t, err)
		assert.Equal(t, n+1, rcid)
		rec.Release()
	}
}
