package iso8211

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractMetadata(t *testing.T) {
	path := writeSample(t, t.TempDir(), "meta.000", 3)

	meta, err := ExtractMetadata(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), meta.FileSize)
	assert.Equal(t, 3, meta.FieldCount)
	assert.Equal(t, 4, meta.RecordCount)
	assert.Equal(t, map[string]int{"DSID": 1, "VRID": 3, "SG2D": 3}, meta.TagCounts)
	assert.Equal(t, byte('L'), meta.Leader.LeaderIden)
	assert.Greater(t, meta.FirstRecordOffset, int64(24))
}

func TestExtractMetadataFromDir(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "US5TEST")
	require.NoError(t, os.Mkdir(sub, 0o755))

	writeSample(t, sub, "US5TEST.000", 1)
	writeSample(t, root, "other.DDF", 2)
	writeSample(t, root, "ignored.txt", 1)
	writeGarbage(t, root, "broken.000")

	files, errs := ExtractMetadataFromDir(root)
	require.Len(t, files, 2)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "broken.000")

	only, errs := ExtractMetadataFromDir(root, ".ddf")
	assert.Empty(t, errs)
	require.Len(t, only, 1)
	assert.Equal(t, 3, only[0].RecordCount)
}

func TestFindFiles(t *testing.T) {
	root := t.TempDir()
	writeGarbage(t, root, "b.000")
	writeGarbage(t, root, "a.000")
	writeGarbage(t, root, "c.001")

	paths, err := FindFiles(root)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "a.000"), filepath.Join(root, "b.000")}, paths)

	paths, err = FindFiles(root, ".001")
	require.NoError(t, err)
	assert.Len(t, paths, 1)

	_, err = FindFiles(filepath.Join(root, "nope"))
	assert.Error(t, err)
}
