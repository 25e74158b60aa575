package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/beetlebugorg/iso8211/internal/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, dir string) string {
	t.Helper()
	doc := &document.Document{
		Fields: []document.FieldDef{
			{Tag: "DSID", Name: "Data set identification field", Struct: "vector", Type: "mixed-data-type",
				ArrayDescr: "RCNM!RCID!DSNM", FormatControls: "(b11,b14,A)"},
			{Tag: "VRID", Name: "Vector record identifier field", Struct: "vector", Type: "mixed-data-type",
				ArrayDescr: "RCNM!RCID", FormatControls: "(b11,b14)"},
		},
		Records: []document.Record{
			{Fields: []document.Field{{Tag: "DSID", Instances: []map[string]any{
				{"RCNM": 10, "RCID": 1, "DSNM": "US5CLI.000"},
			}}}},
		},
	}
	for i := 1; i <= 3; i++ {
		doc.Records = append(doc.Records, document.Record{
			Fields: []document.Field{{Tag: "VRID", Instances: []map[string]any{{"RCNM": 110, "RCID": i}}}},
		})
	}
	path := filepath.Join(dir, "US5CLI.000")
	require.NoError(t, document.CreateFile(path, doc, nil))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := execRootCmd(args, &out)
	return out.String(), err
}

func TestDumpCmd(t *testing.T) {
	path := writeFixture(t, t.TempDir())

	out, err := run(t, "dump", path)
	require.NoError(t, err)
	assert.Contains(t, out, "FieldDefn DSID")
	assert.Contains(t, out, `Subfield DSNM = "US5CLI.000"`)
	assert.Equal(t, 4, bytes.Count([]byte(out), []byte("Record\n")))

	out, err = run(t, "dump", "-n", "1", path)
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count([]byte(out), []byte("Record\n")))
}

func TestExportCreateCmd(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir)
	yamlPath := filepath.Join(dir, "doc.yaml")

	_, err := run(t, "export", "-o", yamlPath, path)
	require.NoError(t, err)

	copyPath := filepath.Join(dir, "copy.000")
	out, err := run(t, "create", yamlPath, copyPath)
	require.NoError(t, err)
	assert.Contains(t, out, "2 fields, 4 records")

	a, err := os.ReadFile(path)
	require.NoError(t, err)
	b, err := os.ReadFile(copyPath)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	out, err = run(t, "export", path)
	require.NoError(t, err)
	assert.Contains(t, out, "DSNM: US5CLI.000")
}

func TestIndexAndLocateCmd(t *testing.T) {
	path := writeFixture(t, t.TempDir())

	out, err := run(t, "index", path)
	require.NoError(t, err)
	assert.Contains(t, out, "RECORD")
	assert.Contains(t, out, "VRID")

	meta, err := run(t, "info", path)
	require.NoError(t, err)
	var first int64
	_, err = fmt.Sscanf(meta[bytes.Index([]byte(meta), []byte("first record:")):], "first record: %d", &first)
	require.NoError(t, err)

	out, err = run(t, "locate", "--dump", path, fmt.Sprint(first+1))
	require.NoError(t, err)
	assert.Contains(t, out, "record 0 at")
	assert.Contains(t, out, "Field DSID")

	_, err = run(t, "locate", path, "0")
	assert.ErrorIs(t, err, ErrRecordNotFound)
	_, err = run(t, "locate", path, "-5")
	assert.Error(t, err)
	_, err = run(t, "locate", path, "abc")
	assert.ErrorIs(t, err, ErrInvalidOffset)
}

func TestInfoCmd(t *testing.T) {
	path := writeFixture(t, t.TempDir())
	out, err := run(t, "info", path)
	require.NoError(t, err)
	assert.Contains(t, out, "records:        4")
	assert.Contains(t, out, "VRID   3")

	_, err = run(t, "info")
	assert.Error(t, err)
}

func TestScanCmd(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.000"), []byte("not a DDR, just some bytes"), 0o644))

	out, err := run(t, "scan", "-w", "2", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "1 files, 4 records, 1 failed")
}

func TestScanCmdCache(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	writeFixture(t, sub)

	// sub is reached twice, through dir and on its own
	out, err := run(t, "scan", "-w", "1", "--cache", "16", dir, sub)
	require.NoError(t, err)
	assert.Contains(t, out, "2 files, 8 records, 0 failed")
	assert.Contains(t, out, "cache: 1 hits, 1 misses")

	out, err = run(t, "scan", dir)
	require.NoError(t, err)
	assert.NotContains(t, out, "cache:")
}

func TestArgumentCount(t *testing.T) {
	_, err := run(t, "dump")
	assert.ErrorIs(t, err, ErrInvalidNumberOfArguments)
	_, err = run(t, "create", "only-one")
	assert.ErrorIs(t, err, ErrInvalidNumberOfArguments)
}
