package iso8211

import (
	"os"
	"path/filepath"
	"testing"

	ddf "github.com/beetlebugorg/iso8211/pkg/iso8211"
	"github.com/stretchr/testify/require"
)

// writeSample authors a small chart-like file: a DSID record followed by
// vectors records 1..vectors, each with an id and two coordinates.
func writeSample(t *testing.T, dir, name string, vectors int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	m, err := ddf.Create(path)
	require.NoError(t, err)

	dsid, err := ddf.NewFieldDefn("DSID", "Data set identification field", "RCNM!RCID!DSNM",
		ddf.Vector, ddf.MixedDataType, "(b11,b14,A)")
	require.NoError(t, err)
	vrid, err := ddf.NewFieldDefn("VRID", "Vector record identifier field", "RCNM!RCID",
		ddf.Vector, ddf.MixedDataType, "(b11,b14)")
	require.NoError(t, err)
	sg2d, err := ddf.NewFieldDefn("SG2D", "2-D coordinate field", "*YCOO!XCOO",
		ddf.Array, ddf.MixedDataType, "(2b24)")
	require.NoError(t, err)
	for _, d := range []*ddf.FieldDefn{dsid, vrid, sg2d} {
		require.NoError(t, m.AddField(d))
	}

	rec := ddf.NewRecord(m)
	_, err = rec.AddField(dsid)
	require.NoError(t, err)
	require.NoError(t, rec.SetIntSubfield("DSID", 0, "RCNM", 0, 10))
	require.NoError(t, rec.SetIntSubfield("DSID", 0, "RCID", 0, 1))
	require.NoError(t, rec.SetStringSubfield("DSID", 0, "DSNM", 0, "US5TEST.000"))
	require.NoError(t, rec.Write())

	for i := 1; i <= vectors; i++ {
		rec := ddf.NewRecord(m)
		_, err := rec.AddField(vrid)
		require.NoError(t, err)
		_, err = rec.AddField(sg2d)
		require.NoError(t, err)
		require.NoError(t, rec.SetIntSubfield("VRID", 0, "RCNM", 0, 110))
		require.NoError(t, rec.SetIntSubfield("VRID", 0, "RCID", 0, i))
		for j := 0; j < 2; j++ {
			require.NoError(t, rec.SetIntSubfield("SG2D", 0, "YCOO", j, 420000000+i*1000+j))
			require.NoError(t, rec.SetIntSubfield("SG2D", 0, "XCOO", j, -710000000-i*1000-j))
		}
		require.NoError(t, rec.Write())
	}
	require.NoError(t, m.Close())
	return path
}

// writeReuseSample authors count feature records where only the first
// carries a leader and directory.
func writeReuseSample(t *testing.T, dir string, count int) string {
	t.Helper()
	path := filepath.Join(dir, "reuse.000")
	m, err := ddf.Create(path)
	require.NoError(t, err)
	frid, err := ddf.NewFieldDefn("FRID", "Feature record identifier field", "RCNM!RCID!OBJL",
		ddf.Vector, ddf.MixedDataType, "(b11,b14,b12)")
	require.NoError(t, err)
	require.NoError(t, m.AddField(frid))

	for i := 1; i <= count; i++ {
		rec := ddf.NewRecord(m)
		_, err := rec.AddField(frid)
		require.NoError(t, err)
		require.NoError(t, rec.SetIntSubfield("FRID", 0, "RCNM", 0, 100))
		require.NoError(t, rec.SetIntSubfield("FRID", 0, "RCID", 0, i))
		require.NoError(t, rec.SetIntSubfield("FRID", 0, "OBJL", 0, 42))
		rec.SetReuseHeader(i == 1)
		require.NoError(t, rec.Write())
	}
	require.NoError(t, m.Close())
	return path
}

func writeGarbage(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("this is not an ISO 8211 file at all"), 0o644))
	return path
}
