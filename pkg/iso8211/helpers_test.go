package iso8211

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// dirEntry is one field of a hand-built record.
type dirEntry struct {
	tag  string
	data []byte
}

// ddrRecord builds a DDR with 3/4/4 directory entry widths and a field
// control length of 9.
func ddrRecord(entries ...dirEntry) []byte {
	dir, area := directoryAndArea(entries)
	fieldAreaStart := LeaderSize + len(dir)
	lead := fmt.Sprintf("%05d3LE1 09%05d ! 3404", fieldAreaStart+len(area), fieldAreaStart)
	return concat([]byte(lead), dir, area)
}

// dataRecord builds a data record with 3/4/4 directory entry widths.
func dataRecord(iden byte, entries ...dirEntry) []byte {
	dir, area := directoryAndArea(entries)
	fieldAreaStart := LeaderSize + len(dir)
	lead := fmt.Sprintf("%05d %c     %05d   3404", fieldAreaStart+len(area), iden, fieldAreaStart)
	return concat([]byte(lead), dir, area)
}

func directoryAndArea(entries []dirEntry) (dir, area []byte) {
	for _, e := range entries {
		dir = fmt.Appendf(dir, "%s%03d%04d", e.tag, len(e.data), len(area))
		area = append(area, e.data...)
	}
	return append(dir, FieldTerminator), area
}

// fieldDesc builds a DDR field area entry.
func fieldDesc(controls, name, descr, format string) dirEntry {
	return dirEntry{data: []byte(controls + name + "\x1f" + descr + "\x1f" + format + "\x1e")}
}

func withTag(tag string, e dirEntry) dirEntry {
	e.tag = tag
	return e
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.000")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// testDDR defines a fixed-width TEST field and a variable NAME field.
func testDDR() []byte {
	return ddrRecord(
		withTag("0000", fieldDesc("0000;&   ", "Test file", "", "")),
		withTag("TEST", fieldDesc("1600;&   ", "Test field", "", "(A(3))")),
		withTag("NAME", fieldDesc("1600;&   ", "Name field", "NAME!CODE", "(A,I)")),
	)
}

func openBytes(t *testing.T, data []byte) *Module {
	t.Helper()
	m, err := Open(writeTemp(t, data))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}
