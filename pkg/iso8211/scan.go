package iso8211

// Reserved delimiters. Neither byte may appear inside a decoded value.
const (
	FieldTerminator byte = 0x1E
	UnitTerminator  byte = 0x1F
)

// LeaderSize is the fixed size of the leader that precedes every record.
const LeaderSize = 24

// ScanInt parses a decimal integer from the first maxChars bytes of buf.
//
// Leading spaces are skipped and an optional sign is accepted. Scanning stops
// at the first non-digit. Blank or malformed input yields 0; the format does
// not define any recovery for these fields.
//
// Example:
//
//	iso8211.ScanInt([]byte("  123"), 5) // 123
//	iso8211.ScanInt([]byte("     "), 5) // 0
func ScanInt(buf []byte, maxChars int) int {
	if maxChars > len(buf) {
		maxChars = len(buf)
	}
	i := 0
	for i < maxChars && buf[i] == ' ' {
		i++
	}
	neg := false
	if i < maxChars && (buf[i] == '-' || buf[i] == '+') {
		neg = buf[i] == '-'
		i++
	}
	n := 0
	for ; i < maxChars; i++ {
		c := buf[i]
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		return -n
	}
	return n
}

// ScanVariable returns the offset of the first delim within the first
// maxChars bytes of buf, or maxChars when there is none.
func ScanVariable(buf []byte, maxChars int, delim byte) int {
	if maxChars > len(buf) {
		maxChars = len(buf)
	}
	for i := 0; i < maxChars; i++ {
		if buf[i] == delim {
			return i
		}
	}
	return maxChars
}

// FetchVariable copies the prefix of buf terminated by delim1 or delim2.
// consumed includes the terminator when one was found within maxChars.
func FetchVariable(buf []byte, maxChars int, delim1, delim2 byte) (value string, consumed int) {
	if maxChars > len(buf) {
		maxChars = len(buf)
	}
	i := 0
	for i < maxChars && buf[i] != delim1 && buf[i] != delim2 {
		i++
	}
	consumed = i
	if i < maxChars {
		consumed++
	}
	return string(buf[:i]), consumed
}

// isDigits reports whether every byte is an ASCII digit or a space and at
// least one digit is present.
func isDigits(b []byte) bool {
	seen := false
	for _, c := range b {
		switch {
		case c >= '0' && c <= '9':
			seen = true
		case c == ' ':
		default:
			return false
		}
	}
	return seen
}
