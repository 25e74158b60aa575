package iso8211

import "testing"

func TestScanInt(t *testing.T) {
	tests := []struct {
		in       string
		maxChars int
		want     int
	}{
		{"  123", 5, 123},
		{"     ", 5, 0},
		{"00042", 5, 42},
		{"12345", 3, 123},
		{"-17  ", 5, -17},
		{"+8", 2, 8},
		{"12a45", 5, 12},
		{"abc", 3, 0},
		{"99", 10, 99},
		{"", 5, 0},
	}

	for _, tt := range tests {
		if got := ScanInt([]byte(tt.in), tt.maxChars); got != tt.want {
			t.Errorf("ScanInt(%q, %d) = %d, want %d", tt.in, tt.maxChars, got, tt.want)
		}
	}
}

func TestScanVariable(t *testing.T) {
	buf := []byte("NAME\x1fVALUE\x1e")

	if got := ScanVariable(buf, len(buf), UnitTerminator); got != 4 {
		t.Errorf("ScanVariable unit terminator = %d, want 4", got)
	}
	if got := ScanVariable(buf, len(buf), FieldTerminator); got != 10 {
		t.Errorf("ScanVariable field terminator = %d, want 10", got)
	}
	// Delimiter beyond maxChars is not seen
	if got := ScanVariable(buf, 3, UnitTerminator); got != 3 {
		t.Errorf("ScanVariable limited = %d, want 3", got)
	}
}

func TestFetchVariable(t *testing.T) {
	buf := []byte("Data set\x1fRCNM!RCID\x1e")

	value, consumed := FetchVariable(buf, len(buf), UnitTerminator, FieldTerminator)
	if value != "Data set" || consumed != 9 {
		t.Errorf("FetchVariable = (%q, %d), want (%q, 9)", value, consumed, "Data set")
	}

	value, consumed = FetchVariable(buf[consumed:], len(buf)-consumed, UnitTerminator, FieldTerminator)
	if value != "RCNM!RCID" || consumed != 10 {
		t.Errorf("FetchVariable = (%q, %d), want (%q, 10)", value, consumed, "RCNM!RCID")
	}

	// No terminator: everything is returned and nothing extra consumed
	value, consumed = FetchVariable([]byte("ABC"), 3, UnitTerminator, FieldTerminator)
	if value != "ABC" || consumed != 3 {
		t.Errorf("FetchVariable unterminated = (%q, %d), want (%q, 3)", value, consumed, "ABC")
	}
}

func TestIsDigits(t *testing.T) {
	tests := map[string]bool{
		"00123": true,
		"  123": true,
		"     ": false,
		"12a45": false,
		"":      false,
	}
	for in, want := range tests {
		if got := isDigits([]byte(in)); got != want {
			t.Errorf("isDigits(%q) = %v, want %v", in, got, want)
		}
	}
}
