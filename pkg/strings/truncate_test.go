package strings

import (
	"testing"
	"unicode/utf8"
)

func TestSingleLine(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{"short string unchanged", "Veg A", 10, "Veg A"},
		{"exact length unchanged", "Veg A", 5, "Veg A"},
		{"long string truncated", "Flower room north wing", 15, "Flower room ..."},
		{"newlines collapsed", "Harvest\n\nnotes", 20, "Harvest notes"},
		{"carriage returns and tabs", "a\r\n\tb", 20, "a b"},
		{"surrounding whitespace trimmed", "  Trim  ", 20, "Trim"},
		{"whitespace only becomes empty", " \n\t ", 10, ""},
		{"small maxLen clamped", "clones", 2, "c..."},
		{"negative maxLen clamped", "clones", -5, "c..."},
		{"unicode kept whole", "Größe über", 20, "Größe über"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SingleLine(tt.input, tt.maxLen); got != tt.expected {
				t.Errorf("SingleLine(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.expected)
			}
		})
	}
}

func TestSingleLine_CountsRunes(t *testing.T) {
	result := SingleLine("äöüßéè", 5)
	if result != "äö..." {
		t.Errorf("Expected %q but got %q", "äö...", result)
	}
	if !utf8.ValidString(result) {
		t.Error("Expected valid UTF-8")
	}
}
