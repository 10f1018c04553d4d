// Package strings holds text helpers shared by output code.
package strings

import (
	"strings"
)

// MinTruncateLen is the smallest maxLen SingleLine honors. Anything smaller
// would leave no room for content plus "...".
const MinTruncateLen = 4

// SingleLine collapses all whitespace runs in s to single spaces and cuts the
// result to at most maxLen runes, ending in "..." when cut. Table cells use
// it so that API values with newlines keep one row per item.
func SingleLine(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
