package channel

import (
	"strings"
	"unicode/utf8"
)

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// IsTestURL reports whether url points at the reserved example.com host that
// channels short-circuit instead of calling.
func IsTestURL(url string) bool {
	return strings.HasPrefix(url, "https://example.com")
}
