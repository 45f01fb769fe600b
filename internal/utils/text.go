package utils

import "unicode/utf8"

// TruncateUTF8 caps s at maxBytes without splitting a rune.
// It reports whether anything was cut.
func TruncateUTF8(s string, maxBytes int) (string, bool) {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s, false
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], true
}
