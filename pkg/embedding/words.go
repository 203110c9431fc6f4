package embedding

import "unicode"

const (
	maxWordBytes = 200
	maxWordRunes = 100
)

// ValidWord reports whether a word is acceptable in an artifact:
// non-empty, at most 200 bytes, at most 100 characters, and free of
// control characters. Loaders either skip or reject invalid words
// depending on configuration.
func ValidWord(word string) bool {
	if len(word) == 0 || len(word) > maxWordBytes {
		return false
	}
	runes := 0
	for _, r := range word {
		if unicode.IsControl(r) {
			return false
		}
		runes++
		if runes > maxWordRunes {
			return false
		}
	}
	return true
}
