// Package textnorm cleans submitted text and counts its words.
package textnorm

import (
	"strings"
	"unicode"
)

// allowedPunctuation lists the punctuation runes that survive cleaning.
// Typographic quotes are kept alongside their ASCII forms.
const allowedPunctuation = `,.!?"':()-“”‘’`

// Clean removes every rune that is not a letter, a digit, whitespace or one of
// the allowed punctuation marks. The result is idempotent:
// Clean(Clean(s)) == Clean(s).
func Clean(text string) string {
	return strings.Map(func(r rune) rune {
		if keep(r) {
			return r
		}
		return -1
	}, text)
}

func keep(r rune) bool {
	switch {
	case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
		return true
	default:
		return strings.ContainsRune(allowedPunctuation, r)
	}
}

// WordCount returns the number of maximal runs of non-whitespace runes in text.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
