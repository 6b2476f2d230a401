package session

import (
	"strings"
	"unicode"

	"github.com/rivo/uniseg"
)

// WordCount counts CJK ideographs individually and every other
// whitespace-separated run as one word.
func WordCount(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	count := 0
	inWord := false
	for _, r := range text {
		switch {
		case isCJK(r):
			count++
			inWord = false
		case unicode.IsSpace(r):
			inWord = false
		default:
			if !inWord {
				count++
				inWord = true
			}
		}
	}
	return count
}

// CharCount counts user-perceived characters (grapheme clusters).
func CharCount(text string) int {
	return uniseg.GraphemeClusterCount(text)
}

func isCJK(r rune) bool {
	return r >= 0x4e00 && r <= 0x9fa5
}
