package embedding

import (
	"unicode"
	"unicode/utf8"
)

// RunesPerToken approximates the tokenizer ratio for Latin-script product text.
const RunesPerToken = 4

// Truncate cuts text to the rune budget implied by maxTokens.
// The cut lands on a rune boundary and backs off to the last whitespace found in
// the final 10% of the window, so the same input always truncates at the same point.
// maxTokens <= 0 disables truncation.
func Truncate(text string, maxTokens int) (string, bool) {
	if maxTokens <= 0 {
		return text, false
	}
	limit := maxTokens * RunesPerToken
	if utf8.RuneCountInString(text) <= limit {
		return text, false
	}

	// byte offset of every rune start up to limit
	cut, n := 0, 0
	lastSpace := -1
	window := limit - limit/10
	for i, r := range text {
		if n == limit {
			cut = i
			break
		}
		if n >= window && unicode.IsSpace(r) {
			lastSpace = i
		}
		n++
	}
	if lastSpace > 0 {
		cut = lastSpace
	}
	return text[:cut], true
}
