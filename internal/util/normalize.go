// Package util provides utility functions.
package util

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/width"
)

// NormalizeAnswer normalizes a typed captcha answer for comparison.
// Full-width characters are narrowed, surrounding whitespace (including the
// ideographic space) is trimmed and letters are upper-cased.
func NormalizeAnswer(s string) string {
	s = width.Narrow.String(s)
	s = strings.TrimSpace(s)
	// A Caser keeps state, so one is made per call.
	return cases.Upper(language.Und).String(s)
}

// AnswerMatch checks if input matches answer after normalization.
func AnswerMatch(input, answer string) bool {
	return NormalizeAnswer(input) == NormalizeAnswer(answer)
}
