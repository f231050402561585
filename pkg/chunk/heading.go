package chunk

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	headingNumberedRe = regexp.MustCompile(`^(?:\d+\.)+\s*[A-ZÇĞİÖŞÜ…]`)
	headingLetterDotRe = regexp.MustCompile(`^[A-Z]\.\s+`)
	headingLowerParenRe = regexp.MustCompile(`^[a-z]\)\s+`)
	headingMarkdownRe   = regexp.MustCompile(`^#{1,4}\s+`)
	headingKeywordRe    = regexp.MustCompile(`(?i)^(?:BÖLÜM|KISIM|MADDE|Chapter|Section)\b`)
)

// isHeading applies the heading-detection rules to a paragraph's
// first sentence text.
func isHeading(firstSentence string) bool {
	t := strings.TrimSpace(firstSentence)
	if t == "" {
		return false
	}
	switch {
	case headingNumberedRe.MatchString(t),
		headingLetterDotRe.MatchString(t),
		headingLowerParenRe.MatchString(t),
		headingMarkdownRe.MatchString(t),
		headingKeywordRe.MatchString(t):
		return true
	}
	if isAllCapsLine(t) {
		return true
	}
	return isShortUppercaseHeading(t)
}

// isAllCapsLine reports whether t is an all-uppercase line with at least
// 10 letters.
func isAllCapsLine(t string) bool {
	letters := 0
	for _, r := range t {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsLower(r) {
				return false
			}
		}
	}
	return letters >= 10
}

// isShortUppercaseHeading accepts a short line (<80 chars, <=10 words)
// beginning with an uppercase letter and containing no ". " sequence.
func isShortUppercaseHeading(t string) bool {
	if len(t) >= 80 {
		return false
	}
	if strings.Contains(t, ". ") {
		return false
	}
	words := strings.Fields(t)
	if len(words) == 0 || len(words) > 10 {
		return false
	}
	first := []rune(t)[0]
	return unicode.IsUpper(first)
}
