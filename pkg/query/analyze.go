// Package query implements the query analyzer: extraction of page,
// figure, and table references from a user query, a stop-word-stripped
// simplified query, and a Turkish/English/simple language guess.
package query

import (
	"regexp"
	"strconv"
	"strings"
)

// Language is the detected query language.
type Language string

const (
	Turkish Language = "turkish"
	English Language = "english"
	Simple  Language = "simple"
)

// Analysis is the result of analyzing a single query.
type Analysis struct {
	PageNumbers     []int
	FigureRefs      []string
	TableRefs       []string
	SimplifiedQuery string
	Language        Language
}

// HasSpecificReference reports whether the analysis found a page, figure,
// or table reference in the query.
func (a Analysis) HasSpecificReference() bool {
	return len(a.PageNumbers) > 0 || len(a.FigureRefs) > 0 || len(a.TableRefs) > 0
}

var (
	pageWordRe   = regexp.MustCompile(`(?i)(?:sayfa|page|s\.|p\.)\s*(\d+)`)
	pageSuffixRe = regexp.MustCompile(`(?i)(\d+)\.\s*sayfa`)
	pageOrdinalRe = regexp.MustCompile(`(?i)(\d+)(?:st|nd|rd|th)\s*page`)

	figureRe = regexp.MustCompile(`(?i)(?:figure|fig\.?|şekil)\s*(\d+[-.\s]?\d*)`)
	tableRe  = regexp.MustCompile(`(?i)(?:table|tablo)\s*(\d+[-.\s]?\d*)`)

	nonAlnumRe = regexp.MustCompile(`[^\p{L}\p{N}]+`)

	turkishDiacriticRe = regexp.MustCompile(`[çğıöşüÇĞİÖŞÜ]`)
)

// stopWords is the published ~30-token Turkish+English stop-word list.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "of": true, "in": true, "on": true,
	"at": true, "to": true, "for": true, "and": true, "or": true, "but": true,
	"what": true, "how": true, "why": true, "when": true, "where": true,
	"ne": true, "nedir": true, "nasıl": true, "neden": true, "niçin": true,
	"ve": true, "ile": true, "bir": true, "bu": true, "şu": true, "mi": true,
	"de": true, "da": true, "için": true,
}

// The turkishOnly and englishOnly subsets are used only to break
// ties when no diacritic is present.
var turkishOnly = map[string]bool{
	"ne": true, "nedir": true, "nasıl": true, "neden": true, "niçin": true,
	"ve": true, "ile": true, "bir": true, "bu": true, "şu": true, "mi": true,
	"de": true, "da": true, "için": true,
}

var englishOnly = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "of": true, "in": true, "on": true,
	"at": true, "to": true, "for": true, "and": true, "or": true, "but": true,
	"what": true, "how": true, "why": true, "when": true, "where": true,
}

// Analyze extracts structural references and a simplified query from a
// raw user query.
func Analyze(q string) Analysis {
	pages := extractPageNumbers(q)
	figures := extractRefs(figureRe, q)
	tables := extractRefs(tableRe, q)

	return Analysis{
		PageNumbers:     pages,
		FigureRefs:      figures,
		TableRefs:       tables,
		SimplifiedQuery: simplify(q),
		Language:        detectLanguage(q),
	}
}

func extractPageNumbers(q string) []int {
	var out []int
	for _, re := range []*regexp.Regexp{pageWordRe, pageSuffixRe, pageOrdinalRe} {
		for _, m := range re.FindAllStringSubmatch(q, -1) {
			if n, err := strconv.Atoi(m[1]); err == nil {
				out = append(out, n)
			}
		}
	}
	return out
}

func extractRefs(re *regexp.Regexp, q string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(q, -1) {
		ref := strings.TrimSpace(m[1])
		if ref != "" {
			out = append(out, ref)
		}
	}
	return out
}

// simplify lowercases the query, splits on non-alphanumerics, drops stop
// words and words shorter than 3 runes, keeps the first 5, and rejoins.
func simplify(q string) string {
	lower := strings.ToLower(q)
	tokens := nonAlnumRe.Split(lower, -1)

	var kept []string
	for _, t := range tokens {
		if t == "" {
			continue
		}
		if stopWords[t] {
			continue
		}
		if len([]rune(t)) < 3 {
			continue
		}
		kept = append(kept, t)
		if len(kept) == 5 {
			break
		}
	}
	return strings.Join(kept, " ")
}

// detectLanguage applies a character-class-plus-stop-word-count rule,
// in order: Turkish diacritics present wins outright; otherwise
// whichever stop-word family has more hits; otherwise "simple".
func detectLanguage(q string) Language {
	if turkishDiacriticRe.MatchString(q) {
		return Turkish
	}

	lower := strings.ToLower(q)
	tokens := nonAlnumRe.Split(lower, -1)

	var trCount, enCount int
	for _, t := range tokens {
		if turkishOnly[t] {
			trCount++
		}
		if englishOnly[t] {
			enCount++
		}
	}

	switch {
	case trCount > enCount:
		return Turkish
	case enCount > trCount:
		return English
	default:
		return Simple
	}
}
