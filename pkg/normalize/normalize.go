// Package normalize implements the text normalizer: a pure,
// side-effect-free cleanup of raw page text prior to chunking.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

// Opts configures Normalize. All fields default to false (zero value) so
// callers opt into each behavior explicitly.
type Opts struct {
	// PreserveTables wraps detected table regions in [TABLE_BEGIN]/[TABLE_END]
	// sentinels and excludes them from whitespace normalization.
	PreserveTables bool
	// NormalizeWhitespace trims lines, collapses inner space runs, and
	// collapses runs of 3+ newlines to exactly two, outside table regions.
	NormalizeWhitespace bool
	// DetectParagraphs is not read by Normalize: paragraph-separating
	// blank lines survive whitespace collapsing whether or not it is set,
	// and real paragraph assembly happens in the chunker, which consumes
	// this function's output.
	DetectParagraphs bool
	// IncludePageMarkers inserts a "--- Sayfa i/N ---" banner before the
	// page's text. Requires PageNumber/TotalPages to be passed to Normalize.
	IncludePageMarkers bool
	// RemoveHyphenation stitches "word-\nbreak" line-end hyphenation back together.
	RemoveHyphenation bool
}

var ligatureReplacer = strings.NewReplacer(
	"ﬁ", "fi",
	"ﬂ", "fl",
	"ﬀ", "ff",
	"ﬃ", "ffi",
	"ﬄ", "ffl",
	"…", "...",
	" ,", ",",
	" .", ".",
	" ;", ";",
	" :", ":",
	" !", "!",
	" ?", "?",
)

var (
	hyphenationRe  = regexp.MustCompile(`([\p{L}\p{N}])-\n(\p{Ll})`)
	innerSpacesRe  = regexp.MustCompile(`[ \t]+`)
	tripleNewlines = regexp.MustCompile(`\n{3,}`)

	pipeTableLineRe    = regexp.MustCompile(`\|.*\|`)
	asciiBorderLineRe  = regexp.MustCompile(`^[+\-=]{3,}$`)
	twoTabLineRe       = regexp.MustCompile(`\t.*\t`)
	tripleSpaceRunRe   = regexp.MustCompile(`\S[ ]{3,}\S`)
)

const (
	tableBegin = "[TABLE_BEGIN]"
	tableEnd   = "[TABLE_END]"
)

// Normalize cleans a single page's raw text. pageNumber/totalPages are
// only consulted when opts.IncludePageMarkers is set; pass 0 for both when
// the caller has no page context.
func Normalize(raw string, pageNumber, totalPages int, opts Opts) string {
	s := ligatureReplacer.Replace(raw)

	if opts.PreserveTables {
		s = markTables(s)
	}

	if opts.NormalizeWhitespace {
		s = normalizeWhitespace(s, opts.PreserveTables)
	}

	if opts.RemoveHyphenation {
		s = hyphenationRe.ReplaceAllString(s, "$1$2")
	}

	if opts.IncludePageMarkers && totalPages > 0 {
		banner := "\n--- Sayfa " + strconv.Itoa(pageNumber) + "/" + strconv.Itoa(totalPages) + " ---\n"
		s = banner + s
	}

	return s
}

// markTables wraps contiguous table-like line runs in sentinel tokens.
func markTables(s string) string {
	lines := strings.Split(s, "\n")
	isTable := make([]bool, len(lines))

	spaceRunLines := 0
	for _, l := range lines {
		if tripleSpaceRunRe.MatchString(l) {
			spaceRunLines++
		}
	}
	spaceRunIsTable := len(lines) >= 3 && spaceRunLines*2 >= len(lines)

	for i, l := range lines {
		switch {
		case pipeTableLineRe.MatchString(l),
			asciiBorderLineRe.MatchString(strings.TrimSpace(l)),
			twoTabLineRe.MatchString(l):
			isTable[i] = true
		case spaceRunIsTable && tripleSpaceRunRe.MatchString(l):
			isTable[i] = true
		}
	}

	var b strings.Builder
	inTable := false
	for i, l := range lines {
		if isTable[i] && !inTable {
			b.WriteString(tableBegin)
			b.WriteString("\n")
			inTable = true
		} else if !isTable[i] && inTable {
			b.WriteString(tableEnd)
			b.WriteString("\n")
			inTable = false
		}
		b.WriteString(l)
		if i < len(lines)-1 {
			b.WriteString("\n")
		}
	}
	if inTable {
		b.WriteString("\n")
		b.WriteString(tableEnd)
	}
	return b.String()
}

// normalizeWhitespace trims and collapses whitespace outside table regions.
func normalizeWhitespace(s string, skipTables bool) string {
	lines := strings.Split(s, "\n")
	inTable := false
	for i, l := range lines {
		trimmed := strings.TrimSpace(l)
		if skipTables {
			if trimmed == tableBegin {
				inTable = true
				lines[i] = trimmed
				continue
			}
			if trimmed == tableEnd {
				inTable = false
				lines[i] = trimmed
				continue
			}
			if inTable {
				continue
			}
		}
		lines[i] = innerSpacesRe.ReplaceAllString(trimmed, " ")
	}
	s = strings.Join(lines, "\n")
	return tripleNewlines.ReplaceAllString(s, "\n\n")
}
