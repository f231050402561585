package chunk

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var pageMarkerRe = regexp.MustCompile(`^---\s*Sayfa\s+(\d+)/(\d+)\s*---$`)

const tableoPrefix = "[TABLO]"

// internalParagraph is the ephemeral unit the chunk-assembly loop consumes:
// a Paragraph enriched with the per-paragraph flags the loop needs.
type internalParagraph struct {
	Sentences     []Sentence
	PageNumber    int
	IsHeading     bool
	ContainsTable bool
	ContainsList  bool
}

// segmentParagraphs splits cleaned page text into the ephemeral paragraph
// stream the chunk-assembly loop walks: text paragraphs, one-sentence
// table paragraphs, and page-break paragraphs.
func segmentParagraphs(cleanText string) []internalParagraph {
	lines := strings.Split(cleanText, "\n")
	var out []internalParagraph
	currentPage := 0

	var buf []string
	flush := func() {
		if len(buf) == 0 {
			return
		}
		text := strings.TrimSpace(strings.Join(buf, " "))
		lines := append([]string(nil), buf...)
		buf = buf[:0]
		if text == "" {
			return
		}
		sentences := splitSentences(text, currentPage)
		containsTable, containsList := detectTableList(lines, false)
		mdHints := detectMarkdownStructure(strings.Join(lines, "\n"))
		p := internalParagraph{
			Sentences:     sentences,
			PageNumber:    currentPage,
			ContainsTable: containsTable || mdHints.table,
			ContainsList:  containsList || mdHints.list,
		}
		if len(sentences) > 0 {
			p.IsHeading = isHeading(sentences[0].Text) || mdHints.heading
		}
		out = append(out, p)
	}

	i := 0
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == tableBeginMarker:
			flush()
			var tableLines []string
			i++
			for i < len(lines) && strings.TrimSpace(lines[i]) != tableEndMarker {
				tableLines = append(tableLines, lines[i])
				i++
			}
			content := strings.TrimSpace(strings.Join(tableLines, "\n"))
			out = append(out, internalParagraph{
				Sentences: []Sentence{{
					Text:       tableoPrefix + " " + content,
					WordCount:  wordCount(content),
					PageNumber: currentPage,
				}},
				PageNumber:    currentPage,
				ContainsTable: true,
			})
		case pageMarkerRe.MatchString(trimmed):
			flush()
			m := pageMarkerRe.FindStringSubmatch(trimmed)
			pn, _ := strconv.Atoi(m[1])
			currentPage = pn
			out = append(out, internalParagraph{
				Sentences: []Sentence{{
					IsPageBreak: true,
					PageNumber:  currentPage,
				}},
				PageNumber: currentPage,
			})
		case trimmed == "":
			flush()
		default:
			buf = append(buf, line)
		}
		i++
	}
	flush()

	return out
}

const (
	tableBeginMarker = "[TABLE_BEGIN]"
	tableEndMarker   = "[TABLE_END]"
)

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// splitSentences applies the sentence-boundary rule: a split point follows
// one of [.!?:] immediately before whitespace that is itself followed by
// an uppercase letter, digit, quote, or opening bracket.
func splitSentences(s string, pageNumber int) []Sentence {
	runes := []rune(s)
	var out []Sentence
	start := 0
	i := 0
	for i < len(runes) {
		c := runes[i]
		if isSentenceBoundaryPunct(c) {
			j := i + 1
			sawSpace := false
			for j < len(runes) && unicode.IsSpace(runes[j]) {
				sawSpace = true
				j++
			}
			if sawSpace && j < len(runes) && isSentenceStarter(runes[j]) {
				seg := strings.TrimSpace(string(runes[start : i+1]))
				if seg != "" {
					out = append(out, Sentence{Text: seg, WordCount: wordCount(seg), PageNumber: pageNumber})
				}
				start = j
				i = j
				continue
			}
		}
		i++
	}
	if start < len(runes) {
		seg := strings.TrimSpace(string(runes[start:]))
		if seg != "" {
			out = append(out, Sentence{Text: seg, WordCount: wordCount(seg), PageNumber: pageNumber})
		}
	}
	return out
}

func isSentenceBoundaryPunct(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == ':'
}

func isSentenceStarter(r rune) bool {
	return unicode.IsUpper(r) || unicode.IsDigit(r) || r == '"' || r == '['
}
