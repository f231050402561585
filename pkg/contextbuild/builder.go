// Package contextbuild implements the context builder: it takes the
// Retrieval Engine's already-ranked ScoredChunk list and serializes a
// prefix of it, bounded by a token budget, into the fixed context-string
// shape downstream LLM prompts rely on — header, numbered per-chunk
// banners, and a footer page summary.
package contextbuild

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/foliumapp/ragcore/pkg/errs"
	"github.com/foliumapp/ragcore/pkg/retrieve"
)

// Config controls token estimation and the fixed header/guideline text.
type Config struct {
	// TokenMultiplier estimates tokens as ceil(wordCount * TokenMultiplier).
	TokenMultiplier float64
	// Header is the "# <header>" line's title, without the leading "# ".
	Header string
	// Guidelines is the instructional paragraph emitted under the header.
	Guidelines string
	// HighMatchThreshold / VeryRelevantThreshold gate the confidence badges.
	HighMatchThreshold    float32
	VeryRelevantThreshold float64
	// MaxFooterPages bounds how many page numbers the footer lists before
	// collapsing to "first…last (N pages)".
	MaxFooterPages int
}

// DefaultConfig returns the standard context-builder defaults.
func DefaultConfig() Config {
	return Config{
		TokenMultiplier:       1.3,
		Header:                "Retrieved Context",
		Guidelines:            "The following excerpts were retrieved from the document to help answer the question. Cite sections by their bracketed number when referencing specific information.",
		HighMatchThreshold:    0.7,
		VeryRelevantThreshold: 8.0,
		MaxFooterPages:        5,
	}
}

// Builder is the context builder.
type Builder struct {
	Config Config
}

// NewBuilder constructs a Builder with the given config.
func NewBuilder(cfg Config) *Builder {
	return &Builder{Config: cfg}
}

// Build serializes a token-budget-bounded prefix of chunks into the
// fixed context-string shape: header, per-chunk banners and metadata
// badges, then footer. Chunks are assumed
// already ranked; Build never reorders them. Returns errs.TokenLimitExceeded
// when no chunk fits: the empty input, or maxTokens too small for the
// header plus the first chunk. The footer is added after the inclusion
// loop and is not counted against maxTokens.
func (b *Builder) Build(chunks []retrieve.ScoredChunk, maxTokens int) (string, error) {
	cfg := b.Config
	if cfg.TokenMultiplier <= 0 {
		cfg = DefaultConfig()
	}

	var body strings.Builder
	body.WriteString("# ")
	body.WriteString(cfg.Header)
	body.WriteString("\n")
	body.WriteString(cfg.Guidelines)
	body.WriteString("\n")
	headerTokens := estimateTokens(body.String(), cfg.TokenMultiplier)

	var included []retrieve.ScoredChunk
	running := headerTokens
	var chunkBuf strings.Builder

	for _, c := range chunks {
		banner := formatBanner(len(included)+1, c, cfg)
		chunkBuf.Reset()
		chunkBuf.WriteString("\n---\n")
		chunkBuf.WriteString(banner)
		chunkBuf.WriteString("\n")
		chunkBuf.WriteString(c.Content)
		chunkBuf.WriteString("\n")

		formattedTokens := estimateTokens(chunkBuf.String(), cfg.TokenMultiplier)
		if running+formattedTokens > maxTokens {
			break
		}
		body.WriteString(chunkBuf.String())
		running += formattedTokens
		included = append(included, c)
	}

	footer := formatFooter(included, cfg.MaxFooterPages)
	body.WriteString("\n---\n")
	body.WriteString(footer)
	running += estimateTokens("\n---\n"+footer, cfg.TokenMultiplier)

	if len(included) == 0 {
		return "", errs.New("contextbuild.Build", errs.TokenLimitExceeded,
			fmt.Errorf("maxTokens=%d too small to fit any chunk alongside header and footer", maxTokens))
	}

	return body.String(), nil
}

// estimateTokens implements ceil(wordCount * tokenMultiplier).
func estimateTokens(s string, tokenMultiplier float64) int {
	words := len(strings.Fields(s))
	return int(math.Ceil(float64(words) * tokenMultiplier))
}

// formatBanner builds the "[n](Page X) [confidence] [metadata]" banner
// line, concatenating only the pieces that are present.
func formatBanner(n int, c retrieve.ScoredChunk, cfg Config) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d]", n)

	if pageInfo := formatPageInfo(c); pageInfo != "" {
		b.WriteString(pageInfo)
	}

	if confidence := formatConfidence(c, cfg); confidence != "" {
		b.WriteString(" ")
		b.WriteString(confidence)
	}

	if badges := formatMetadataBadges(c); badges != "" {
		b.WriteString(" [")
		b.WriteString(badges)
		b.WriteString("]")
	}

	return b.String()
}

func formatPageInfo(c retrieve.ScoredChunk) string {
	switch {
	case c.StartPage > 0 && c.EndPage > 0 && c.EndPage != c.StartPage:
		return fmt.Sprintf("(Page %d-%d)", c.StartPage, c.EndPage)
	case c.PageNumber > 0:
		return fmt.Sprintf("(Page %d)", c.PageNumber)
	case c.StartPage > 0:
		return fmt.Sprintf("(Page %d)", c.StartPage)
	default:
		return ""
	}
}

func formatConfidence(c retrieve.ScoredChunk, cfg Config) string {
	if c.RerankScore >= cfg.VeryRelevantThreshold {
		return "[Very Relevant]"
	}
	if c.VectorScore >= cfg.HighMatchThreshold {
		return "[High Match]"
	}
	return ""
}

func formatMetadataBadges(c retrieve.ScoredChunk) string {
	var badges []string
	if c.SectionTitle != "" {
		badges = append(badges, "📑 "+c.SectionTitle)
	}
	if c.ContainsTable {
		badges = append(badges, "📊 Table")
	}
	if c.ContainsList {
		badges = append(badges, "📝 List")
	}
	if c.ImageCount > 0 {
		badges = append(badges, fmt.Sprintf("🖼️ %d images", c.ImageCount))
	}
	return strings.Join(badges, " | ")
}

// formatFooter lists the sorted, de-duplicated page numbers seen in the
// selected prefix, collapsing to "first…last (N pages)" when there are
// more than maxFooterPages.
func formatFooter(chunks []retrieve.ScoredChunk, maxFooterPages int) string {
	seen := make(map[int]bool)
	for _, c := range chunks {
		if c.PageNumber > 0 {
			seen[c.PageNumber] = true
		}
		for p := c.StartPage; p > 0 && c.EndPage > 0 && p <= c.EndPage; p++ {
			seen[p] = true
		}
	}
	pages := make([]int, 0, len(seen))
	for p := range seen {
		pages = append(pages, p)
	}
	sort.Ints(pages)

	var pageSummary string
	switch {
	case len(pages) == 0:
		pageSummary = "none"
	case len(pages) > maxFooterPages:
		pageSummary = fmt.Sprintf("%d…%d (%d pages)", pages[0], pages[len(pages)-1], len(pages))
	default:
		strs := make([]string, len(pages))
		for i, p := range pages {
			strs[i] = fmt.Sprintf("%d", p)
		}
		pageSummary = strings.Join(strs, ", ")
	}

	return fmt.Sprintf("Summary: %d sections, Pages: %s\n(This context was assembled from the document's retrieved sections; verify critical details against the source pages above.)", len(chunks), pageSummary)
}
