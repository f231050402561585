package chunk_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/foliumapp/ragcore/pkg/chunk"
)

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = "word"
	}
	return strings.Join(w, " ")
}

// page builds a page-marker-delimited block of n words unique to pageNum,
// the shape the normalizer leaves behind for the chunker to segment.
func page(pageNum, total, n int) string {
	if n == 0 {
		return fmt.Sprintf("--- Sayfa %d/%d ---", pageNum, total)
	}
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("p%dw%d", pageNum, i)
	}
	return fmt.Sprintf("--- Sayfa %d/%d ---\n%s.", pageNum, total, strings.Join(w, " "))
}

func TestChunk_EmptyInputProducesNoChunks(t *testing.T) {
	c, err := chunk.New(chunk.DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Chunk("   ", "f1", nil); len(got) != 0 {
		t.Fatalf("expected no chunks for blank input, got %d", len(got))
	}
}

func TestChunk_DenseChunkIndex(t *testing.T) {
	c, err := chunk.New(chunk.DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var sb strings.Builder
	for p := 1; p <= 5; p++ {
		sb.WriteString(page(p, 5, 300))
		sb.WriteString("\n")
	}

	chunks := c.Chunk(sb.String(), "f1", nil)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks from 1500 words, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.ChunkIndex != i {
			t.Fatalf("expected dense chunkIndex, chunk %d has index %d", i, ch.ChunkIndex)
		}
		if ch.FileID != "f1" {
			t.Fatalf("expected fileID f1, got %s", ch.FileID)
		}
	}
}

func TestChunk_StartPageNeverExceedsEndPage(t *testing.T) {
	c, err := chunk.New(chunk.DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var sb strings.Builder
	for p := 1; p <= 4; p++ {
		sb.WriteString(page(p, 4, 200))
		sb.WriteString("\n")
	}

	chunks := c.Chunk(sb.String(), "f1", nil)
	for _, ch := range chunks {
		if ch.StartPage > ch.EndPage {
			t.Fatalf("chunk %d: startPage %d > endPage %d", ch.ChunkIndex, ch.StartPage, ch.EndPage)
		}
		if ch.PageNumber != ch.StartPage {
			t.Fatalf("chunk %d: pageNumber %d should equal startPage %d", ch.ChunkIndex, ch.PageNumber, ch.StartPage)
		}
	}
}

func TestChunk_NonTrailingChunksMeetMinimumSize(t *testing.T) {
	cfg := chunk.DefaultConfig()
	c, err := chunk.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var sb strings.Builder
	for p := 1; p <= 6; p++ {
		sb.WriteString(page(p, 6, 200))
		sb.WriteString("\n")
	}

	chunks := c.Chunk(sb.String(), "f1", nil)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, ch := range chunks[:len(chunks)-1] {
		wc := len(strings.Fields(ch.Content))
		if wc < cfg.MinChunkSize {
			t.Fatalf("non-trailing chunk %d has %d words, below MinChunkSize %d", i, wc, cfg.MinChunkSize)
		}
	}
}

func TestChunk_ImagesAttachByPageRange(t *testing.T) {
	c, err := chunk.New(chunk.DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var sb strings.Builder
	for p := 1; p <= 3; p++ {
		sb.WriteString(page(p, 3, 300))
		sb.WriteString("\n")
	}

	img := chunk.Image{PageNumber: 2}
	chunks := c.Chunk(sb.String(), "f1", []chunk.Image{img})

	found := false
	for _, ch := range chunks {
		for _, ref := range ch.ImageReferences {
			if ref == img.ID {
				found = true
				if 2 < ch.StartPage || 2 > ch.EndPage {
					t.Fatalf("image attached to chunk whose page span %d-%d excludes page 2", ch.StartPage, ch.EndPage)
				}
			}
		}
	}
	if !found {
		t.Fatal("expected the page-2 image to attach to some chunk")
	}
}

func TestChunk_ExactDuplicateParagraphsCollapse(t *testing.T) {
	c, err := chunk.New(chunk.DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	repeated := words(520) + "."
	text := page(1, 1, 0) + "\n" + repeated + "\n\n" + repeated + "\n\n" + repeated
	chunks := c.Chunk(text, "f1", nil)

	if len(chunks) != 1 {
		t.Fatalf("expected repeated chunk-sized paragraphs to collapse into one chunk, got %d", len(chunks))
	}
}

func TestChunk_DistinctContentIsNotCollapsed(t *testing.T) {
	c, err := chunk.New(chunk.DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var sb strings.Builder
	sb.WriteString(page(1, 2, 0))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("alpha beta gamma delta epsilon zeta. ", 90))
	sb.WriteString("\n\n")
	sb.WriteString(page(2, 2, 0))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("whale shark dolphin reef coral tide. ", 90))

	chunks := c.Chunk(sb.String(), "f1", nil)
	if len(chunks) < 2 {
		t.Fatalf("expected distinct content to survive as separate chunks, got %d", len(chunks))
	}
}

func TestChunk_HeadingStartsNewChunkAndSetsSectionTitle(t *testing.T) {
	c, err := chunk.New(chunk.DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var sb strings.Builder
	sb.WriteString(page(1, 1, 0))
	sb.WriteString("\n")
	sb.WriteString(words(200))
	sb.WriteString(".\n\n")
	sb.WriteString("## Marine Mammals\n\n")
	sb.WriteString(words(200))
	sb.WriteString(".")

	chunks := c.Chunk(sb.String(), "f1", nil)

	sawHeading := false
	for _, ch := range chunks {
		if ch.SectionTitle != "" {
			sawHeading = true
		}
	}
	if !sawHeading {
		t.Fatal("expected at least one chunk to carry a section title from the heading")
	}
}

func TestConfig_ValidateFillsDefaultsAndRejectsBadSizing(t *testing.T) {
	cfg := chunk.Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("zero-value config should fill defaults, got error: %v", err)
	}
	if cfg.TargetChunkSize != chunk.DefaultConfig().TargetChunkSize {
		t.Fatalf("expected default target size, got %d", cfg.TargetChunkSize)
	}

	bad := chunk.Config{MinChunkSize: 100, MaxChunkSize: 50}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected an error when minChunkSize >= maxChunkSize")
	}

	badTarget := chunk.Config{TargetChunkSize: 1000, MaxChunkSize: 500, MinChunkSize: 10}
	if err := badTarget.Validate(); err == nil {
		t.Fatal("expected an error when targetChunkSize exceeds maxChunkSize")
	}
}

func TestChunk_MultiPageIngestProducesContiguousPageSpans(t *testing.T) {
	// E1: a multi-page document chunks into a contiguous, page-ordered run.
	c, err := chunk.New(chunk.DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var sb strings.Builder
	for p := 1; p <= 10; p++ {
		sb.WriteString(page(p, 10, 150))
		sb.WriteString("\n")
	}

	chunks := c.Chunk(sb.String(), "doc-1", nil)
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk from a 10-page document")
	}

	lastStart, lastEnd := 0, 0
	for i, ch := range chunks {
		if ch.StartPage < lastStart {
			t.Fatalf("chunk %d starts at page %d, before prior chunk started at %d", i, ch.StartPage, lastStart)
		}
		if i > 0 && ch.StartPage > lastEnd+1 {
			t.Fatalf("chunk %d starts at page %d, leaving a gap after prior chunk ended at %d", i, ch.StartPage, lastEnd)
		}
		lastStart, lastEnd = ch.StartPage, ch.EndPage
	}
	if chunks[len(chunks)-1].EndPage != 10 {
		t.Fatalf("expected the final chunk to reach page 10, got %d", chunks[len(chunks)-1].EndPage)
	}
}
