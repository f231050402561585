package chunk

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Config controls chunk sizing.
type Config struct {
	TargetChunkSize  int
	MinChunkSize     int
	MaxChunkSize     int
	OverlapSentences int
}

// DefaultConfig returns typical production defaults.
func DefaultConfig() Config {
	return Config{
		TargetChunkSize:  500,
		MinChunkSize:     60,
		MaxChunkSize:     750,
		OverlapSentences: 2,
	}
}

// Validate fills in defaults for zero fields and rejects inconsistent sizing.
func (c *Config) Validate() error {
	def := DefaultConfig()
	if c.TargetChunkSize == 0 {
		c.TargetChunkSize = def.TargetChunkSize
	}
	if c.MinChunkSize == 0 {
		c.MinChunkSize = def.MinChunkSize
	}
	if c.MaxChunkSize == 0 {
		c.MaxChunkSize = def.MaxChunkSize
	}
	if c.OverlapSentences == 0 {
		c.OverlapSentences = def.OverlapSentences
	}
	if c.MinChunkSize < 0 {
		return fmt.Errorf("chunk: minChunkSize must be >= 0, got %d", c.MinChunkSize)
	}
	if c.MinChunkSize >= c.MaxChunkSize {
		return fmt.Errorf("chunk: minChunkSize (%d) must be < maxChunkSize (%d)", c.MinChunkSize, c.MaxChunkSize)
	}
	if c.TargetChunkSize > c.MaxChunkSize {
		return fmt.Errorf("chunk: targetChunkSize (%d) must be <= maxChunkSize (%d)", c.TargetChunkSize, c.MaxChunkSize)
	}
	return nil
}

// Chunker assembles Chunks from cleaned page text.
type Chunker struct {
	cfg Config
}

// New validates cfg and constructs a Chunker.
func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{cfg: cfg}, nil
}

// assemblyState is the chunk-assembly context: a rolling
// buffer of sentences plus the bookkeeping needed to close a chunk.
type assemblyState struct {
	buffer             []Sentence
	wordCount          int
	currentHeading     string
	startedWithHeading bool
	containsTable      bool
	containsList       bool
	startPage          int
	endPage            int
	havePage           bool
}

func (a *assemblyState) addSentence(s Sentence) {
	a.buffer = append(a.buffer, s)
	a.wordCount += s.WordCount
	if !a.havePage {
		a.startPage = s.PageNumber
		a.endPage = s.PageNumber
		a.havePage = true
	} else if s.PageNumber > a.endPage {
		a.endPage = s.PageNumber
	}
}

func (a *assemblyState) content() string {
	parts := make([]string, 0, len(a.buffer))
	for _, s := range a.buffer {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, " ")
}

func (a *assemblyState) contentType() ContentType {
	switch {
	case a.startedWithHeading:
		return ContentHeading
	case a.containsTable && a.containsList:
		return ContentMixed
	case a.containsTable:
		return ContentTable
	case a.containsList:
		return ContentList
	default:
		return ContentText
	}
}

// resetForOverlap truncates the buffer to the trailing overlapSentences
// sentences, recomputing word count and page span; flags reset, heading persists.
func (a *assemblyState) resetForOverlap(overlap int) {
	if overlap < 0 {
		overlap = 0
	}
	if overlap > len(a.buffer) {
		overlap = len(a.buffer)
	}
	retained := append([]Sentence(nil), a.buffer[len(a.buffer)-overlap:]...)
	*a = assemblyState{currentHeading: a.currentHeading}
	for _, s := range retained {
		a.addSentence(s)
	}
}

// Chunk runs the full chunking pipeline: segmentation, heading/table/list
// detection, chunk assembly with overlap, image attachment, and
// deduplication. Bad or empty input yields an empty slice, never an error.
func (c *Chunker) Chunk(cleanText string, fileID string, images []Image) []Chunk {
	cleanText = strings.TrimSpace(cleanText)
	if cleanText == "" {
		return nil
	}

	paragraphs := segmentParagraphs(cleanText)
	chunks := c.assemble(paragraphs, fileID)
	attachImages(chunks, images)
	chunks = dedupe(chunks)
	return chunks
}

func (c *Chunker) assemble(paragraphs []internalParagraph, fileID string) []Chunk {
	var chunks []Chunk
	st := &assemblyState{}
	nextIndex := 0

	closeChunk := func() {
		if len(st.buffer) == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			ID:            uuid.New(),
			FileID:        fileID,
			ChunkIndex:    nextIndex,
			Content:       st.content(),
			PageNumber:    st.startPage,
			StartPage:     st.startPage,
			EndPage:       st.endPage,
			SectionTitle:  st.currentHeading,
			ContentType:   st.contentType(),
			ContainsTable: st.containsTable,
			ContainsList:  st.containsList,
		})
		nextIndex++
		st.resetForOverlap(c.cfg.OverlapSentences)
	}

	for _, p := range paragraphs {
		if p.IsHeading {
			if st.wordCount >= c.cfg.MinChunkSize {
				closeChunk()
			}
			if len(p.Sentences) > 0 {
				st.currentHeading = p.Sentences[0].Text
			}
			if len(st.buffer) == 0 {
				st.startedWithHeading = true
			}
		}
		st.containsTable = st.containsTable || p.ContainsTable
		st.containsList = st.containsList || p.ContainsList

		for _, s := range p.Sentences {
			if s.IsPageBreak {
				continue
			}
			st.addSentence(s)
			if st.wordCount >= c.cfg.TargetChunkSize && st.wordCount >= c.cfg.MaxChunkSize {
				closeChunk()
			}
		}

		if st.wordCount >= c.cfg.TargetChunkSize {
			closeChunk()
		}
	}

	if st.wordCount > 0 {
		if st.wordCount >= c.cfg.MinChunkSize || len(chunks) == 0 {
			closeChunk()
		} else {
			prev := &chunks[len(chunks)-1]
			prev.Content = prev.Content + " " + st.content()
			if st.endPage > prev.EndPage {
				prev.EndPage = st.endPage
			}
			prev.ContainsTable = prev.ContainsTable || st.containsTable
			prev.ContainsList = prev.ContainsList || st.containsList
		}
	}

	return chunks
}

func attachImages(chunks []Chunk, images []Image) {
	if len(images) == 0 {
		return
	}
	for i := range chunks {
		ch := &chunks[i]
		for _, img := range images {
			if img.PageNumber >= ch.StartPage && img.PageNumber <= ch.EndPage {
				ch.ImageReferences = append(ch.ImageReferences, img.ID)
			}
		}
	}
}
