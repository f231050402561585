// Package chunk implements the structure-aware chunker: it turns
// cleaned page text into retrieval units (Chunks) carrying section,
// page-span, and content-type metadata, with overlap and near-duplicate
// elimination.
package chunk

import "github.com/google/uuid"

// ContentType classifies the dominant shape of a chunk's content.
type ContentType string

const (
	ContentText    ContentType = "text"
	ContentTable   ContentType = "table"
	ContentList    ContentType = "list"
	ContentMixed   ContentType = "mixed"
	ContentHeading ContentType = "heading"
)

// Sentence is an immutable segmentation unit. A page-break sentence has
// empty Text and PageNumber set to the page it introduces; it marks a
// transition in the sentence stream between pages and is never counted
// toward a chunk's word total.
type Sentence struct {
	Text        string
	WordCount   int
	IsPageBreak bool
	PageNumber  int
}

// Paragraph is an ordered run of Sentences sharing a nominal page.
type Paragraph struct {
	Sentences  []Sentence
	PageNumber int
	IsHeading  bool
}

// Image is an external collaborator's image-region metadata: the UUID and
// the page it sits on. Chunks reference images by ID only, never by pointer.
type Image struct {
	ID         uuid.UUID
	PageNumber int
}

// Chunk is the unit of retrieval.
type Chunk struct {
	ID              uuid.UUID
	FileID          string
	ChunkIndex      int
	Content         string
	PageNumber      int
	StartPage       int
	EndPage         int
	SectionTitle    string
	ContentType     ContentType
	ContainsTable   bool
	ContainsList    bool
	ImageReferences []uuid.UUID

	// Similarity is transient: populated only in retrieval results, never
	// set during ingestion.
	Similarity float32
}
