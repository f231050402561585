// Package store implements the index store: the abstract persistence
// boundary the ingest path and the retrieval engine sit on top of. Two
// implementations sit behind the single Store interface: HybridStore
// composes a Bleve inverted index for BM25, a pure-Go HNSW graph for
// vector search and an in-memory metadata table; PostgresStore keeps
// chunks and vectors in a Postgres/pgvector table.
package store

import "context"

// VectorRow is one hit from vectorSearch: similarity is cosine in [0,1].
type VectorRow struct {
	ID            string
	Content       string
	PageNumber    int
	ChunkIndex    int
	SectionTitle  string
	ContainsTable bool
	ContainsList  bool
	ImageCount    int
	Similarity    float32
}

// BM25Row is one hit from bm25Search.
type BM25Row struct {
	ID            string
	Content       string
	PageNumber    int
	ChunkIndex    int
	SectionTitle  string
	ContainsTable bool
	ContainsList  bool
	ImageCount    int
	Score         float32
}

// ChunkRow is a plain metadata row returned by fetchByPages, fetchByContent,
// and fetchSlice.
type ChunkRow struct {
	ID            string
	ChunkIndex    int
	Content       string
	PageNumber    int
	StartPage     int
	EndPage       int
	ContentType   string
	SectionTitle  string
	ContainsTable bool
	ContainsList  bool
	ImageCount    int
}

// UpsertRecord pairs a chunk's persisted fields with its embedding vector,
// the unit the Store writes in upsertChunk/UpsertChunks.
type UpsertRecord struct {
	ID            string
	FileID        string
	ChunkIndex    int
	Content       string
	PageNumber    int
	StartPage     int
	EndPage       int
	ContentType   string
	SectionTitle  string
	ContainsTable bool
	ContainsList  bool
	ImageCount    int
	Vector        []float32
}

// Store is the index store abstraction. Every operation is scoped to a
// single fileId except where noted; concurrency and durability guarantees
// are delegated to the concrete implementation.
type Store interface {
	// UpsertChunks bulk-inserts or replaces chunks and their vectors.
	UpsertChunks(ctx context.Context, records []UpsertRecord) error

	// DeleteFile removes every chunk belonging to fileId from every
	// backing index.
	DeleteFile(ctx context.Context, fileID string) error

	// VectorSearch returns up to k rows whose cosine similarity to
	// queryVector is at least threshold, ordered by similarity descending.
	VectorSearch(ctx context.Context, fileID string, queryVector []float32, k int, threshold float32) ([]VectorRow, error)

	// BM25Search returns up to k BM25 matches for query. An empty result
	// is not an error.
	BM25Search(ctx context.Context, fileID string, query string, k int) ([]BM25Row, error)

	// FetchByPages returns at most k rows whose pageNumber is in pages.
	FetchByPages(ctx context.Context, fileID string, pages []int, k int) ([]ChunkRow, error)

	// FetchByContent returns rows whose content contains any of terms
	// (logical OR, substring match), at most k.
	FetchByContent(ctx context.Context, fileID string, terms []string, k int) ([]ChunkRow, error)

	// FetchSlice returns a page of chunks ordered by chunkIndex, used for
	// the broad-context fallback's beginning/middle/end sampling.
	FetchSlice(ctx context.Context, fileID string, offset, limit int, ascending bool) ([]ChunkRow, error)

	// CountChunks returns the number of chunks indexed for fileID.
	CountChunks(ctx context.Context, fileID string) (int, error)

	// Close releases resources held by every backing index.
	Close() error
}
