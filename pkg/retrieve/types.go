// Package retrieve implements the retrieval engine: a hybrid search
// issuing four parallel sub-queries against the Index Store (page,
// reference, vector, BM25), fused by Reciprocal Rank Fusion, with a
// broad-context fallback when fusion yields nothing.
package retrieve

// ScoredChunk is one fused retrieval result, sorted by descending
// RRFScore by HybridSearch. A chunk produced by the broad-context
// fallback carries zero scores.
type ScoredChunk struct {
	ID            string
	Content       string
	PageNumber    int
	StartPage     int
	EndPage       int
	ChunkIndex    int
	ContentType   string
	SectionTitle  string
	ContainsTable bool
	ContainsList  bool
	ImageCount    int

	RRFScore    float64
	VectorScore float32
	BM25Score   float32
	RerankScore float64
}

// Config holds the fusion weights and thresholds for hybrid search.
type Config struct {
	RRFConstant         int
	PageBoost           float64
	RefBoost            float64
	VectorWeight        float64
	BM25Weight          float64
	SimilarityThreshold float32
}

// DefaultConfig returns the standard fusion weight constants.
func DefaultConfig() Config {
	return Config{
		RRFConstant:         60,
		PageBoost:           1.5,
		RefBoost:            1.3,
		VectorWeight:        0.65,
		BM25Weight:          0.35,
		SimilarityThreshold: 0.35,
	}
}
