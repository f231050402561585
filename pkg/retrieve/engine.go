package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/foliumapp/ragcore/pkg/clients/rerank"
	"github.com/foliumapp/ragcore/pkg/errs"
	"github.com/foliumapp/ragcore/pkg/query"
	"github.com/foliumapp/ragcore/pkg/store"
)

// Embedder is the subset of pkg/embed.Service the retrieval engine needs:
// turning the raw query text into a vector for the vector sub-query.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Engine is the retrieval engine. A nil Logger falls back to
// slog.Default(); Reranker is optional — when set, HybridSearch reranks the fused top candidates
// before returning, populating RerankScore.
type Engine struct {
	Store    store.Store
	Embedder Embedder
	Reranker rerank.Reranker
	Logger   *slog.Logger
	Config   Config

	// RerankTopK bounds how many fused candidates are sent to the
	// reranker; zero disables reranking even if Reranker is set.
	RerankTopK int
}

// HybridSearch runs four parallel sub-queries, fuses them with RRF, falls
// back to a broad context sample when fusion yields nothing, and
// optionally reranks the result.
func (e *Engine) HybridSearch(ctx context.Context, q, fileID string, topK int) ([]ScoredChunk, error) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}

	analysis := query.Analyze(q)

	var (
		pageRows []store.ChunkRow
		refRows  []store.ChunkRow
		bm25Rows []store.BM25Row
		vecRows  []store.VectorRow

		pageErr, refErr, bm25Err error
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if len(analysis.PageNumbers) == 0 {
			return nil
		}
		rows, err := e.Store.FetchByPages(gctx, fileID, analysis.PageNumbers, topK)
		if err != nil {
			pageErr = err
			return nil
		}
		pageRows = rows
		return nil
	})

	g.Go(func() error {
		terms := referenceTerms(analysis)
		if len(terms) == 0 {
			return nil
		}
		rows, err := e.Store.FetchByContent(gctx, fileID, terms, topK)
		if err != nil {
			refErr = err
			return nil
		}
		refRows = rows
		return nil
	})

	g.Go(func() error {
		bm25Query := analysis.SimplifiedQuery
		if bm25Query == "" {
			bm25Query = q
		}
		rows, err := e.Store.BM25Search(gctx, fileID, bm25Query, topK)
		if err != nil {
			bm25Err = err
			return nil
		}
		bm25Rows = rows
		return nil
	})

	var vectorErr error
	g.Go(func() error {
		queryVector, err := e.Embedder.Embed(gctx, q)
		if err != nil {
			vectorErr = err
			return nil
		}
		rows, err := e.Store.VectorSearch(gctx, fileID, queryVector, topK, e.Config.SimilarityThreshold)
		if err != nil {
			vectorErr = err
			return nil
		}
		vecRows = rows
		return nil
	})

	_ = g.Wait() // sub-goroutines never return a non-nil error; they record into the outer vars above

	if vectorErr != nil {
		return nil, errs.New("retrieve.HybridSearch", errs.SearchFailed, vectorErr)
	}

	if pageErr != nil {
		logger.Info("page_subquery_failed", slog.String("fileId", fileID), slog.String("error", pageErr.Error()))
	}
	if refErr != nil {
		logger.Info("reference_subquery_failed", slog.String("fileId", fileID), slog.String("error", refErr.Error()))
	}
	if bm25Err != nil {
		logger.Info("bm25_subquery_failed", slog.String("fileId", fileID), slog.String("error", bm25Err.Error()))
	}
	if len(bm25Rows) == 0 && bm25Err == nil {
		logger.Info("bm25_subquery_empty", slog.String("fileId", fileID))
	}

	logger.Info("hybrid_search_subqueries",
		slog.String("fileId", fileID),
		slog.Int("pageCount", len(pageRows)),
		slog.Int("refCount", len(refRows)),
		slog.Int("vectorCount", len(vecRows)),
		slog.Int("bm25Count", len(bm25Rows)),
	)

	fused := e.fuse(pageRows, refRows, vecRows, bm25Rows)

	if len(fused) == 0 {
		broad, err := e.broadContextFallback(ctx, fileID, topK)
		if err != nil {
			return nil, err
		}
		logger.Info("hybrid_search_fallback", slog.String("fileId", fileID), slog.Int("fusedCount", 0), slog.Int("fallbackCount", len(broad)))
		return broad, nil
	}

	logger.Info("hybrid_search_fused", slog.String("fileId", fileID), slog.Int("fusedCount", len(fused)))

	if len(fused) > topK {
		fused = fused[:topK]
	}

	if e.Reranker != nil && e.RerankTopK > 0 {
		return e.rerankResults(ctx, q, fused, logger)
	}
	return fused, nil
}

// referenceTerms builds the figure/table search-term set:
// "Figure X"/"Fig. X"/"Şekil X" for each figure ref, "Table
// X"/"Tablo X" for each table ref.
func referenceTerms(a query.Analysis) []string {
	var terms []string
	for _, f := range a.FigureRefs {
		terms = append(terms, "Figure "+f, "Fig. "+f, "Şekil "+f)
	}
	for _, t := range a.TableRefs {
		terms = append(terms, "Table "+t, "Tablo "+t)
	}
	return terms
}

// fuse applies Reciprocal Rank Fusion across the four sub-query result
// lists.
func (e *Engine) fuse(pageRows, refRows []store.ChunkRow, vecRows []store.VectorRow, bm25Rows []store.BM25Row) []ScoredChunk {
	type acc struct {
		chunk ScoredChunk
		rrf   float64
	}
	byID := make(map[string]*acc)

	get := func(id string) *acc {
		a, ok := byID[id]
		if !ok {
			a = &acc{chunk: ScoredChunk{ID: id}}
			byID[id] = a
		}
		return a
	}

	rrfTerm := func(rank int) float64 {
		return 1.0 / float64(e.Config.RRFConstant+rank)
	}

	for i, row := range pageRows {
		a := get(row.ID)
		a.rrf += rrfTerm(i+1) * e.Config.PageBoost
		fillFromChunkRow(&a.chunk, row)
	}
	for i, row := range refRows {
		a := get(row.ID)
		a.rrf += rrfTerm(i+1) * e.Config.RefBoost
		fillFromChunkRow(&a.chunk, row)
	}
	for i, row := range vecRows {
		a := get(row.ID)
		a.rrf += rrfTerm(i+1) * e.Config.VectorWeight
		a.chunk.VectorScore = row.Similarity
		a.chunk.Content = row.Content
		a.chunk.PageNumber = row.PageNumber
		a.chunk.ChunkIndex = row.ChunkIndex
		a.chunk.SectionTitle = row.SectionTitle
		a.chunk.ContainsTable = row.ContainsTable
		a.chunk.ContainsList = row.ContainsList
		a.chunk.ImageCount = row.ImageCount
	}
	for i, row := range bm25Rows {
		a := get(row.ID)
		a.rrf += rrfTerm(i+1) * e.Config.BM25Weight
		a.chunk.BM25Score = row.Score
		if a.chunk.Content == "" {
			a.chunk.Content = row.Content
		}
		if a.chunk.PageNumber == 0 {
			a.chunk.PageNumber = row.PageNumber
		}
		a.chunk.ChunkIndex = row.ChunkIndex
		if a.chunk.SectionTitle == "" {
			a.chunk.SectionTitle = row.SectionTitle
		}
		a.chunk.ContainsTable = a.chunk.ContainsTable || row.ContainsTable
		a.chunk.ContainsList = a.chunk.ContainsList || row.ContainsList
		if a.chunk.ImageCount == 0 {
			a.chunk.ImageCount = row.ImageCount
		}
	}

	results := make([]ScoredChunk, 0, len(byID))
	for _, a := range byID {
		a.chunk.RRFScore = a.rrf
		results = append(results, a.chunk)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].RRFScore != results[j].RRFScore {
			return results[i].RRFScore > results[j].RRFScore
		}
		return results[i].ChunkIndex < results[j].ChunkIndex
	})

	return results
}

func fillFromChunkRow(c *ScoredChunk, row store.ChunkRow) {
	c.Content = row.Content
	c.PageNumber = row.PageNumber
	c.ChunkIndex = row.ChunkIndex
	c.StartPage = row.StartPage
	c.EndPage = row.EndPage
	c.ContentType = row.ContentType
	c.SectionTitle = row.SectionTitle
	c.ContainsTable = row.ContainsTable
	c.ContainsList = row.ContainsList
	c.ImageCount = row.ImageCount
}

// broadContextFallback samples sliceSize = max(1, topK/3) chunks each
// from the beginning, middle, and end of the
// document, deduplicated by chunkIndex, zero scores.
func (e *Engine) broadContextFallback(ctx context.Context, fileID string, topK int) ([]ScoredChunk, error) {
	sliceSize := topK / 3
	if sliceSize < 1 {
		sliceSize = 1
	}

	total, err := e.Store.CountChunks(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("retrieve: count chunks for fallback: %w", err)
	}
	if total == 0 {
		return nil, errs.New("retrieve.HybridSearch", errs.NotIndexed, fmt.Errorf("no chunks indexed for file %s", fileID))
	}

	beginning, err := e.Store.FetchSlice(ctx, fileID, 0, sliceSize, true)
	if err != nil {
		return nil, fmt.Errorf("retrieve: fetch beginning slice: %w", err)
	}
	end, err := e.Store.FetchSlice(ctx, fileID, 0, sliceSize, false)
	if err != nil {
		return nil, fmt.Errorf("retrieve: fetch end slice: %w", err)
	}

	middleOffset := total/2 - sliceSize/2
	if middleOffset < 0 {
		middleOffset = 0
	}
	middle, err := e.Store.FetchSlice(ctx, fileID, middleOffset, sliceSize, true)
	if err != nil {
		return nil, fmt.Errorf("retrieve: fetch middle slice: %w", err)
	}

	seen := make(map[int]bool)
	var out []ScoredChunk
	for _, rows := range [][]store.ChunkRow{beginning, middle, end} {
		for _, row := range rows {
			if seen[row.ChunkIndex] {
				continue
			}
			seen[row.ChunkIndex] = true
			out = append(out, ScoredChunk{
				ID:            row.ID,
				Content:       row.Content,
				PageNumber:    row.PageNumber,
				StartPage:     row.StartPage,
				EndPage:       row.EndPage,
				ChunkIndex:    row.ChunkIndex,
				ContentType:   row.ContentType,
				SectionTitle:  row.SectionTitle,
				ContainsTable: row.ContainsTable,
				ContainsList:  row.ContainsList,
				ImageCount:    row.ImageCount,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

// rerankResults sends the fused top candidates to the reranker and
// populates RerankScore, re-sorting by it (finalScore = rerankScore when
// present, per the ScoredChunk glossary entry).
func (e *Engine) rerankResults(ctx context.Context, q string, fused []ScoredChunk, logger *slog.Logger) ([]ScoredChunk, error) {
	n := e.RerankTopK
	if n > len(fused) {
		n = len(fused)
	}
	candidates := fused[:n]

	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Content
	}

	resp, err := e.Reranker.Rerank(q, docs, n)
	if err != nil {
		// Reranking is an enhancement, not a correctness requirement;
		// degrade to the RRF-only ordering rather than failing the call.
		logger.Info("rerank_failed", slog.String("error", err.Error()))
		return fused, nil
	}

	for _, r := range resp.Results {
		if r.Index < 0 || r.Index >= len(candidates) {
			continue
		}
		candidates[r.Index].RerankScore = float64(r.RelevanceScore)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].RerankScore > candidates[j].RerankScore
	})

	return append(candidates, fused[n:]...), nil
}
