// Package engine wires the chunker, embedding service, index store,
// retrieval engine, and context builder into the single explicit value
// the rest of the application depends on, favoring one assembled Engine
// over package-level state or a DI container.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/foliumapp/ragcore/pkg/chunk"
	"github.com/foliumapp/ragcore/pkg/contextbuild"
	"github.com/foliumapp/ragcore/pkg/embed"
	"github.com/foliumapp/ragcore/pkg/errs"
	"github.com/foliumapp/ragcore/pkg/normalize"
	"github.com/foliumapp/ragcore/pkg/retrieve"
	"github.com/foliumapp/ragcore/pkg/store"
)

// PageText is one page of raw, un-normalized extracted text, the unit
// Ingest consumes.
type PageText struct {
	PageNumber int
	RawText    string
}

// ProgressEvent reports ingestion progress for a single file over a plain
// channel the caller can select on or discard.
type ProgressEvent struct {
	FileID     string
	PageIndex  int
	TotalPages int
}

// RetrieveResult is the I2 response: the serialized context string, the
// sorted set of pages it cites, and the chunk count it was built from, so
// a caller can distinguish a confident answer from an empty-document
// fallback.
type RetrieveResult struct {
	Context     string
	SourcePages []int
	ChunkCount  int
}

// CacheStatsResult is the I3 admin snapshot of the embedding cache.
type CacheStatsResult struct {
	Hits     int64
	Misses   int64
	DiskHits int64
	HitRate  float64
	MemSize  int
	MemCap   int
}

// Engine owns every component the retrieval core needs and exposes the
// three operation groups named in the interface section: Ingest (I1),
// Retrieve (I2), and the cache admin surface (I3).
type Engine struct {
	Chunker        *chunk.Chunker
	Embedder       *embed.Service
	Store          store.Store
	Retriever      *retrieve.Engine
	ContextBuilder *contextbuild.Builder
	Logger         *slog.Logger

	NormalizeOpts    normalize.Opts
	TopK             int
	MaxContextTokens int
}

// New constructs an Engine from its already-built components. Callers
// assemble the Store/Embedder/Retriever/ContextBuilder and pass them here;
// New only fills defaults for a nil logger and non-positive topK or
// maxContextTokens.
func New(chunker *chunk.Chunker, embedder *embed.Service, st store.Store, retriever *retrieve.Engine, builder *contextbuild.Builder, logger *slog.Logger, normalizeOpts normalize.Opts, topK, maxContextTokens int) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if topK <= 0 {
		topK = 10
	}
	if maxContextTokens <= 0 {
		maxContextTokens = 4000
	}
	return &Engine{
		Chunker:          chunker,
		Embedder:         embedder,
		Store:            st,
		Retriever:        retriever,
		ContextBuilder:   builder,
		Logger:           logger,
		NormalizeOpts:    normalizeOpts,
		TopK:             topK,
		MaxContextTokens: maxContextTokens,
	}
}

// Ingest implements I1: it normalizes every page, assembles chunks,
// embeds them, and upserts them into the Index Store, replacing any prior
// chunks for fileID. progress, if non-nil, receives one ProgressEvent per
// page as it is normalized; sending is cancellable via ctx.
func (e *Engine) Ingest(ctx context.Context, fileID string, pages []PageText, images []chunk.Image, progress chan<- ProgressEvent) error {
	if err := e.Store.DeleteFile(ctx, fileID); err != nil {
		return fmt.Errorf("engine: delete existing chunks for %s: %w", fileID, err)
	}

	total := len(pages)
	var cleaned strings.Builder
	for i, p := range pages {
		clean := normalize.Normalize(p.RawText, p.PageNumber, total, e.NormalizeOpts)
		cleaned.WriteString(clean)

		if progress != nil {
			select {
			case progress <- ProgressEvent{FileID: fileID, PageIndex: i + 1, TotalPages: total}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	chunks := e.Chunker.Chunk(cleaned.String(), fileID, images)
	if len(chunks) == 0 {
		e.Logger.Info("ingest_empty", slog.String("fileId", fileID), slog.Int("pages", total))
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := e.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("engine: embed chunks for %s: %w", fileID, err)
	}

	records := make([]store.UpsertRecord, len(chunks))
	for i, c := range chunks {
		records[i] = store.UpsertRecord{
			ID:            c.ID.String(),
			FileID:        c.FileID,
			ChunkIndex:    c.ChunkIndex,
			Content:       c.Content,
			PageNumber:    c.PageNumber,
			StartPage:     c.StartPage,
			EndPage:       c.EndPage,
			ContentType:   string(c.ContentType),
			SectionTitle:  c.SectionTitle,
			ContainsTable: c.ContainsTable,
			ContainsList:  c.ContainsList,
			ImageCount:    len(c.ImageReferences),
			Vector:        vectors[i],
		}
	}

	if err := e.Store.UpsertChunks(ctx, records); err != nil {
		return fmt.Errorf("engine: upsert chunks for %s: %w", fileID, err)
	}

	e.Logger.Info("ingest_complete", slog.String("fileId", fileID), slog.Int("chunks", len(chunks)), slog.Int("pages", total))
	return nil
}

// Retrieve implements I2: hybrid search followed by context assembly. A
// typed *errs.Error from the retrieval engine (NotIndexed, SearchFailed)
// propagates to the caller unchanged. Any other error surfacing from the
// broad-context fallback's underlying store call is a technical failure,
// not a semantic one, and is swallowed into an empty, zero-chunk result
// rather than returned.
func (e *Engine) Retrieve(ctx context.Context, fileID, query string) (RetrieveResult, error) {
	chunks, err := e.Retriever.HybridSearch(ctx, query, fileID, e.TopK)
	if err != nil {
		if errs.Is(err, errs.NotIndexed) || errs.Is(err, errs.SearchFailed) {
			return RetrieveResult{}, err
		}
		e.Logger.Info("retrieve_fallback_failed", slog.String("fileId", fileID), slog.String("error", err.Error()))
		return RetrieveResult{ChunkCount: 0}, nil
	}

	if len(chunks) == 0 {
		return RetrieveResult{ChunkCount: 0}, nil
	}

	text, err := e.ContextBuilder.Build(chunks, e.MaxContextTokens)
	if err != nil {
		return RetrieveResult{}, err
	}

	return RetrieveResult{Context: text, SourcePages: sourcePages(chunks), ChunkCount: len(chunks)}, nil
}

// sourcePages returns the sorted, de-duplicated set of page numbers
// spanned by chunks, for the I2 response's sourcePages field.
func sourcePages(chunks []retrieve.ScoredChunk) []int {
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
	return pages
}

// CacheStats implements the I3 admin surface's read side.
func (e *Engine) CacheStats() CacheStatsResult {
	stats := e.Embedder.Stats()
	return CacheStatsResult{
		Hits:     stats.Hits,
		Misses:   stats.Misses,
		DiskHits: stats.DiskHits,
		HitRate:  stats.HitRate(),
		MemSize:  e.Embedder.MemSize(),
		MemCap:   e.Embedder.MemCap(),
	}
}

// ClearMemoryCache implements the I3 admin surface's memory-tier reset.
func (e *Engine) ClearMemoryCache() { e.Embedder.ClearMemoryCache() }

// CleanupDiskCache implements the I3 admin surface's disk-tier sweep,
// removing cache entries older than olderThan.
func (e *Engine) CleanupDiskCache(olderThan time.Duration) (int, error) {
	return e.Embedder.CleanupDiskCache(olderThan)
}

// NewFileID mints a fresh identifier for an ingested document, following
// the store's fileId-scoping convention.
func NewFileID() string {
	return uuid.New().String()
}
