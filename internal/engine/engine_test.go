package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/foliumapp/ragcore/internal/engine"
	"github.com/foliumapp/ragcore/pkg/chunk"
	"github.com/foliumapp/ragcore/pkg/contextbuild"
	"github.com/foliumapp/ragcore/pkg/embed"
	"github.com/foliumapp/ragcore/pkg/normalize"
	"github.com/foliumapp/ragcore/pkg/retrieve"
	"github.com/foliumapp/ragcore/pkg/store"
)

type fakeStore struct {
	upserted  []store.UpsertRecord
	deleted   []string
	vecRows   []store.VectorRow
	bm25Rows  []store.BM25Row
	sliceRows []store.ChunkRow
	count     int
	sliceErr  error
}

func (f *fakeStore) UpsertChunks(ctx context.Context, records []store.UpsertRecord) error {
	f.upserted = append(f.upserted, records...)
	return nil
}
func (f *fakeStore) DeleteFile(ctx context.Context, fileID string) error {
	f.deleted = append(f.deleted, fileID)
	return nil
}
func (f *fakeStore) VectorSearch(ctx context.Context, fileID string, queryVector []float32, k int, threshold float32) ([]store.VectorRow, error) {
	return f.vecRows, nil
}
func (f *fakeStore) BM25Search(ctx context.Context, fileID string, query string, k int) ([]store.BM25Row, error) {
	return f.bm25Rows, nil
}
func (f *fakeStore) FetchByPages(ctx context.Context, fileID string, pages []int, k int) ([]store.ChunkRow, error) {
	return nil, nil
}
func (f *fakeStore) FetchByContent(ctx context.Context, fileID string, terms []string, k int) ([]store.ChunkRow, error) {
	return nil, nil
}
func (f *fakeStore) FetchSlice(ctx context.Context, fileID string, offset, limit int, ascending bool) ([]store.ChunkRow, error) {
	if f.sliceErr != nil {
		return nil, f.sliceErr
	}
	return f.sliceRows, nil
}
func (f *fakeStore) CountChunks(ctx context.Context, fileID string) (int, error) { return f.count, nil }
func (f *fakeStore) Close() error                                               { return nil }

var _ store.Store = (*fakeStore)(nil)

type fakeProvider struct {
	dim int
}

func (p *fakeProvider) FetchOne(model, text string) ([]float32, error) {
	vec := make([]float32, p.dim)
	for i := range vec {
		vec[i] = float32(len(text)) / float32(i+1)
	}
	return vec, nil
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, s *fakeStore) *engine.Engine {
	t.Helper()

	chunker, err := chunk.New(chunk.DefaultConfig())
	if err != nil {
		t.Fatalf("chunk.New: %v", err)
	}

	embedCfg := embed.DefaultConfig()
	embedCfg.Dimension = 4
	embedCfg.CacheRoot = t.TempDir()
	svc, err := embed.NewService(embedCfg, &fakeProvider{dim: 4})
	if err != nil {
		t.Fatalf("embed.NewService: %v", err)
	}

	retriever := &retrieve.Engine{
		Store:    s,
		Embedder: svc,
		Logger:   silentLogger(),
		Config:   retrieve.DefaultConfig(),
	}

	builder := contextbuild.NewBuilder(contextbuild.DefaultConfig())

	return engine.New(chunker, svc, s, retriever, builder, silentLogger(), normalize.Opts{
		PreserveTables:      true,
		NormalizeWhitespace: true,
		IncludePageMarkers:  true,
		RemoveHyphenation:   true,
	}, 10, 4000)
}

func TestEngine_Ingest_EmbedsAndUpsertsChunks(t *testing.T) {
	s := &fakeStore{}
	e := newTestEngine(t, s)

	pages := []engine.PageText{
		{PageNumber: 1, RawText: "The quick brown fox jumps over the lazy dog. It did this many times over several long sentences so the chunk grows past the minimum size threshold easily enough for a clean test."},
		{PageNumber: 2, RawText: "A second page continues the story with more filler content meant only to pad out the word count of this chunk so it closes on its own page boundary naturally."},
	}

	if err := e.Ingest(context.Background(), "file-1", pages, nil, nil); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if len(s.deleted) != 1 || s.deleted[0] != "file-1" {
		t.Fatalf("expected DeleteFile(file-1) to be called once, got %v", s.deleted)
	}
	if len(s.upserted) == 0 {
		t.Fatal("expected at least one chunk upserted")
	}
	for _, r := range s.upserted {
		if len(r.Vector) != 4 {
			t.Fatalf("expected 4-dim vector, got %d", len(r.Vector))
		}
		if r.FileID != "file-1" {
			t.Fatalf("expected fileID file-1, got %s", r.FileID)
		}
	}
}

func TestEngine_Ingest_EmptyTextProducesNoChunks(t *testing.T) {
	s := &fakeStore{}
	e := newTestEngine(t, s)

	if err := e.Ingest(context.Background(), "file-2", []engine.PageText{{PageNumber: 1, RawText: "   "}}, nil, nil); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(s.upserted) != 0 {
		t.Fatalf("expected no upserts for empty text, got %d", len(s.upserted))
	}
}

func TestEngine_Ingest_ProgressEventsReportEachPage(t *testing.T) {
	s := &fakeStore{}
	e := newTestEngine(t, s)

	progress := make(chan engine.ProgressEvent, 8)
	pages := []engine.PageText{
		{PageNumber: 1, RawText: "Short."},
		{PageNumber: 2, RawText: "Also short."},
		{PageNumber: 3, RawText: "Still short."},
	}

	if err := e.Ingest(context.Background(), "file-3", pages, nil, progress); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	close(progress)

	var events []engine.ProgressEvent
	for ev := range progress {
		events = append(events, ev)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 progress events, got %d", len(events))
	}
	if events[2].PageIndex != 3 || events[2].TotalPages != 3 {
		t.Fatalf("expected final event PageIndex=3/TotalPages=3, got %+v", events[2])
	}
}

func TestEngine_Retrieve_NotIndexedPropagates(t *testing.T) {
	s := &fakeStore{count: 0}
	e := newTestEngine(t, s)

	_, err := e.Retrieve(context.Background(), "missing-file", "anything")
	if err == nil {
		t.Fatal("expected an error for a file with zero indexed chunks")
	}
}

func TestEngine_Retrieve_BroadContextTechnicalFailureIsSwallowed(t *testing.T) {
	s := &fakeStore{count: 5, sliceErr: errors.New("disk read failure")}
	e := newTestEngine(t, s)

	result, err := e.Retrieve(context.Background(), "file-4", "anything")
	if err != nil {
		t.Fatalf("expected a technical fallback failure to be swallowed, got error: %v", err)
	}
	if result.ChunkCount != 0 {
		t.Fatalf("expected ChunkCount=0, got %d", result.ChunkCount)
	}
}

func TestEngine_Retrieve_ReturnsBuiltContext(t *testing.T) {
	s := &fakeStore{
		vecRows: []store.VectorRow{{ID: "c1", Content: "alpha content here", PageNumber: 1, ChunkIndex: 0, Similarity: 0.9}},
	}
	e := newTestEngine(t, s)

	result, err := e.Retrieve(context.Background(), "file-5", "what is alpha")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if result.ChunkCount != 1 {
		t.Fatalf("expected ChunkCount=1, got %d", result.ChunkCount)
	}
	if result.Context == "" {
		t.Fatal("expected a non-empty context string")
	}
}

func TestEngine_CacheAdmin_ClearAndCleanup(t *testing.T) {
	s := &fakeStore{}
	e := newTestEngine(t, s)

	if _, err := e.Embedder.Embed(context.Background(), "some text to embed"); err != nil {
		t.Fatalf("Embed: %v", err)
	}

	stats := e.CacheStats()
	if stats.Misses == 0 {
		t.Fatal("expected at least one miss after a fresh embed")
	}

	e.ClearMemoryCache()
	if e.CacheStats().MemSize != 0 {
		t.Fatal("expected memory cache to be empty after ClearMemoryCache")
	}

	removed, err := e.CleanupDiskCache(0)
	if err != nil {
		t.Fatalf("CleanupDiskCache: %v", err)
	}
	if removed == 0 {
		t.Fatal("expected CleanupDiskCache(0) to remove the just-written entry")
	}
}

func TestEngine_Ingest_ImagesAttachToContainingChunk(t *testing.T) {
	s := &fakeStore{}
	e := newTestEngine(t, s)

	img := chunk.Image{PageNumber: 1}
	pages := []engine.PageText{
		{PageNumber: 1, RawText: "The quick brown fox jumps over the lazy dog. It did this many times over several long sentences so the chunk grows past the minimum size threshold easily enough for a clean test."},
	}

	if err := e.Ingest(context.Background(), "file-6", pages, []chunk.Image{img}, nil); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	found := false
	for _, r := range s.upserted {
		if r.ImageCount > 0 {
			found = true
		}
	}
	if !found {
		t.Fatal("expected at least one upserted chunk to carry an image reference")
	}
}
