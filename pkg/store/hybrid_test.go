package store_test

import (
	"context"
	"testing"

	"github.com/foliumapp/ragcore/pkg/store"
)

func newTestHybridStore(t *testing.T) *store.HybridStore {
	t.Helper()
	s, err := store.NewHybridStore(store.HybridStoreConfig{Dimension: 4})
	if err != nil {
		t.Fatalf("NewHybridStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRecords() []store.UpsertRecord {
	return []store.UpsertRecord{
		{ID: "c1", FileID: "f1", ChunkIndex: 0, Content: "introduction to whales and oceans", PageNumber: 1, StartPage: 1, EndPage: 1, ContentType: "text", Vector: []float32{1, 0, 0, 0}},
		{ID: "c2", FileID: "f1", ChunkIndex: 1, Content: "Figure 3 shows migration patterns", PageNumber: 2, StartPage: 2, EndPage: 2, ContentType: "text", Vector: []float32{0, 1, 0, 0}},
		{ID: "c3", FileID: "f1", ChunkIndex: 2, Content: "Table 1 lists species by region", PageNumber: 3, StartPage: 3, EndPage: 3, ContentType: "table", Vector: []float32{0, 0, 1, 0}},
	}
}

func TestHybridStore_UpsertAndCount(t *testing.T) {
	ctx := context.Background()
	s := newTestHybridStore(t)

	if err := s.UpsertChunks(ctx, sampleRecords()); err != nil {
		t.Fatalf("UpsertChunks: %v", err)
	}
	count, err := s.CountChunks(ctx, "f1")
	if err != nil {
		t.Fatalf("CountChunks: %v", err)
	}
	if count != 3 {
		t.Fatalf("CountChunks = %d, want 3", count)
	}
}

func TestHybridStore_VectorSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestHybridStore(t)
	if err := s.UpsertChunks(ctx, sampleRecords()); err != nil {
		t.Fatalf("UpsertChunks: %v", err)
	}

	rows, err := s.VectorSearch(ctx, "f1", []float32{1, 0, 0, 0}, 5, 0.1)
	if err != nil {
		t.Fatalf("VectorSearch: %v", err)
	}
	if len(rows) == 0 {
		t.Fatal("expected at least one vector result")
	}
	if rows[0].ID != "c1" {
		t.Fatalf("expected closest match c1, got %s", rows[0].ID)
	}
}

func TestHybridStore_VectorSearch_ThresholdExcludesDistant(t *testing.T) {
	ctx := context.Background()
	s := newTestHybridStore(t)
	if err := s.UpsertChunks(ctx, sampleRecords()); err != nil {
		t.Fatalf("UpsertChunks: %v", err)
	}

	rows, err := s.VectorSearch(ctx, "f1", []float32{1, 0, 0, 0}, 5, 0.99)
	if err != nil {
		t.Fatalf("VectorSearch: %v", err)
	}
	for _, r := range rows {
		if r.ID != "c1" {
			t.Fatalf("expected only the near-identical vector to pass a high threshold, got %s", r.ID)
		}
	}
}

func TestHybridStore_BM25Search(t *testing.T) {
	ctx := context.Background()
	s := newTestHybridStore(t)
	if err := s.UpsertChunks(ctx, sampleRecords()); err != nil {
		t.Fatalf("UpsertChunks: %v", err)
	}

	rows, err := s.BM25Search(ctx, "f1", "whales oceans", 5)
	if err != nil {
		t.Fatalf("BM25Search: %v", err)
	}
	if len(rows) == 0 {
		t.Fatal("expected at least one bm25 result")
	}
	if rows[0].ID != "c1" {
		t.Fatalf("expected c1 to match 'whales oceans', got %s", rows[0].ID)
	}
}

func TestHybridStore_BM25Search_EmptyIsNotError(t *testing.T) {
	ctx := context.Background()
	s := newTestHybridStore(t)
	if err := s.UpsertChunks(ctx, sampleRecords()); err != nil {
		t.Fatalf("UpsertChunks: %v", err)
	}

	rows, err := s.BM25Search(ctx, "f1", "zzznonexistentzzz", 5)
	if err != nil {
		t.Fatalf("BM25Search should not error on zero matches: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected zero rows, got %d", len(rows))
	}
}

func TestHybridStore_FetchByPages(t *testing.T) {
	ctx := context.Background()
	s := newTestHybridStore(t)
	if err := s.UpsertChunks(ctx, sampleRecords()); err != nil {
		t.Fatalf("UpsertChunks: %v", err)
	}

	rows, err := s.FetchByPages(ctx, "f1", []int{2}, 5)
	if err != nil {
		t.Fatalf("FetchByPages: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "c2" {
		t.Fatalf("expected single row c2, got %+v", rows)
	}
}

func TestHybridStore_FetchByContent(t *testing.T) {
	ctx := context.Background()
	s := newTestHybridStore(t)
	if err := s.UpsertChunks(ctx, sampleRecords()); err != nil {
		t.Fatalf("UpsertChunks: %v", err)
	}

	rows, err := s.FetchByContent(ctx, "f1", []string{"Figure 3", "Table 1"}, 5)
	if err != nil {
		t.Fatalf("FetchByContent: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
}

func TestHybridStore_FetchSlice(t *testing.T) {
	ctx := context.Background()
	s := newTestHybridStore(t)
	if err := s.UpsertChunks(ctx, sampleRecords()); err != nil {
		t.Fatalf("UpsertChunks: %v", err)
	}

	rows, err := s.FetchSlice(ctx, "f1", 0, 2, true)
	if err != nil {
		t.Fatalf("FetchSlice: %v", err)
	}
	if len(rows) != 2 || rows[0].ChunkIndex != 0 || rows[1].ChunkIndex != 1 {
		t.Fatalf("expected ascending chunkIndex 0,1, got %+v", rows)
	}

	desc, err := s.FetchSlice(ctx, "f1", 0, 2, false)
	if err != nil {
		t.Fatalf("FetchSlice descending: %v", err)
	}
	if len(desc) != 2 || desc[0].ChunkIndex != 2 {
		t.Fatalf("expected descending chunkIndex starting at 2, got %+v", desc)
	}
}

func TestHybridStore_DeleteFile(t *testing.T) {
	ctx := context.Background()
	s := newTestHybridStore(t)
	if err := s.UpsertChunks(ctx, sampleRecords()); err != nil {
		t.Fatalf("UpsertChunks: %v", err)
	}

	if err := s.DeleteFile(ctx, "f1"); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	count, err := s.CountChunks(ctx, "f1")
	if err != nil {
		t.Fatalf("CountChunks: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 chunks after delete, got %d", count)
	}
}
