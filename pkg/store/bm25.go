package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
)

// bleveDocument is the document shape indexed by Bleve: content is
// analyzed for BM25 scoring, fileID is a keyword field used to scope
// every query to a single document, keeping every operation scoped to a
// single fileId.
type bleveDocument struct {
	FileID  string `json:"fileId"`
	Content string `json:"content"`
}

// bleveBM25Index wraps Bleve v2 for the bm25Search operation: path-based
// open with a corruption check and auto-recreate, rather than Bleve's own
// error surfacing.
type bleveBM25Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// newBleveBM25Index opens (or creates) a Bleve index at path. An empty
// path yields an in-memory index, useful for tests and ephemeral sessions.
func newBleveBM25Index(path string) (*bleveBM25Index, error) {
	mapping := bleve.NewIndexMapping()
	mapping.DefaultMapping.AddFieldMappingsAt("fileId", bleve.NewKeywordFieldMapping())

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(mapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("store: create bm25 index dir: %w", mkErr)
		}

		if validateErr := validateBleveIntegrity(path); validateErr != nil {
			// Corrupted on-disk index: drop it and let a fresh one get
			// created below. The caller is expected to reindex.
			_ = os.RemoveAll(path)
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, mapping)
		} else if err != nil && isBleveCorruption(err) {
			_ = os.RemoveAll(path)
			idx, err = bleve.New(path, mapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("store: open bm25 index: %w", err)
	}

	return &bleveBM25Index{index: idx, path: path}, nil
}

// validateBleveIntegrity reports whether path looks like a usable Bleve
// index directory; a missing index_meta.json means a previous process was
// interrupted mid-write.
func validateBleveIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return fmt.Errorf("stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}
	return nil
}

func isBleveCorruption(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment") ||
		strings.Contains(msg, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

func (b *bleveBM25Index) indexDocs(ctx context.Context, docs map[string]bleveDocument) error {
	if len(docs) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("store: bm25 index closed")
	}

	batch := b.index.NewBatch()
	for id, doc := range docs {
		if err := batch.Index(id, doc); err != nil {
			return fmt.Errorf("store: index document %s: %w", id, err)
		}
	}
	return b.index.Batch(batch)
}

func (b *bleveBM25Index) search(ctx context.Context, fileID, query string, k int) ([]BM25Row, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, fmt.Errorf("store: bm25 index closed")
	}
	if strings.TrimSpace(query) == "" {
		return []BM25Row{}, nil
	}

	contentQuery := bleve.NewMatchQuery(query)
	contentQuery.SetField("content")
	fileQuery := bleve.NewTermQuery(fileID)
	fileQuery.SetField("fileId")

	conjunction := bleve.NewConjunctionQuery(contentQuery, fileQuery)
	req := bleve.NewSearchRequest(conjunction)
	req.Size = k
	req.Fields = []string{"content"}

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("store: bm25 search: %w", err)
	}

	rows := make([]BM25Row, 0, len(result.Hits))
	for _, hit := range result.Hits {
		content, _ := hit.Fields["content"].(string)
		rows = append(rows, BM25Row{ID: hit.ID, Content: content, Score: float32(hit.Score)})
	}
	return rows, nil
}

func (b *bleveBM25Index) delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("store: bm25 index closed")
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return b.index.Batch(batch)
}

func (b *bleveBM25Index) close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}
