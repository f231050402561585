package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// chunkMeta is the in-memory metadata row HybridStore keeps alongside the
// Bleve and HNSW indexes, since neither of those carries page/section
// bookkeeping on its own.
type chunkMeta struct {
	id            string
	chunkIndex    int
	content       string
	pageNumber    int
	startPage     int
	endPage       int
	contentType   string
	sectionTitle  string
	containsTable bool
	containsList  bool
	imageCount    int
}

// HybridStore is the in-process index store: a Bleve BM25 index plus
// an HNSW vector index plus an in-memory metadata table, composed behind
// the single Store interface. This is the default, restart-not-required
// backend; PostgresStore is the durable alternative.
type HybridStore struct {
	mu   sync.RWMutex
	bm25 *bleveBM25Index
	vec  *hnswVectorIndex
	meta map[string]map[string]*chunkMeta // fileID -> chunkID -> meta
}

// HybridStoreConfig sets the vector dimension and the sub-index paths.
// BM25Path places the Bleve index on disk; empty keeps it in memory.
// VectorRoot is handed to the vector index, but HybridStore never calls
// its save/load helpers, so the vector graphs and the metadata table are
// held in memory only and do not survive a restart.
type HybridStoreConfig struct {
	Dimension  int
	BM25Path   string
	VectorRoot string
}

// NewHybridStore builds the composed store.
func NewHybridStore(cfg HybridStoreConfig) (*HybridStore, error) {
	bm25, err := newBleveBM25Index(cfg.BM25Path)
	if err != nil {
		return nil, err
	}
	return &HybridStore{
		bm25: bm25,
		vec:  newHNSWVectorIndex(cfg.Dimension, cfg.VectorRoot),
		meta: make(map[string]map[string]*chunkMeta),
	}, nil
}

func (h *HybridStore) UpsertChunks(ctx context.Context, records []UpsertRecord) error {
	if len(records) == 0 {
		return nil
	}

	byFile := make(map[string][]UpsertRecord)
	for _, r := range records {
		byFile[r.FileID] = append(byFile[r.FileID], r)
	}

	for fileID, recs := range byFile {
		ids := make([]string, len(recs))
		vectors := make([][]float32, len(recs))
		docs := make(map[string]bleveDocument, len(recs))

		h.mu.Lock()
		fileMeta, ok := h.meta[fileID]
		if !ok {
			fileMeta = make(map[string]*chunkMeta)
			h.meta[fileID] = fileMeta
		}
		for i, r := range recs {
			ids[i] = r.ID
			vectors[i] = r.Vector
			docs[r.ID] = bleveDocument{FileID: r.FileID, Content: r.Content}
			fileMeta[r.ID] = &chunkMeta{
				id:            r.ID,
				chunkIndex:    r.ChunkIndex,
				content:       r.Content,
				pageNumber:    r.PageNumber,
				startPage:     r.StartPage,
				endPage:       r.EndPage,
				contentType:   r.ContentType,
				sectionTitle:  r.SectionTitle,
				containsTable: r.ContainsTable,
				containsList:  r.ContainsList,
				imageCount:    r.ImageCount,
			}
		}
		h.mu.Unlock()

		if err := h.vec.add(ctx, fileID, ids, vectors); err != nil {
			return fmt.Errorf("store: upsert vectors: %w", err)
		}
		if err := h.bm25.indexDocs(ctx, docs); err != nil {
			return fmt.Errorf("store: upsert bm25 docs: %w", err)
		}
	}
	return nil
}

func (h *HybridStore) DeleteFile(ctx context.Context, fileID string) error {
	h.mu.Lock()
	fileMeta := h.meta[fileID]
	ids := make([]string, 0, len(fileMeta))
	for id := range fileMeta {
		ids = append(ids, id)
	}
	delete(h.meta, fileID)
	h.mu.Unlock()

	h.vec.deleteFile(ctx, fileID)
	return h.bm25.delete(ctx, ids)
}

func (h *HybridStore) VectorSearch(ctx context.Context, fileID string, queryVector []float32, k int, threshold float32) ([]VectorRow, error) {
	rows, err := h.vec.search(ctx, fileID, queryVector, k, threshold)
	if err != nil {
		return nil, err
	}
	h.enrichVectorRows(fileID, rows)
	return rows, nil
}

func (h *HybridStore) BM25Search(ctx context.Context, fileID string, query string, k int) ([]BM25Row, error) {
	rows, err := h.bm25.search(ctx, fileID, query, k)
	if err != nil {
		return nil, err
	}
	h.enrichBM25Rows(fileID, rows)
	return rows, nil
}

func (h *HybridStore) FetchByPages(ctx context.Context, fileID string, pages []int, k int) ([]ChunkRow, error) {
	want := make(map[int]struct{}, len(pages))
	for _, p := range pages {
		want[p] = struct{}{}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	var matched []*chunkMeta
	for _, m := range h.meta[fileID] {
		if _, ok := want[m.pageNumber]; ok {
			matched = append(matched, m)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].chunkIndex < matched[j].chunkIndex })
	if k > 0 && len(matched) > k {
		matched = matched[:k]
	}
	return toChunkRows(matched), nil
}

func (h *HybridStore) FetchByContent(ctx context.Context, fileID string, terms []string, k int) ([]ChunkRow, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var matched []*chunkMeta
	for _, m := range h.meta[fileID] {
		for _, term := range terms {
			if term != "" && strings.Contains(strings.ToLower(m.content), strings.ToLower(term)) {
				matched = append(matched, m)
				break
			}
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].chunkIndex < matched[j].chunkIndex })
	if k > 0 && len(matched) > k {
		matched = matched[:k]
	}
	return toChunkRows(matched), nil
}

func (h *HybridStore) FetchSlice(ctx context.Context, fileID string, offset, limit int, ascending bool) ([]ChunkRow, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	all := make([]*chunkMeta, 0, len(h.meta[fileID]))
	for _, m := range h.meta[fileID] {
		all = append(all, m)
	}
	if ascending {
		sort.Slice(all, func(i, j int) bool { return all[i].chunkIndex < all[j].chunkIndex })
	} else {
		sort.Slice(all, func(i, j int) bool { return all[i].chunkIndex > all[j].chunkIndex })
	}

	if offset >= len(all) {
		return []ChunkRow{}, nil
	}
	end := offset + limit
	if end > len(all) || limit <= 0 {
		end = len(all)
	}
	return toChunkRows(all[offset:end]), nil
}

func (h *HybridStore) CountChunks(ctx context.Context, fileID string) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.meta[fileID]), nil
}

func (h *HybridStore) Close() error {
	return h.bm25.close()
}

func (h *HybridStore) enrichVectorRows(fileID string, rows []VectorRow) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fileMeta := h.meta[fileID]
	for i := range rows {
		if m, ok := fileMeta[rows[i].ID]; ok {
			rows[i].Content = m.content
			rows[i].PageNumber = m.pageNumber
			rows[i].ChunkIndex = m.chunkIndex
			rows[i].SectionTitle = m.sectionTitle
			rows[i].ContainsTable = m.containsTable
			rows[i].ContainsList = m.containsList
			rows[i].ImageCount = m.imageCount
		}
	}
}

func (h *HybridStore) enrichBM25Rows(fileID string, rows []BM25Row) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fileMeta := h.meta[fileID]
	for i := range rows {
		if m, ok := fileMeta[rows[i].ID]; ok {
			rows[i].PageNumber = m.pageNumber
			rows[i].ChunkIndex = m.chunkIndex
			rows[i].SectionTitle = m.sectionTitle
			rows[i].ContainsTable = m.containsTable
			rows[i].ContainsList = m.containsList
			rows[i].ImageCount = m.imageCount
		}
	}
}

func toChunkRows(metas []*chunkMeta) []ChunkRow {
	rows := make([]ChunkRow, len(metas))
	for i, m := range metas {
		rows[i] = ChunkRow{
			ID:            m.id,
			ChunkIndex:    m.chunkIndex,
			Content:       m.content,
			PageNumber:    m.pageNumber,
			StartPage:     m.startPage,
			EndPage:       m.endPage,
			ContentType:   m.contentType,
			SectionTitle:  m.sectionTitle,
			ContainsTable: m.containsTable,
			ContainsList:  m.containsList,
			ImageCount:    m.imageCount,
		}
	}
	return rows
}

var _ Store = (*HybridStore)(nil)
