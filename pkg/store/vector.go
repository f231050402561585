package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// hnswGraph is one file's vector index: a pure-Go HNSW graph plus the
// string<->uint64 ID mapping coder/hnsw requires. Deletes are lazy
// (mapping removed, node left orphaned in the graph) because coder/hnsw
// has a known bug when the last node in a graph is deleted.
type hnswGraph struct {
	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
}

func newHNSWGraph() *hnswGraph {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 20
	g.Ml = 0.25
	return &hnswGraph{graph: g, idMap: make(map[string]uint64), keyMap: make(map[uint64]string)}
}

// hnswVectorIndex is the vectorSearch backend: one hnswGraph per
// fileID, each independently persistable.
type hnswVectorIndex struct {
	mu        sync.RWMutex
	dimension int
	root      string // directory for Save/Load persistence; empty disables it
	graphs    map[string]*hnswGraph
}

func newHNSWVectorIndex(dimension int, root string) *hnswVectorIndex {
	return &hnswVectorIndex{dimension: dimension, root: root, graphs: make(map[string]*hnswGraph)}
}

func (v *hnswVectorIndex) graphFor(fileID string) *hnswGraph {
	g, ok := v.graphs[fileID]
	if !ok {
		g = newHNSWGraph()
		v.graphs[fileID] = g
	}
	return g
}

// add inserts or replaces vectors for ids in fileID's graph.
func (v *hnswVectorIndex) add(ctx context.Context, fileID string, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("store: ids/vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	for _, vec := range vectors {
		if len(vec) != v.dimension {
			return fmt.Errorf("store: vector dimension mismatch: expected %d, got %d", v.dimension, len(vec))
		}
	}

	g := v.graphFor(fileID)
	for i, id := range ids {
		if existingKey, exists := g.idMap[id]; exists {
			delete(g.keyMap, existingKey)
			delete(g.idMap, id)
		}

		key := g.nextKey
		g.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeInPlace(vec)

		g.graph.Add(hnsw.MakeNode(key, vec))
		g.idMap[id] = key
		g.keyMap[key] = id
	}
	return nil
}

// search returns up to k rows whose cosine similarity to query is at
// least threshold, descending by similarity.
func (v *hnswVectorIndex) search(ctx context.Context, fileID string, query []float32, k int, threshold float32) ([]VectorRow, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	g, ok := v.graphs[fileID]
	if !ok || g.graph.Len() == 0 {
		return []VectorRow{}, nil
	}
	if len(query) != v.dimension {
		return nil, fmt.Errorf("store: query dimension mismatch: expected %d, got %d", v.dimension, len(query))
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	nodes := g.graph.Search(normalized, k)

	rows := make([]VectorRow, 0, len(nodes))
	for _, node := range nodes {
		id, exists := g.keyMap[node.Key]
		if !exists {
			continue // lazily-deleted tombstone
		}
		distance := g.graph.Distance(normalized, node.Value)
		similarity := 1.0 - distance // cosine distance in [0,2] -> similarity in [-1,1]
		if similarity < threshold {
			continue
		}
		rows = append(rows, VectorRow{ID: id, Similarity: similarity})
	}
	return rows, nil
}

func (v *hnswVectorIndex) delete(ctx context.Context, fileID string, ids []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	g, ok := v.graphs[fileID]
	if !ok {
		return nil
	}
	for _, id := range ids {
		if key, exists := g.idMap[id]; exists {
			delete(g.keyMap, key)
			delete(g.idMap, id)
		}
	}
	return nil
}

func (v *hnswVectorIndex) deleteFile(ctx context.Context, fileID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.graphs, fileID)
}

// save persists fileID's graph to <root>/<fileID>.hnsw(+.meta), atomically.
func (v *hnswVectorIndex) save(fileID string) error {
	if v.root == "" {
		return nil
	}
	v.mu.RLock()
	defer v.mu.RUnlock()

	g, ok := v.graphs[fileID]
	if !ok {
		return nil
	}

	if err := os.MkdirAll(v.root, 0o755); err != nil {
		return fmt.Errorf("store: create vector index dir: %w", err)
	}

	path := filepath.Join(v.root, fileID+".hnsw")
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("store: create temp vector index file: %w", err)
	}
	if err := g.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("store: export vector graph: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store: close temp vector index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store: rename temp vector index file: %w", err)
	}

	return v.saveMeta(fileID, g)
}

func (v *hnswVectorIndex) saveMeta(fileID string, g *hnswGraph) error {
	metaPath := filepath.Join(v.root, fileID+".hnsw.meta")
	tmp := metaPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("store: create temp vector meta file: %w", err)
	}
	meta := struct {
		IDMap   map[string]uint64
		NextKey uint64
	}{IDMap: g.idMap, NextKey: g.nextKey}

	if err := gob.NewEncoder(f).Encode(meta); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("store: encode vector meta: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store: close temp vector meta file: %w", err)
	}
	return os.Rename(tmp, metaPath)
}

// load restores fileID's graph from disk, if present.
func (v *hnswVectorIndex) load(fileID string) error {
	if v.root == "" {
		return nil
	}
	path := filepath.Join(v.root, fileID+".hnsw")
	metaPath := path + ".meta"

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	mf, err := os.Open(metaPath)
	if err != nil {
		return fmt.Errorf("store: open vector meta file: %w", err)
	}
	defer mf.Close()

	var meta struct {
		IDMap   map[string]uint64
		NextKey uint64
	}
	if err := gob.NewDecoder(mf).Decode(&meta); err != nil {
		return fmt.Errorf("store: decode vector meta: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("store: open vector index file: %w", err)
	}
	defer f.Close()

	g := newHNSWGraph()
	if err := g.graph.Import(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("store: import vector graph: %w", err)
	}
	g.idMap = meta.IDMap
	g.nextKey = meta.NextKey
	g.keyMap = make(map[uint64]string, len(meta.IDMap))
	for id, key := range meta.IDMap {
		g.keyMap[key] = id
	}

	v.mu.Lock()
	v.graphs[fileID] = g
	v.mu.Unlock()
	return nil
}

func normalizeInPlace(vec []float32) {
	var sumSquares float64
	for _, val := range vec {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range vec {
		vec[i] *= inv
	}
}
