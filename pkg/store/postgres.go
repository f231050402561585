package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresStore is a durable index store backed entirely by
// Postgres/pgvector: one row per chunk, a `vector(N)` column for
// cosine search, and a `tsvector` column for BM25-style full-text ranking
// (ts_rank_cd, not true BM25, but the nearest built-in Postgres analogue).
// Use this instead of the in-process HybridStore when chunks must
// survive process restarts without a separate save/load step.
type PostgresStore struct {
	pool      *pgxpool.Pool
	dimension int
}

// NewPostgresStore connects to dsn, enables the vector extension, and
// ensures the backing table exists.
func NewPostgresStore(ctx context.Context, dsn string, dimension int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool, dimension: dimension}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector;"); err != nil {
		return fmt.Errorf("store: enable vector extension: %w", err)
	}

	ddl := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS rag_chunks (
		id UUID PRIMARY KEY,
		file_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		page_number INTEGER NOT NULL,
		start_page INTEGER NOT NULL,
		end_page INTEGER NOT NULL,
		content_type TEXT NOT NULL,
		section_title TEXT NOT NULL DEFAULT '',
		contains_table BOOLEAN NOT NULL DEFAULT FALSE,
		contains_list BOOLEAN NOT NULL DEFAULT FALSE,
		image_count INTEGER NOT NULL DEFAULT 0,
		embedding vector(%d),
		content_tsv tsvector GENERATED ALWAYS AS (to_tsvector('simple', content)) STORED,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		UNIQUE(file_id, chunk_index)
	);
	CREATE INDEX IF NOT EXISTS rag_chunks_file_idx ON rag_chunks(file_id);
	CREATE INDEX IF NOT EXISTS rag_chunks_tsv_idx ON rag_chunks USING GIN(content_tsv);
	`, s.dimension)

	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("store: create rag_chunks table: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertChunks(ctx context.Context, records []UpsertRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(`
			INSERT INTO rag_chunks (id, file_id, chunk_index, content, page_number, start_page, end_page, content_type, section_title, contains_table, contains_list, image_count, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (file_id, chunk_index) DO UPDATE SET
				id = EXCLUDED.id,
				content = EXCLUDED.content,
				page_number = EXCLUDED.page_number,
				start_page = EXCLUDED.start_page,
				end_page = EXCLUDED.end_page,
				content_type = EXCLUDED.content_type,
				section_title = EXCLUDED.section_title,
				contains_table = EXCLUDED.contains_table,
				contains_list = EXCLUDED.contains_list,
				image_count = EXCLUDED.image_count,
				embedding = EXCLUDED.embedding
		`, r.ID, r.FileID, r.ChunkIndex, r.Content, r.PageNumber, r.StartPage, r.EndPage, r.ContentType, r.SectionTitle, r.ContainsTable, r.ContainsList, r.ImageCount, pgvector.NewVector(r.Vector))
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("store: upsert chunk: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) DeleteFile(ctx context.Context, fileID string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM rag_chunks WHERE file_id = $1", fileID)
	if err != nil {
		return fmt.Errorf("store: delete file: %w", err)
	}
	return nil
}

func (s *PostgresStore) VectorSearch(ctx context.Context, fileID string, queryVector []float32, k int, threshold float32) ([]VectorRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, content, page_number, chunk_index, section_title, contains_table, contains_list, image_count, 1 - (embedding <=> $1) AS similarity
		FROM rag_chunks
		WHERE file_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, pgvector.NewVector(queryVector), fileID, k)
	if err != nil {
		return nil, fmt.Errorf("store: vector search: %w", err)
	}
	defer rows.Close()

	var result []VectorRow
	for rows.Next() {
		var v VectorRow
		if err := rows.Scan(&v.ID, &v.Content, &v.PageNumber, &v.ChunkIndex, &v.SectionTitle, &v.ContainsTable, &v.ContainsList, &v.ImageCount, &v.Similarity); err != nil {
			return nil, fmt.Errorf("store: scan vector row: %w", err)
		}
		if v.Similarity >= threshold {
			result = append(result, v)
		}
	}
	if result == nil {
		result = []VectorRow{}
	}
	return result, rows.Err()
}

func (s *PostgresStore) BM25Search(ctx context.Context, fileID string, query string, k int) ([]BM25Row, error) {
	if strings.TrimSpace(query) == "" {
		return []BM25Row{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, content, page_number, chunk_index, section_title, contains_table, contains_list, image_count, ts_rank_cd(content_tsv, plainto_tsquery('simple', $1)) AS score
		FROM rag_chunks
		WHERE file_id = $2 AND content_tsv @@ plainto_tsquery('simple', $1)
		ORDER BY score DESC
		LIMIT $3
	`, query, fileID, k)
	if err != nil {
		return nil, fmt.Errorf("store: bm25 search: %w", err)
	}
	defer rows.Close()

	var result []BM25Row
	for rows.Next() {
		var b BM25Row
		if err := rows.Scan(&b.ID, &b.Content, &b.PageNumber, &b.ChunkIndex, &b.SectionTitle, &b.ContainsTable, &b.ContainsList, &b.ImageCount, &b.Score); err != nil {
			return nil, fmt.Errorf("store: scan bm25 row: %w", err)
		}
		result = append(result, b)
	}
	if result == nil {
		result = []BM25Row{}
	}
	return result, rows.Err()
}

func (s *PostgresStore) FetchByPages(ctx context.Context, fileID string, pages []int, k int) ([]ChunkRow, error) {
	if len(pages) == 0 {
		return []ChunkRow{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, chunk_index, content, page_number, start_page, end_page, content_type, section_title, contains_table, contains_list, image_count
		FROM rag_chunks
		WHERE file_id = $1 AND page_number = ANY($2)
		ORDER BY chunk_index ASC
		LIMIT $3
	`, fileID, pages, k)
	if err != nil {
		return nil, fmt.Errorf("store: fetch by pages: %w", err)
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

func (s *PostgresStore) FetchByContent(ctx context.Context, fileID string, terms []string, k int) ([]ChunkRow, error) {
	if len(terms) == 0 {
		return []ChunkRow{}, nil
	}

	clauses := make([]string, len(terms))
	args := make([]any, 0, len(terms)+2)
	args = append(args, fileID)
	for i, t := range terms {
		clauses[i] = fmt.Sprintf("content ILIKE $%d", i+2)
		args = append(args, "%"+t+"%")
	}
	args = append(args, k)

	query := fmt.Sprintf(`
		SELECT id, chunk_index, content, page_number, start_page, end_page, content_type, section_title, contains_table, contains_list, image_count
		FROM rag_chunks
		WHERE file_id = $1 AND (%s)
		ORDER BY chunk_index ASC
		LIMIT $%d
	`, strings.Join(clauses, " OR "), len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: fetch by content: %w", err)
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

func (s *PostgresStore) FetchSlice(ctx context.Context, fileID string, offset, limit int, ascending bool) ([]ChunkRow, error) {
	order := "ASC"
	if !ascending {
		order = "DESC"
	}
	query := fmt.Sprintf(`
		SELECT id, chunk_index, content, page_number, start_page, end_page, content_type, section_title, contains_table, contains_list, image_count
		FROM rag_chunks
		WHERE file_id = $1
		ORDER BY chunk_index %s
		OFFSET $2 LIMIT $3
	`, order)

	rows, err := s.pool.Query(ctx, query, fileID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("store: fetch slice: %w", err)
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

func (s *PostgresStore) CountChunks(ctx context.Context, fileID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM rag_chunks WHERE file_id = $1", fileID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("store: count chunks: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanChunkRows(rows pgx.Rows) ([]ChunkRow, error) {
	var result []ChunkRow
	for rows.Next() {
		var c ChunkRow
		if err := rows.Scan(&c.ID, &c.ChunkIndex, &c.Content, &c.PageNumber, &c.StartPage, &c.EndPage, &c.ContentType, &c.SectionTitle, &c.ContainsTable, &c.ContainsList, &c.ImageCount); err != nil {
			return nil, fmt.Errorf("store: scan chunk row: %w", err)
		}
		result = append(result, c)
	}
	if result == nil {
		result = []ChunkRow{}
	}
	return result, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
