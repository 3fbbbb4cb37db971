package storage

import (
	"context"
	"fmt"

	"paperchat/internal/models"
)

// ChunkRecord is a chunk with its embedding ready for insertion. The
// vector is rendered as a pgvector text literal.
type ChunkRecord struct {
	ChunkID      string
	PaperID      string
	CollectionID string
	ChunkIndex   int
	Content      string
	TokenCount   int
	Embedding    []float32
}

type ChunkRepo struct {
	db *DB
}

func NewChunkRepo(db *DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// ReplaceChunks deletes the paper's existing chunks in the collection
// and inserts the new set in one transaction, so a re-ingest never
// leaves stale rows behind.
func (r *ChunkRepo) ReplaceChunks(ctx context.Context, collectionID, paperID string, chunks []ChunkRecord) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx replace chunks: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE collection_id=$1::uuid AND paper_id=$2`, collectionID, paperID); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}
	for _, c := range chunks {
		_, err := tx.Exec(ctx, `
INSERT INTO chunks (chunk_id, paper_id, collection_id, chunk_index, content, token_count, embedding)
VALUES ($1, $2, $3::uuid, $4, $5, $6, $7::vector)
ON CONFLICT (paper_id, collection_id, chunk_index)
DO UPDATE SET
  chunk_id = EXCLUDED.chunk_id,
  content = EXCLUDED.content,
  token_count = EXCLUDED.token_count,
  embedding = EXCLUDED.embedding`,
			c.ChunkID, c.PaperID, c.CollectionID, c.ChunkIndex, c.Content, c.TokenCount, ToVectorLiteral(c.Embedding),
		)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ChunkID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunks tx: %w", err)
	}
	return nil
}

func (r *ChunkRepo) ListChunksByPaper(ctx context.Context, collectionID, paperID string) ([]models.Chunk, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT chunk_id, paper_id, collection_id::text, chunk_index, content, token_count, created_at
FROM chunks
WHERE collection_id=$1::uuid AND paper_id=$2
ORDER BY chunk_index ASC`, collectionID, paperID)
	if err != nil {
		return nil, fmt.Errorf("list chunks by paper: %w", err)
	}
	defer rows.Close()
	out := make([]models.Chunk, 0, 64)
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.ChunkID, &c.PaperID, &c.CollectionID, &c.ChunkIndex, &c.Content, &c.TokenCount, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk by paper: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk by paper: %w", err)
	}
	return out, nil
}

func (r *ChunkRepo) CountChunks(ctx context.Context, collectionID, paperID string) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `
SELECT COUNT(*) FROM chunks WHERE collection_id=$1::uuid AND paper_id=$2`, collectionID, paperID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// SemanticRank returns the collection's chunks ordered by cosine
// distance to the query vector, closest first.
func (r *ChunkRepo) SemanticRank(ctx context.Context, collectionID string, queryVec []float32, limit int) ([]models.RankedChunk, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT chunk_id, paper_id, chunk_index, content, 1 - (embedding <=> $2::vector) AS score
FROM chunks
WHERE collection_id=$1::uuid AND embedding IS NOT NULL
ORDER BY embedding <=> $2::vector
LIMIT $3`, collectionID, ToVectorLiteral(queryVec), limit)
	if err != nil {
		return nil, fmt.Errorf("semantic rank: %w", err)
	}
	defer rows.Close()
	out := make([]models.RankedChunk, 0, limit)
	for rows.Next() {
		var c models.RankedChunk
		if err := rows.Scan(&c.ChunkID, &c.PaperID, &c.ChunkIndex, &c.Content, &c.SemanticScore); err != nil {
			return nil, fmt.Errorf("scan semantic rank: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// KeywordRank returns the collection's chunks ordered by full-text
// relevance against the query, best first. Queries with no lexical
// overlap return an empty list.
func (r *ChunkRepo) KeywordRank(ctx context.Context, collectionID, query string, limit int) ([]models.RankedChunk, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT chunk_id, paper_id, chunk_index, content,
       ts_rank(content_tsv, plainto_tsquery('english', $2)) AS score
FROM chunks
WHERE collection_id=$1::uuid AND content_tsv @@ plainto_tsquery('english', $2)
ORDER BY score DESC
LIMIT $3`, collectionID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword rank: %w", err)
	}
	defer rows.Close()
	out := make([]models.RankedChunk, 0, limit)
	for rows.Next() {
		var c models.RankedChunk
		if err := rows.Scan(&c.ChunkID, &c.PaperID, &c.ChunkIndex, &c.Content, &c.KeywordScore); err != nil {
			return nil, fmt.Errorf("scan keyword rank: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
