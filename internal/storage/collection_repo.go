package storage

import (
	"context"
	"fmt"

	"paperchat/internal/models"
)

type CollectionRepo struct {
	db *DB
}

func NewCollectionRepo(db *DB) *CollectionRepo {
	return &CollectionRepo{db: db}
}

func (r *CollectionRepo) CreateCollection(ctx context.Context, c models.Collection) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO collections (collection_id, owner_id, name, search_query, description)
VALUES ($1::uuid, $2, $3, NULLIF($4,''), NULLIF($5,''))`,
		c.CollectionID, c.OwnerID, c.Name, c.SearchQuery, c.Description)
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return nil
}

func (r *CollectionRepo) GetCollection(ctx context.Context, collectionID string) (models.Collection, error) {
	var c models.Collection
	err := r.db.Pool.QueryRow(ctx, `
SELECT collection_id::text, owner_id, name, COALESCE(search_query,''), COALESCE(description,''), created_at, updated_at
FROM collections
WHERE collection_id=$1::uuid`, collectionID).
		Scan(&c.CollectionID, &c.OwnerID, &c.Name, &c.SearchQuery, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return models.Collection{}, fmt.Errorf("get collection: %w", err)
	}
	return c, nil
}

func (r *CollectionRepo) ListCollections(ctx context.Context, ownerID string) ([]models.Collection, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT collection_id::text, owner_id, name, COALESCE(search_query,''), COALESCE(description,''), created_at, updated_at
FROM collections
WHERE owner_id=$1
ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()
	out := make([]models.Collection, 0)
	for rows.Next() {
		var c models.Collection
		if err := rows.Scan(&c.CollectionID, &c.OwnerID, &c.Name, &c.SearchQuery, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddPaperToCollection links a paper into a collection. Re-adding an
// existing link keeps the original relation and similarity.
func (r *CollectionRepo) AddPaperToCollection(ctx context.Context, link models.CollectionPaper) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO collection_papers (collection_id, paper_id, source_paper_id, relation_type, similarity_score)
VALUES ($1::uuid, $2, NULLIF($3,''), NULLIF($4,''), $5)
ON CONFLICT (collection_id, paper_id) DO NOTHING`,
		link.CollectionID, link.PaperID, link.SourcePaperID, link.RelationType, link.SimilarityScore)
	if err != nil {
		return fmt.Errorf("add paper to collection: %w", err)
	}
	return nil
}

func (r *CollectionRepo) RemovePaperFromCollection(ctx context.Context, collectionID, paperID string) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx remove paper: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE collection_id=$1::uuid AND paper_id=$2`, collectionID, paperID); err != nil {
		return fmt.Errorf("delete paper chunks: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM collection_papers WHERE collection_id=$1::uuid AND paper_id=$2`, collectionID, paperID); err != nil {
		return fmt.Errorf("unlink paper: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit remove paper tx: %w", err)
	}
	return nil
}

func (r *CollectionRepo) ListCollectionLinks(ctx context.Context, collectionID string) ([]models.CollectionPaper, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT collection_id::text, paper_id, COALESCE(source_paper_id,''), COALESCE(relation_type,''), similarity_score, added_at
FROM collection_papers
WHERE collection_id=$1::uuid
ORDER BY added_at ASC`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("list collection links: %w", err)
	}
	defer rows.Close()
	out := make([]models.CollectionPaper, 0)
	for rows.Next() {
		var l models.CollectionPaper
		if err := rows.Scan(&l.CollectionID, &l.PaperID, &l.SourcePaperID, &l.RelationType, &l.SimilarityScore, &l.AddedAt); err != nil {
			return nil, fmt.Errorf("scan collection link: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
