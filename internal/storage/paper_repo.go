package storage

import (
	"context"
	"fmt"

	"paperchat/internal/models"
)

type PaperRepo struct {
	db *DB
}

func NewPaperRepo(db *DB) *PaperRepo {
	return &PaperRepo{db: db}
}

const paperColumns = `paper_id, COALESCE(title,''), COALESCE(abstract,''), COALESCE(authors,'{}'), year,
       COALESCE(venue,''), citation_count, COALESCE(pdf_url,''), COALESCE(storage_key,''),
       status, COALESCE(fail_reason,''), created_at, updated_at`

func scanPaper(row interface{ Scan(...any) error }) (models.Paper, error) {
	var p models.Paper
	err := row.Scan(&p.PaperID, &p.Title, &p.Abstract, &p.Authors, &p.Year,
		&p.Venue, &p.CitationCount, &p.PDFURL, &p.StorageKey,
		&p.Status, &p.FailReason, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *PaperRepo) UpsertPaper(ctx context.Context, p models.Paper) error {
	if p.Status == "" {
		p.Status = models.StatusPending
	}
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO papers (paper_id, title, abstract, authors, year, venue, citation_count, pdf_url, storage_key, status, fail_reason)
VALUES ($1, NULLIF($2,''), NULLIF($3,''), $4, $5, NULLIF($6,''), $7, NULLIF($8,''), NULLIF($9,''), $10, NULLIF($11,''))
ON CONFLICT (paper_id)
DO UPDATE SET
  title = COALESCE(EXCLUDED.title, papers.title),
  abstract = COALESCE(EXCLUDED.abstract, papers.abstract),
  authors = CASE WHEN cardinality(EXCLUDED.authors) > 0 THEN EXCLUDED.authors ELSE papers.authors END,
  year = COALESCE(EXCLUDED.year, papers.year),
  venue = COALESCE(EXCLUDED.venue, papers.venue),
  citation_count = COALESCE(EXCLUDED.citation_count, papers.citation_count),
  pdf_url = COALESCE(EXCLUDED.pdf_url, papers.pdf_url),
  storage_key = COALESCE(EXCLUDED.storage_key, papers.storage_key),
  updated_at = NOW()`,
		p.PaperID, p.Title, p.Abstract, p.Authors, p.Year, p.Venue, p.CitationCount, p.PDFURL, p.StorageKey, p.Status, p.FailReason,
	)
	if err != nil {
		return fmt.Errorf("upsert paper: %w", err)
	}
	return nil
}

// UpdatePaperStatus transitions a paper's status, enforcing the allowed
// transitions in a single guarded UPDATE. It reports whether the row
// actually changed, so callers can distinguish an invalid transition
// from a missing paper.
func (r *PaperRepo) UpdatePaperStatus(ctx context.Context, paperID string, status models.PaperStatus, failReason string) (bool, error) {
	preds := models.AllowedPredecessors(status)
	if len(preds) == 0 {
		return false, fmt.Errorf("no transition into status %q", status)
	}
	predStrs := make([]string, 0, len(preds))
	for _, s := range preds {
		predStrs = append(predStrs, string(s))
	}
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE papers SET status=$2, fail_reason=NULLIF($3,''), updated_at=NOW()
WHERE paper_id=$1 AND status = ANY($4)`,
		paperID, status, failReason, predStrs)
	if err != nil {
		return false, fmt.Errorf("update paper status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PaperRepo) SetStorageKey(ctx context.Context, paperID, storageKey string) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE papers SET storage_key=$2, updated_at=NOW() WHERE paper_id=$1`, paperID, storageKey)
	if err != nil {
		return fmt.Errorf("set storage key: %w", err)
	}
	return nil
}

func (r *PaperRepo) GetPaperByID(ctx context.Context, paperID string) (models.Paper, error) {
	p, err := scanPaper(r.db.Pool.QueryRow(ctx, `
SELECT `+paperColumns+`
FROM papers
WHERE paper_id=$1`, paperID))
	if err != nil {
		return models.Paper{}, fmt.Errorf("get paper by id: %w", err)
	}
	return p, nil
}

func (r *PaperRepo) ListPapersByCollection(ctx context.Context, collectionID string) ([]models.Paper, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT `+paperColumns+`
FROM papers
JOIN collection_papers USING (paper_id)
WHERE collection_papers.collection_id=$1::uuid
ORDER BY created_at DESC`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	defer rows.Close()

	out := make([]models.Paper, 0)
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, fmt.Errorf("scan paper: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate papers: %w", err)
	}
	return out, nil
}

func (r *PaperRepo) ListFailedPapers(ctx context.Context, collectionID string) ([]models.Paper, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT `+paperColumns+`
FROM papers
JOIN collection_papers USING (paper_id)
WHERE collection_papers.collection_id=$1::uuid AND status='failed'
ORDER BY updated_at DESC`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("list failed papers: %w", err)
	}
	defer rows.Close()
	out := make([]models.Paper, 0)
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed paper: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PaperRepo) ListPapersByIDs(ctx context.Context, paperIDs []string) ([]models.Paper, error) {
	if len(paperIDs) == 0 {
		return []models.Paper{}, nil
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT `+paperColumns+`
FROM papers
WHERE paper_id = ANY($1)`, paperIDs)
	if err != nil {
		return nil, fmt.Errorf("list papers by ids: %w", err)
	}
	defer rows.Close()

	out := make([]models.Paper, 0, len(paperIDs))
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, fmt.Errorf("scan paper by id: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate papers by ids: %w", err)
	}
	return out, nil
}

func (r *PaperRepo) CountPapersByStatus(ctx context.Context, collectionID string) (map[models.PaperStatus]int, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT status, COUNT(*)
FROM papers
JOIN collection_papers USING (paper_id)
WHERE collection_papers.collection_id=$1::uuid
GROUP BY status`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("count papers by status: %w", err)
	}
	defer rows.Close()
	out := make(map[models.PaperStatus]int)
	for rows.Next() {
		var s models.PaperStatus
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		out[s] = n
	}
	return out, rows.Err()
}
