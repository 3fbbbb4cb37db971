package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ModelCall is an audit row recording one call to a model provider.
type ModelCall struct {
	CallID       string
	Operation    string
	CollectionID string
	PaperID      string
	ProviderName string
	Model        string
	RequestID    string
	Status       string
	ErrorType    string
	CreatedAt    time.Time
}

type ModelCallRepo struct {
	db *DB
}

func NewModelCallRepo(db *DB) *ModelCallRepo {
	return &ModelCallRepo{db: db}
}

func (r *ModelCallRepo) Record(ctx context.Context, call ModelCall) error {
	if call.CallID == "" {
		call.CallID = uuid.NewString()
	}
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO model_calls (call_id, operation, collection_id, paper_id, provider_name, model, request_id, status, error_type)
VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), NULLIF($5,''), NULLIF($6,''), NULLIF($7,''), NULLIF($8,''), NULLIF($9,''))`,
		call.CallID, call.Operation, call.CollectionID, call.PaperID, call.ProviderName, call.Model, call.RequestID, call.Status, call.ErrorType)
	if err != nil {
		return fmt.Errorf("record model call: %w", err)
	}
	return nil
}

func (r *ModelCallRepo) ListRecent(ctx context.Context, limit int) ([]ModelCall, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT call_id, operation, COALESCE(collection_id,''), COALESCE(paper_id,''), COALESCE(provider_name,''),
       COALESCE(model,''), COALESCE(request_id,''), COALESCE(status,''), COALESCE(error_type,''), created_at
FROM model_calls
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list model calls: %w", err)
	}
	defer rows.Close()
	out := make([]ModelCall, 0, limit)
	for rows.Next() {
		var c ModelCall
		if err := rows.Scan(&c.CallID, &c.Operation, &c.CollectionID, &c.PaperID, &c.ProviderName,
			&c.Model, &c.RequestID, &c.Status, &c.ErrorType, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan model call: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
