// Package indexer persists embedded chunks into the vector store.
package indexer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"paperchat/internal/models"
	"paperchat/internal/storage"
	"paperchat/internal/util"
)

// ChunkStore is the write surface the indexer needs from storage.
type ChunkStore interface {
	ReplaceChunks(ctx context.Context, collectionID, paperID string, chunks []storage.ChunkRecord) error
}

type Indexer struct {
	store  ChunkStore
	logger *zap.Logger
}

func New(store ChunkStore, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{store: store, logger: logger}
}

// IndexChunks writes the paper's chunks and their embeddings, replacing
// any rows from a previous ingest of the same paper. Chunks and vectors
// must correspond one-to-one by position.
func (ix *Indexer) IndexChunks(ctx context.Context, collectionID, paperID string, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%w: %d chunks, %d vectors", util.ErrEmbeddingMismatch, len(chunks), len(vectors))
	}
	records := make([]storage.ChunkRecord, 0, len(chunks))
	for i, c := range chunks {
		records = append(records, storage.ChunkRecord{
			ChunkID:      c.ChunkID,
			PaperID:      paperID,
			CollectionID: collectionID,
			ChunkIndex:   c.ChunkIndex,
			Content:      c.Content,
			TokenCount:   c.TokenCount,
			Embedding:    vectors[i],
		})
	}
	if err := ix.store.ReplaceChunks(ctx, collectionID, paperID, records); err != nil {
		return fmt.Errorf("index chunks for paper %s: %w", paperID, err)
	}
	ix.logger.Info("indexed paper chunks",
		zap.String("collection_id", collectionID),
		zap.String("paper_id", paperID),
		zap.Int("chunks", len(records)))
	return nil
}
