package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"paperchat/internal/models"
)

// RankStore is the ranked-retrieval surface of the chunk store.
type RankStore interface {
	SemanticRank(ctx context.Context, collectionID string, queryVec []float32, limit int) ([]models.RankedChunk, error)
	KeywordRank(ctx context.Context, collectionID, query string, limit int) ([]models.RankedChunk, error)
}

// QueryEmbedder turns a query string into a vector with the query task
// type applied.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Options struct {
	TopK           int
	SemanticWeight float64
	RRFK           float64
	// CandidateFactor widens each per-signal list before fusion so a
	// chunk ranked just below TopK in one list can still surface after
	// fusion.
	CandidateFactor int
}

func (o Options) normalized() Options {
	if o.TopK <= 0 {
		o.TopK = 20
	}
	if o.SemanticWeight <= 0 || o.SemanticWeight > 1 {
		o.SemanticWeight = 0.7
	}
	if o.RRFK <= 0 {
		o.RRFK = 60
	}
	if o.CandidateFactor <= 0 {
		o.CandidateFactor = 2
	}
	return o
}

type Engine struct {
	store    RankStore
	embedder QueryEmbedder
	opts     Options
	logger   *zap.Logger
}

func NewEngine(store RankStore, embedder QueryEmbedder, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, embedder: embedder, opts: opts.normalized(), logger: logger}
}

// Hybrid runs semantic and keyword retrieval over the collection and
// fuses the two rankings. An empty collection yields an empty result,
// not an error.
func (e *Engine) Hybrid(ctx context.Context, collectionID, query string) ([]models.RankedChunk, error) {
	queryVec, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed search query: %w", err)
	}
	candidates := e.opts.TopK * e.opts.CandidateFactor
	semantic, err := e.store.SemanticRank(ctx, collectionID, queryVec, candidates)
	if err != nil {
		return nil, fmt.Errorf("semantic retrieval: %w", err)
	}
	keyword, err := e.store.KeywordRank(ctx, collectionID, query, candidates)
	if err != nil {
		return nil, fmt.Errorf("keyword retrieval: %w", err)
	}
	fused := FuseRankings(semantic, keyword, e.opts.SemanticWeight, e.opts.RRFK)
	if len(fused) > e.opts.TopK {
		fused = fused[:e.opts.TopK]
	}
	e.logger.Debug("hybrid search",
		zap.String("collection_id", collectionID),
		zap.Int("semantic", len(semantic)),
		zap.Int("keyword", len(keyword)),
		zap.Int("fused", len(fused)))
	return fused, nil
}

// Semantic retrieves by vector similarity alone, used when keyword
// signals would only add noise, such as similarity-based paper
// discovery.
func (e *Engine) Semantic(ctx context.Context, collectionID, query string) ([]models.RankedChunk, error) {
	queryVec, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed search query: %w", err)
	}
	results, err := e.store.SemanticRank(ctx, collectionID, queryVec, e.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("semantic retrieval: %w", err)
	}
	for i := range results {
		results[i].CombinedScore = results[i].SemanticScore
	}
	return results, nil
}
