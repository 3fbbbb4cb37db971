// Package embedding wraps an embedding provider behind the two call
// shapes retrieval needs: single queries and ordered document batches.
package embedding

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"paperchat/internal/providers"
)

type Options struct {
	// Dimension is the system-wide vector width. It must match the
	// store's vector column; changing it requires a full re-index.
	Dimension int
	// BatchSize groups document inputs per provider round.
	BatchSize int
	// Parallelism bounds concurrent provider calls within one batch.
	Parallelism int
	// InterBatchDelay spaces batches out to respect provider quotas.
	InterBatchDelay time.Duration
}

func (o Options) normalized() Options {
	if o.Dimension <= 0 {
		o.Dimension = 768
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	if o.Parallelism <= 0 {
		o.Parallelism = 4
	}
	return o
}

type Gateway struct {
	provider providers.EmbeddingProvider
	opts     Options
}

func NewGateway(p providers.EmbeddingProvider, opts Options) *Gateway {
	return &Gateway{provider: p, opts: opts.normalized()}
}

func (g *Gateway) Dimension() int { return g.opts.Dimension }

// EmbedQuery embeds a short query with the query task type.
func (g *Gateway) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, _, err := g.provider.Embed(ctx, providers.EmbedRequest{
		Operation: "embed_query",
		Inputs:    []string{text},
		TaskType:  providers.TaskQuery,
		Dimension: g.opts.Dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: expected 1 vector, got %d", len(vectors))
	}
	return vectors[0], nil
}

// EmbedDocuments embeds texts with the document task type, preserving
// input order one-to-one. Inputs are processed in fixed-size batches
// with bounded parallelism inside each batch and a short delay between
// batches. Any failure aborts the whole call; partial results are
// never returned.
func (g *Gateway) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += g.opts.BatchSize {
		end := start + g.opts.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		if err := g.embedBatch(ctx, texts, out, start, end); err != nil {
			return nil, err
		}
		if end < len(texts) && g.opts.InterBatchDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.opts.InterBatchDelay):
			}
		}
	}
	return out, nil
}

func (g *Gateway) embedBatch(ctx context.Context, texts []string, out [][]float32, start, end int) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.Parallelism)
	for i := start; i < end; i++ {
		eg.Go(func() error {
			vectors, _, err := g.provider.Embed(ctx, providers.EmbedRequest{
				Operation: "embed_documents",
				Inputs:    []string{texts[i]},
				TaskType:  providers.TaskDocument,
				Dimension: g.opts.Dimension,
			})
			if err != nil {
				return fmt.Errorf("embed document %d: %w", i, err)
			}
			if len(vectors) != 1 {
				return fmt.Errorf("embed document %d: expected 1 vector, got %d", i, len(vectors))
			}
			if len(vectors[0]) != g.opts.Dimension {
				return fmt.Errorf("embed document %d: dimension %d, want %d", i, len(vectors[0]), g.opts.Dimension)
			}
			out[i] = vectors[0]
			return nil
		})
	}
	return eg.Wait()
}
