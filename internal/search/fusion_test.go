package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"paperchat/internal/models"
)

func ranked(ids ...string) []models.RankedChunk {
	out := make([]models.RankedChunk, 0, len(ids))
	for i, id := range ids {
		out = append(out, models.RankedChunk{
			ChunkID: id,
			PaperID: "paper-1",
			Content: "content of " + id,
			// Descending per-signal scores matching the rank order.
			SemanticScore: 1 - float64(i)*0.1,
			KeywordScore:  1 - float64(i)*0.1,
		})
	}
	return out
}

func TestFuseRankingsAgreementWins(t *testing.T) {
	// c3 is mid-ranked in both lists; c1 and c2 each lead only one.
	semantic := ranked("c1", "c3", "c4")
	keyword := ranked("c2", "c3", "c5")

	fused := FuseRankings(semantic, keyword, 0.5, 60)
	require.NotEmpty(t, fused)
	require.Equal(t, "c3", fused[0].ChunkID)
}

func TestFuseRankingsMonotonicInRank(t *testing.T) {
	semantic := ranked("a", "b", "c", "d")
	fused := FuseRankings(semantic, nil, 0.7, 60)
	require.Len(t, fused, 4)
	for i, c := range fused {
		require.Equal(t, semantic[i].ChunkID, c.ChunkID)
		if i > 0 {
			require.Greater(t, fused[i-1].CombinedScore, c.CombinedScore)
		}
	}
}

func TestFuseRankingsWeightShiftsOrder(t *testing.T) {
	semantic := ranked("sem", "both")
	keyword := ranked("kw", "both")

	semHeavy := FuseRankings(semantic, keyword, 0.95, 60)
	kwHeavy := FuseRankings(semantic, keyword, 0.05, 60)

	require.Equal(t, "both", semHeavy[0].ChunkID)
	require.Equal(t, "both", kwHeavy[0].ChunkID)
	// The single-signal chunks flip with the weight.
	require.Equal(t, "sem", semHeavy[1].ChunkID)
	require.Equal(t, "kw", kwHeavy[1].ChunkID)
}

func TestFuseRankingsCarriesPerSignalScores(t *testing.T) {
	semantic := ranked("x")
	keyword := ranked("x")
	fused := FuseRankings(semantic, keyword, 0.7, 60)
	require.Len(t, fused, 1)
	require.InDelta(t, 1.0, fused[0].SemanticScore, 1e-9)
	require.InDelta(t, 1.0, fused[0].KeywordScore, 1e-9)
	want := 0.7/61 + 0.3/61
	require.InDelta(t, want, fused[0].CombinedScore, 1e-9)
}

func TestFuseRankingsEmptyInputs(t *testing.T) {
	require.Empty(t, FuseRankings(nil, nil, 0.7, 60))
}

type fakeStore struct {
	semantic []models.RankedChunk
	keyword  []models.RankedChunk
}

func (f *fakeStore) SemanticRank(_ context.Context, _ string, _ []float32, limit int) ([]models.RankedChunk, error) {
	if len(f.semantic) > limit {
		return f.semantic[:limit], nil
	}
	return f.semantic, nil
}

func (f *fakeStore) KeywordRank(_ context.Context, _ string, _ string, limit int) ([]models.RankedChunk, error) {
	if len(f.keyword) > limit {
		return f.keyword[:limit], nil
	}
	return f.keyword, nil
}

type fixedEmbedder struct{}

func (fixedEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func TestHybridEmptyCollection(t *testing.T) {
	e := NewEngine(&fakeStore{}, fixedEmbedder{}, Options{}, nil)
	results, err := e.Hybrid(context.Background(), "col-1", "transformers")
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestHybridTruncatesToTopK(t *testing.T) {
	store := &fakeStore{}
	for i := 0; i < 30; i++ {
		store.semantic = append(store.semantic, models.RankedChunk{ChunkID: fmt.Sprintf("c%02d", i)})
	}
	e := NewEngine(store, fixedEmbedder{}, Options{TopK: 5}, nil)
	results, err := e.Hybrid(context.Background(), "col-1", "attention")
	require.NoError(t, err)
	require.Len(t, results, 5)
}

func TestSemanticOnlyCopiesScore(t *testing.T) {
	store := &fakeStore{semantic: ranked("a", "b")}
	e := NewEngine(store, fixedEmbedder{}, Options{TopK: 10}, nil)
	results, err := e.Semantic(context.Background(), "col-1", "diffusion models")
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, c := range results {
		require.Equal(t, c.SemanticScore, c.CombinedScore)
	}
}
