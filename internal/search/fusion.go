// Package search retrieves chunks with hybrid semantic plus keyword
// ranking fused by reciprocal rank fusion.
package search

import (
	"sort"

	"paperchat/internal/models"
)

// FuseRankings merges two ranked lists with weighted reciprocal rank
// fusion. A chunk at rank r (0-based) in a list contributes
// weight * 1/(k+r+1); chunks present in both lists sum both
// contributions, so agreement between signals always outranks either
// signal alone at the same ranks. Ties break by chunk ID for a
// deterministic order.
func FuseRankings(semantic, keyword []models.RankedChunk, semanticWeight, k float64) []models.RankedChunk {
	if k <= 0 {
		k = 60
	}
	fused := make(map[string]*models.RankedChunk, len(semantic)+len(keyword))
	add := func(list []models.RankedChunk, weight float64, semanticList bool) {
		for rank, c := range list {
			entry, ok := fused[c.ChunkID]
			if !ok {
				cc := c
				cc.SemanticScore = 0
				cc.KeywordScore = 0
				cc.CombinedScore = 0
				fused[c.ChunkID] = &cc
				entry = fused[c.ChunkID]
			}
			if semanticList {
				entry.SemanticScore = c.SemanticScore
			} else {
				entry.KeywordScore = c.KeywordScore
			}
			entry.CombinedScore += weight / (k + float64(rank) + 1)
		}
	}
	add(semantic, semanticWeight, true)
	add(keyword, 1-semanticWeight, false)

	out := make([]models.RankedChunk, 0, len(fused))
	for _, c := range fused {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CombinedScore != out[j].CombinedScore {
			return out[i].CombinedScore > out[j].CombinedScore
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out
}
