package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"paperchat/internal/models"
)

func retrievedChunks(n int) []models.RankedChunk {
	out := make([]models.RankedChunk, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.RankedChunk{
			ChunkID: "chunk-" + string(rune('a'+i)),
			PaperID: "paper-" + string(rune('a'+i)),
			Content: "content " + string(rune('a'+i)),
		})
	}
	return out
}

func TestResolveCitationsRoundTrip(t *testing.T) {
	retrieved := retrievedChunks(5)
	answer := "First claim. [CITE:2] Second claim. [CITE:4] Restated claim. [CITE:2]"

	g := ResolveCitations(answer, retrieved)

	// Two distinct chunks cited across three markers, deduplicated in
	// first-citation order.
	require.Len(t, g.Chunks, 2)
	require.Equal(t, "chunk-b", g.Chunks[0].ChunkID)
	require.Equal(t, "chunk-d", g.Chunks[1].ChunkID)

	require.Len(t, g.Supports, 3)
	require.Equal(t, []int{0}, g.Supports[0].ChunkIndices)
	require.Equal(t, []int{1}, g.Supports[1].ChunkIndices)
	require.Equal(t, []int{0}, g.Supports[2].ChunkIndices)

	// Spans cover the markers in the raw answer text.
	for _, s := range g.Supports {
		require.Equal(t, "[CITE:", answer[s.StartIndex:s.StartIndex+6])
		require.Equal(t, byte(']'), answer[s.EndIndex-1])
	}
}

func TestResolveCitationsOutOfRangeDropped(t *testing.T) {
	retrieved := retrievedChunks(2)
	answer := "Valid. [CITE:1] Invalid. [CITE:99] Zero. [CITE:0]"

	g := ResolveCitations(answer, retrieved)
	require.Len(t, g.Chunks, 1)
	require.Len(t, g.Supports, 1)
	require.Equal(t, "chunk-a", g.Chunks[0].ChunkID)
}

func TestResolveCitationsNoMarkers(t *testing.T) {
	g := ResolveCitations("An answer without any citations.", retrievedChunks(3))
	require.Empty(t, g.Chunks)
	require.Empty(t, g.Supports)
}

func TestStripMarkers(t *testing.T) {
	answer := "Claim one. [CITE:1] Claim two. [CITE:12]"
	require.Equal(t, "Claim one.  Claim two. ", StripMarkers(answer))
}

func TestBuildSystemInstructionNumbersSources(t *testing.T) {
	year := 2017
	papers := map[string]models.Paper{
		"paper-a": {PaperID: "paper-a", Title: "Attention Is All You Need", Authors: []string{"Vaswani", "Shazeer", "Parmar", "Uszkoreit"}, Year: &year},
		"paper-b": {PaperID: "paper-b", Title: "BERT"},
	}
	chunks := []models.RankedChunk{
		{ChunkID: "c1", PaperID: "paper-a", Content: "self-attention text"},
		{ChunkID: "c2", PaperID: "paper-b", Content: "masked language modeling"},
	}

	prompt := BuildSystemInstruction(chunks, papers)
	require.Contains(t, prompt, "[CITE:N]")
	require.Contains(t, prompt, `[1] Source: "Attention Is All You Need" (Vaswani et al., 2017)`)
	require.Contains(t, prompt, `[2] Source: "BERT"`)
	require.Contains(t, prompt, "self-attention text")
	require.Less(t, strings.Index(prompt, "[1] Source"), strings.Index(prompt, "[2] Source"))
}
