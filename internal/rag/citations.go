package rag

import (
	"regexp"
	"strconv"

	"paperchat/internal/models"
)

var citeMarker = regexp.MustCompile(`\[CITE:(\d+)\]`)

// ResolveCitations parses [CITE:N] markers out of the raw answer text
// and builds the grounding payload. N is a 1-based index into the
// retrieval list; markers pointing outside it are dropped. Cited
// chunks are deduplicated in order of first citation, and each support
// records the marker's character span in the raw text together with
// the indices of the chunks it cites in the deduplicated list.
func ResolveCitations(answer string, retrieved []models.RankedChunk) models.Grounding {
	grounding := models.Grounding{
		Chunks:   []models.GroundingChunk{},
		Supports: []models.GroundingSupport{},
	}
	chunkSlot := make(map[int]int)

	matches := citeMarker.FindAllStringSubmatchIndex(answer, -1)
	for _, m := range matches {
		n, err := strconv.Atoi(answer[m[2]:m[3]])
		if err != nil || n < 1 || n > len(retrieved) {
			continue
		}
		slot, ok := chunkSlot[n]
		if !ok {
			c := retrieved[n-1]
			slot = len(grounding.Chunks)
			chunkSlot[n] = slot
			grounding.Chunks = append(grounding.Chunks, models.GroundingChunk{
				PaperID: c.PaperID,
				ChunkID: c.ChunkID,
				Content: c.Content,
			})
		}
		grounding.Supports = append(grounding.Supports, models.GroundingSupport{
			StartIndex:   m[0],
			EndIndex:     m[1],
			ChunkIndices: []int{slot},
		})
	}
	return grounding
}

// StripMarkers removes the citation markers from the answer, yielding
// the display text. Spans in grounding supports refer to the raw text,
// not this stripped form.
func StripMarkers(answer string) string {
	return citeMarker.ReplaceAllString(answer, "")
}
