// Package chunker splits extracted document text into overlapping
// segments sized for embedding and retrieval.
package chunker

import "strings"

type Config struct {
	// MaxChars is the window size of one chunk.
	MaxChars int
	// OverlapChars is how far consecutive windows overlap.
	OverlapChars int
	// MinChars rejects trailing fragments shorter than this.
	MinChars int
}

func DefaultConfig() Config {
	return Config{MaxChars: 1600, OverlapChars: 300, MinChars: 100}
}

func (c Config) normalized() Config {
	if c.MaxChars <= 0 {
		c.MaxChars = 1600
	}
	if c.OverlapChars < 0 || c.OverlapChars >= c.MaxChars {
		c.OverlapChars = c.MaxChars / 5
	}
	if c.MinChars < 0 {
		c.MinChars = 0
	}
	return c
}

type Chunk struct {
	Index      int
	Content    string
	TokenCount int
}

// Split walks the text in fixed windows, preferring to cut at a sentence
// boundary found in the tail of each window, and overlapping consecutive
// windows by OverlapChars. A non-empty text shorter than MinChars still
// yields one chunk so short documents are not dropped.
func Split(text string, cfg Config) []Chunk {
	cfg = cfg.normalized()
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return []Chunk{}
	}
	if len(runes) < cfg.MinChars {
		content := string(runes)
		return []Chunk{{Index: 0, Content: content, TokenCount: EstimateTokens(content)}}
	}

	out := make([]Chunk, 0, len(runes)/cfg.MaxChars+1)
	start := 0
	for start < len(runes) {
		end := start + cfg.MaxChars
		if end >= len(runes) {
			end = len(runes)
		} else if cut := sentenceBoundary(runes, start, end); cut > 0 {
			end = cut
		}

		content := strings.TrimSpace(string(runes[start:end]))
		if len([]rune(content)) >= cfg.MinChars {
			out = append(out, Chunk{Index: len(out), Content: content, TokenCount: EstimateTokens(content)})
		}

		if end == len(runes) {
			break
		}
		next := end - cfg.OverlapChars
		if next <= start {
			// Guard against non-advancing windows on pathological input.
			next = end
		}
		start = next
	}
	return out
}

// sentenceBoundary searches backward from end for sentence-ending
// punctuation followed by whitespace, limited to the last ~30% of the
// window so a boundary early in the chunk is never preferred. Returns
// the index just past the punctuation, or 0 when none qualifies.
func sentenceBoundary(runes []rune, start, end int) int {
	window := end - start
	floor := end - window*3/10
	for i := end - 1; i > floor; i-- {
		if isSentenceEnd(runes[i-1]) && isWhitespace(runes[i]) {
			return i
		}
	}
	return 0
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '?' || r == '!'
}

func isWhitespace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\r' || r == '\t'
}

// EstimateTokens approximates token count as characters over four,
// rounded up. It is a heuristic, not a tokenizer.
func EstimateTokens(s string) int {
	n := len([]rune(s))
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
