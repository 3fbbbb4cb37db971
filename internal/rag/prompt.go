// Package rag assembles grounded answers: retrieve chunks, prompt the
// model with numbered sources, and resolve citation markers back to
// the chunks they cite.
package rag

import (
	"fmt"
	"strings"

	"paperchat/internal/models"
)

const systemPreamble = `You are a research assistant answering questions about a collection of academic papers.
Answer using ONLY the numbered sources below. Every claim drawn from a source must end with a citation marker of the form [CITE:N], where N is the source number.
Do not invent sources or numbers. If the sources do not contain the answer, say so plainly.`

// BuildSystemInstruction renders the system prompt with the numbered
// source block. Source numbers are 1-based positions in the retrieval
// order, which is the same numbering the model's [CITE:N] markers use.
func BuildSystemInstruction(chunks []models.RankedChunk, papers map[string]models.Paper) string {
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\n\nSources:\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "\n[%d] Source: %s\n%s\n", i+1, describePaper(papers[c.PaperID]), c.Content)
	}
	return b.String()
}

func describePaper(p models.Paper) string {
	title := p.Title
	if title == "" {
		title = "Untitled paper"
	}
	var meta []string
	if len(p.Authors) > 0 {
		meta = append(meta, formatAuthors(p.Authors))
	}
	if p.Year != nil {
		meta = append(meta, fmt.Sprintf("%d", *p.Year))
	}
	if len(meta) == 0 {
		return fmt.Sprintf("%q", title)
	}
	return fmt.Sprintf("%q (%s)", title, strings.Join(meta, ", "))
}

func formatAuthors(authors []string) string {
	if len(authors) <= 3 {
		return strings.Join(authors, ", ")
	}
	return authors[0] + " et al."
}
