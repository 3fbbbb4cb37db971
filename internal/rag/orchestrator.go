package rag

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"paperchat/internal/models"
	"paperchat/internal/providers"
)

// NoSourcesAnswer is returned without calling the model when retrieval
// yields nothing to ground an answer on.
const NoSourcesAnswer = "I could not find anything in this collection's papers relevant to your question. Try rephrasing it, or add more papers to the collection."

type Retriever interface {
	Hybrid(ctx context.Context, collectionID, query string) ([]models.RankedChunk, error)
}

type PaperLookup interface {
	ListPapersByIDs(ctx context.Context, paperIDs []string) ([]models.Paper, error)
}

type HistoryLookup interface {
	ListRecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
}

type Options struct {
	HistoryWindow   int
	Temperature     float64
	MaxOutputTokens int
}

func (o Options) normalized() Options {
	if o.HistoryWindow <= 0 {
		o.HistoryWindow = 10
	}
	if o.Temperature <= 0 {
		o.Temperature = 0.2
	}
	if o.MaxOutputTokens <= 0 {
		o.MaxOutputTokens = 2048
	}
	return o
}

// Answer is a grounded model response. Text still carries the raw
// [CITE:N] markers; grounding supports index into it.
type Answer struct {
	Text      string            `json:"text"`
	Grounding *models.Grounding `json:"grounding,omitempty"`
	Provider  string            `json:"provider,omitempty"`
	Model     string            `json:"model,omitempty"`
}

type Orchestrator struct {
	retriever Retriever
	papers    PaperLookup
	history   HistoryLookup
	llm       providers.LLMProvider
	opts      Options
	logger    *zap.Logger
}

func NewOrchestrator(retriever Retriever, papers PaperLookup, history HistoryLookup, llm providers.LLMProvider, opts Options, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		retriever: retriever,
		papers:    papers,
		history:   history,
		llm:       llm,
		opts:      opts.normalized(),
		logger:    logger,
	}
}

// Ask retrieves grounding chunks for the question, prompts the model
// with the numbered sources and recent conversation history, and
// resolves the citation markers in the reply.
func (o *Orchestrator) Ask(ctx context.Context, collectionID, conversationID, question string) (Answer, error) {
	retrieved, err := o.retriever.Hybrid(ctx, collectionID, question)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieve grounding chunks: %w", err)
	}
	if len(retrieved) == 0 {
		o.logger.Info("no grounding chunks retrieved",
			zap.String("collection_id", collectionID))
		return Answer{Text: NoSourcesAnswer}, nil
	}

	papersByID, err := o.lookupPapers(ctx, retrieved)
	if err != nil {
		return Answer{}, err
	}

	messages, err := o.historyMessages(ctx, conversationID)
	if err != nil {
		return Answer{}, err
	}
	messages = append(messages, providers.ChatMessage{Role: models.RoleUser, Content: question})

	resp, info, err := o.llm.Generate(ctx, providers.GenerateRequest{
		Operation:         "rag_answer",
		SystemInstruction: BuildSystemInstruction(retrieved, papersByID),
		Messages:          messages,
		Temperature:       o.opts.Temperature,
		MaxOutputTokens:   o.opts.MaxOutputTokens,
	})
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	grounding := ResolveCitations(resp.Text, retrieved)
	answer := Answer{Text: resp.Text, Provider: info.Name, Model: info.Model}
	if len(grounding.Supports) > 0 {
		answer.Grounding = &grounding
	}
	o.logger.Info("answered question",
		zap.String("collection_id", collectionID),
		zap.Int("retrieved", len(retrieved)),
		zap.Int("citations", len(grounding.Supports)))
	return answer, nil
}

func (o *Orchestrator) lookupPapers(ctx context.Context, retrieved []models.RankedChunk) (map[string]models.Paper, error) {
	seen := make(map[string]bool, len(retrieved))
	ids := make([]string, 0, len(retrieved))
	for _, c := range retrieved {
		if !seen[c.PaperID] {
			seen[c.PaperID] = true
			ids = append(ids, c.PaperID)
		}
	}
	papers, err := o.papers.ListPapersByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("lookup cited papers: %w", err)
	}
	byID := make(map[string]models.Paper, len(papers))
	for _, p := range papers {
		byID[p.PaperID] = p
	}
	return byID, nil
}

func (o *Orchestrator) historyMessages(ctx context.Context, conversationID string) ([]providers.ChatMessage, error) {
	if conversationID == "" || o.history == nil {
		return nil, nil
	}
	recent, err := o.history.ListRecentMessages(ctx, conversationID, o.opts.HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("load conversation history: %w", err)
	}
	out := make([]providers.ChatMessage, 0, len(recent))
	for _, m := range recent {
		out = append(out, providers.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out, nil
}
