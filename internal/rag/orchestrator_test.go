package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"paperchat/internal/models"
	"paperchat/internal/providers"
)

type fakeRetriever struct {
	chunks []models.RankedChunk
	calls  int
}

func (f *fakeRetriever) Hybrid(context.Context, string, string) ([]models.RankedChunk, error) {
	f.calls++
	return f.chunks, nil
}

type fakePapers struct{}

func (fakePapers) ListPapersByIDs(_ context.Context, ids []string) ([]models.Paper, error) {
	out := make([]models.Paper, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Paper{PaperID: id, Title: "Paper " + id})
	}
	return out, nil
}

type fakeHistory struct {
	messages []models.Message
	limit    int
}

func (f *fakeHistory) ListRecentMessages(_ context.Context, _ string, limit int) ([]models.Message, error) {
	f.limit = limit
	return f.messages, nil
}

type fakeLLM struct {
	reply   string
	calls   int
	lastReq providers.GenerateRequest
}

func (f *fakeLLM) Generate(_ context.Context, req providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	f.calls++
	f.lastReq = req
	return providers.GenerateResponse{Text: f.reply}, providers.ProviderInfo{Name: "fake", Model: "fake-1"}, nil
}

func TestAskEmptyRetrievalSkipsModel(t *testing.T) {
	retriever := &fakeRetriever{}
	llm := &fakeLLM{}
	o := NewOrchestrator(retriever, fakePapers{}, nil, llm, Options{}, nil)

	answer, err := o.Ask(context.Background(), "col-1", "", "what is attention?")
	require.NoError(t, err)
	require.Equal(t, NoSourcesAnswer, answer.Text)
	require.Nil(t, answer.Grounding)
	require.Equal(t, 1, retriever.calls)
	require.Zero(t, llm.calls, "model must not be called without sources")
}

func TestAskResolvesCitations(t *testing.T) {
	retriever := &fakeRetriever{chunks: []models.RankedChunk{
		{ChunkID: "c1", PaperID: "p1", Content: "alpha"},
		{ChunkID: "c2", PaperID: "p2", Content: "beta"},
	}}
	llm := &fakeLLM{reply: "Grounded claim. [CITE:2]"}
	o := NewOrchestrator(retriever, fakePapers{}, nil, llm, Options{}, nil)

	answer, err := o.Ask(context.Background(), "col-1", "", "question")
	require.NoError(t, err)
	require.Equal(t, 1, llm.calls)
	require.NotNil(t, answer.Grounding)
	require.Len(t, answer.Grounding.Chunks, 1)
	require.Equal(t, "c2", answer.Grounding.Chunks[0].ChunkID)
	require.Equal(t, "fake", answer.Provider)

	require.Contains(t, llm.lastReq.SystemInstruction, `[1] Source: "Paper p1"`)
	require.Contains(t, llm.lastReq.SystemInstruction, "alpha")
	require.Equal(t, "question", llm.lastReq.Messages[len(llm.lastReq.Messages)-1].Content)
}

func TestAskIncludesHistoryWindow(t *testing.T) {
	retriever := &fakeRetriever{chunks: []models.RankedChunk{{ChunkID: "c1", PaperID: "p1", Content: "alpha"}}}
	history := &fakeHistory{messages: []models.Message{
		{Role: models.RoleUser, Content: "earlier question"},
		{Role: models.RoleAssistant, Content: "earlier answer"},
	}}
	llm := &fakeLLM{reply: "ok"}
	o := NewOrchestrator(retriever, fakePapers{}, history, llm, Options{HistoryWindow: 7}, nil)

	_, err := o.Ask(context.Background(), "col-1", "conv-1", "follow-up")
	require.NoError(t, err)
	require.Equal(t, 7, history.limit)
	require.Len(t, llm.lastReq.Messages, 3)
	require.Equal(t, "earlier question", llm.lastReq.Messages[0].Content)
	require.Equal(t, models.RoleAssistant, llm.lastReq.Messages[1].Role)
	require.Equal(t, "follow-up", llm.lastReq.Messages[2].Content)
}

func TestAskUncitedAnswerHasNoGrounding(t *testing.T) {
	retriever := &fakeRetriever{chunks: []models.RankedChunk{{ChunkID: "c1", PaperID: "p1", Content: "alpha"}}}
	llm := &fakeLLM{reply: "An answer with no markers."}
	o := NewOrchestrator(retriever, fakePapers{}, nil, llm, Options{}, nil)

	answer, err := o.Ask(context.Background(), "col-1", "", "question")
	require.NoError(t, err)
	require.Nil(t, answer.Grounding)
}
