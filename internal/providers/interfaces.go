package providers

import "context"

// TaskType hints an asymmetric embedding model whether the input is a
// short query or a document passage. Embedding the two with different
// intents measurably improves retrieval quality.
type TaskType string

const (
	TaskQuery    TaskType = "query"
	TaskDocument TaskType = "document"
)

type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
	Key   string `json:"key"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type GenerateRequest struct {
	Operation         string        `json:"operation"`
	SystemInstruction string        `json:"system_instruction"`
	Messages          []ChatMessage `json:"messages"`
	Temperature       float64       `json:"temperature"`
	MaxOutputTokens   int           `json:"max_output_tokens"`
}

type GenerateResponse struct {
	Text string `json:"text"`
}

type EmbedRequest struct {
	Operation string   `json:"operation"`
	Inputs    []string `json:"inputs"`
	TaskType  TaskType `json:"task_type"`
	Dimension int      `json:"dimension"`
}

type LLMProvider interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error)
}

type EmbeddingProvider interface {
	Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error)
}
