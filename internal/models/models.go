package models

import "time"

type Collection struct {
	CollectionID string    `json:"collection_id"`
	OwnerID      string    `json:"owner_id"`
	Name         string    `json:"name"`
	SearchQuery  string    `json:"search_query,omitempty"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Paper struct {
	PaperID       string      `json:"paper_id"`
	Title         string      `json:"title,omitempty"`
	Abstract      string      `json:"abstract,omitempty"`
	Authors       []string    `json:"authors,omitempty"`
	Year          *int        `json:"year,omitempty"`
	Venue         string      `json:"venue,omitempty"`
	CitationCount *int        `json:"citation_count,omitempty"`
	PDFURL        string      `json:"pdf_url,omitempty"`
	StorageKey    string      `json:"storage_key,omitempty"`
	Status        PaperStatus `json:"status"`
	FailReason    string      `json:"fail_reason,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// CollectionPaper links a paper into a collection, recording how it was
// discovered (reference/citation expansion from a source paper) and its
// similarity to the collection's original query.
type CollectionPaper struct {
	CollectionID    string    `json:"collection_id"`
	PaperID         string    `json:"paper_id"`
	SourcePaperID   string    `json:"source_paper_id,omitempty"`
	RelationType    string    `json:"relation_type,omitempty"`
	SimilarityScore *float64  `json:"similarity_score,omitempty"`
	AddedAt         time.Time `json:"added_at"`
}

const (
	RelationReference = "reference"
	RelationCitation  = "citation"
)

type Chunk struct {
	ChunkID      string    `json:"chunk_id"`
	PaperID      string    `json:"paper_id"`
	CollectionID string    `json:"collection_id"`
	ChunkIndex   int       `json:"chunk_index"`
	Content      string    `json:"content"`
	TokenCount   int       `json:"token_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// RankedChunk is a chunk as returned by search, carrying the per-signal
// scores alongside the fused score for observability.
type RankedChunk struct {
	ChunkID       string  `json:"chunk_id"`
	PaperID       string  `json:"paper_id"`
	ChunkIndex    int     `json:"chunk_index"`
	Content       string  `json:"content"`
	SemanticScore float64 `json:"semantic_score"`
	KeywordScore  float64 `json:"keyword_score"`
	CombinedScore float64 `json:"combined_score"`
}

type Conversation struct {
	ConversationID string    `json:"conversation_id"`
	CollectionID   string    `json:"collection_id"`
	OwnerID        string    `json:"owner_id"`
	Title          string    `json:"title,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActiveAt   time.Time `json:"last_active_at"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	MessageID      string     `json:"message_id"`
	ConversationID string     `json:"conversation_id"`
	Role           string     `json:"role"`
	Content        string     `json:"content"`
	Grounding      *Grounding `json:"grounding,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Grounding is the structured citation payload attached to assistant
// messages that cited sources. Chunk indices in supports are positions
// in the deduplicated Chunks list, not in the retrieval list.
type Grounding struct {
	Chunks   []GroundingChunk   `json:"chunks"`
	Supports []GroundingSupport `json:"supports"`
}

type GroundingChunk struct {
	PaperID string `json:"paper_id"`
	ChunkID string `json:"chunk_id"`
	Content string `json:"content"`
}

// GroundingSupport ties a character span of the answer text to the
// grounding chunk it cites. Spans are measured against the raw,
// marker-bearing answer text.
type GroundingSupport struct {
	StartIndex   int   `json:"start_index"`
	EndIndex     int   `json:"end_index"`
	ChunkIndices []int `json:"chunk_indices"`
}
