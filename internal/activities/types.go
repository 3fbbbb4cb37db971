package activities

// ChunkItem is the wire form of a chunk passed between ingestion
// stages.
type ChunkItem struct {
	ChunkID    string `json:"chunk_id"`
	ChunkIndex int    `json:"chunk_index"`
	Content    string `json:"content"`
	TokenCount int    `json:"token_count"`
}

type DownloadPaperInput struct {
	PaperID string `json:"paper_id"`
	PDFURL  string `json:"pdf_url"`
	// Force re-downloads even when the blob already exists.
	Force bool `json:"force,omitempty"`
}

type DownloadPaperOutput struct {
	StorageKey string `json:"storage_key"`
	Skipped    bool   `json:"skipped"`
	SizeBytes  int64  `json:"size_bytes"`
}

type ExtractTextInput struct {
	PaperID string `json:"paper_id"`
}

type ExtractTextOutput struct {
	TextKey   string `json:"text_key"`
	CharCount int    `json:"char_count"`
}

type ChunkPaperInput struct {
	PaperID      string `json:"paper_id"`
	CollectionID string `json:"collection_id"`
}

type ChunkPaperOutput struct {
	Chunks []ChunkItem `json:"chunks"`
}

type EmbedChunksInput struct {
	PaperID      string   `json:"paper_id"`
	CollectionID string   `json:"collection_id"`
	Contents     []string `json:"contents"`
}

type EmbedChunksOutput struct {
	Vectors      [][]float32 `json:"vectors"`
	ProviderName string      `json:"provider_name"`
	Model        string      `json:"model"`
}

type IndexChunksInput struct {
	PaperID      string      `json:"paper_id"`
	CollectionID string      `json:"collection_id"`
	Chunks       []ChunkItem `json:"chunks"`
	Vectors      [][]float32 `json:"vectors"`
}

type IndexChunksOutput struct {
	Indexed int `json:"indexed"`
}

type UpdatePaperStatusInput struct {
	PaperID    string `json:"paper_id"`
	Status     string `json:"status"`
	FailReason string `json:"fail_reason,omitempty"`
}

type ListFailedPapersInput struct {
	CollectionID string `json:"collection_id"`
}

type FailedPaper struct {
	PaperID    string `json:"paper_id"`
	PDFURL     string `json:"pdf_url"`
	FailReason string `json:"fail_reason"`
}

type ListFailedPapersOutput struct {
	Papers []FailedPaper `json:"papers"`
}

type ListCollectionPapersInput struct {
	CollectionID string `json:"collection_id"`
}

type CollectionPaper struct {
	PaperID string `json:"paper_id"`
	Title   string `json:"title"`
	PDFURL  string `json:"pdf_url"`
	Status  string `json:"status"`
}

type ListCollectionPapersOutput struct {
	Papers []CollectionPaper `json:"papers"`
}

type RecordModelCallInput struct {
	Operation    string `json:"operation"`
	CollectionID string `json:"collection_id,omitempty"`
	PaperID      string `json:"paper_id,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`
	Model        string `json:"model,omitempty"`
	RequestID    string `json:"request_id,omitempty"`
	Status       string `json:"status"`
	ErrorType    string `json:"error_type,omitempty"`
}

type WriteIngestSummaryInput struct {
	CollectionID string         `json:"collection_id"`
	Summary      map[string]any `json:"summary"`
}
