package workflows

type PaperIngestInput struct {
	CollectionID string `json:"collection_id"`
	PaperID      string `json:"paper_id"`
	// Force re-downloads the PDF even if a blob already exists.
	Force bool `json:"force,omitempty"`
}

// PaperIngestStatus is the live view exposed through the paper status
// query handler.
type PaperIngestStatus struct {
	PaperID     string            `json:"paper_id"`
	CurrentStep string            `json:"current_step"`
	Status      string            `json:"status"`
	FailReason  string            `json:"fail_reason,omitempty"`
	Steps       map[string]string `json:"steps"`
	ChunkCount  int               `json:"chunk_count"`
}

type CollectionIngestInput struct {
	CollectionID string `json:"collection_id"`
	// PaperIDs limits ingestion to the listed papers; empty means every
	// paper linked to the collection.
	PaperIDs              []string `json:"paper_ids,omitempty"`
	MaxConcurrentChildren int      `json:"max_concurrent_children,omitempty"`
	Force                 bool     `json:"force,omitempty"`
}

type CollectionIngestProgress struct {
	CollectionID string `json:"collection_id"`
	Total        int    `json:"total"`
	// Done counts children that finished, whatever the outcome; Failed
	// counts the subset that did not complete their paper.
	Done          int               `json:"done"`
	Failed        int               `json:"failed"`
	PerPaper      map[string]string `json:"per_paper"`
	ChildWorkflow map[string]string `json:"child_workflow"`
}

type BackfillInput struct {
	CollectionID          string `json:"collection_id"`
	Mode                  string `json:"mode"`
	MaxConcurrentChildren int    `json:"max_concurrent_children,omitempty"`
}

const (
	BackfillRetryFailed = "RETRY_FAILED_PAPERS"
	BackfillReingestAll = "REINGEST_ALL_PAPERS"
)
