// Package workflows drives paper ingestion as durable state machines:
// download, extract, chunk, embed, index, with per-stage retries and
// permanent-failure classification.
package workflows

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"paperchat/internal/activities"
	"paperchat/internal/models"
)

const (
	QueryGetPaperStatus = "GetPaperStatus"
	QueryGetProgress    = "GetProgress"
)

// PaperIngestWorkflow runs one paper through the full ingestion
// pipeline. Transient faults retry per stage; permanent rejections
// (missing PDF, no extractable text, count mismatches) mark the paper
// failed and end the workflow successfully with a "failed" result.
func PaperIngestWorkflow(ctx workflow.Context, input PaperIngestInput) (string, error) {
	status := PaperIngestStatus{
		PaperID:     input.PaperID,
		CurrentStep: "init",
		Status:      string(models.StatusProcessing),
		Steps:       map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetPaperStatus, func() (PaperIngestStatus, error) {
		return status, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	markFailed := func(reason string) {
		status.Status = string(models.StatusFailed)
		status.FailReason = reason
		status.Steps[status.CurrentStep] = "failed"
		_ = workflow.ExecuteActivity(ctx, "UpdatePaperStatusActivity", activities.UpdatePaperStatusInput{
			PaperID:    input.PaperID,
			Status:     string(models.StatusFailed),
			FailReason: reason,
		}).Get(ctx, nil)
	}

	if err := workflow.ExecuteActivity(ctx, "UpdatePaperStatusActivity", activities.UpdatePaperStatusInput{
		PaperID: input.PaperID,
		Status:  string(models.StatusProcessing),
	}).Get(ctx, nil); err != nil {
		return "", err
	}

	status.CurrentStep = "download"
	status.Steps[status.CurrentStep] = "processing"
	var downloadOut activities.DownloadPaperOutput
	if err := workflow.ExecuteActivity(ctx, "DownloadPaperActivity", activities.DownloadPaperInput{
		PaperID: input.PaperID,
		Force:   input.Force,
	}).Get(ctx, &downloadOut); err != nil {
		if reason, permanent := permanentFailReason(err); permanent {
			markFailed(reason)
			return status.Status, nil
		}
		markFailed("download failed: " + err.Error())
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "extract"
	status.Steps[status.CurrentStep] = "processing"
	var extractOut activities.ExtractTextOutput
	if err := workflow.ExecuteActivity(ctx, "ExtractTextActivity", activities.ExtractTextInput{
		PaperID: input.PaperID,
	}).Get(ctx, &extractOut); err != nil {
		if reason, permanent := permanentFailReason(err); permanent {
			markFailed(reason)
			return status.Status, nil
		}
		markFailed("extract failed: " + err.Error())
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "chunk"
	status.Steps[status.CurrentStep] = "processing"
	var chunkOut activities.ChunkPaperOutput
	if err := workflow.ExecuteActivity(ctx, "ChunkPaperActivity", activities.ChunkPaperInput{
		PaperID:      input.PaperID,
		CollectionID: input.CollectionID,
	}).Get(ctx, &chunkOut); err != nil {
		markFailed("chunk failed: " + err.Error())
		return "", err
	}
	status.ChunkCount = len(chunkOut.Chunks)
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "embed"
	status.Steps[status.CurrentStep] = "processing"
	contents := make([]string, 0, len(chunkOut.Chunks))
	for _, c := range chunkOut.Chunks {
		contents = append(contents, c.Content)
	}
	var embedOut activities.EmbedChunksOutput
	if err := workflow.ExecuteActivity(ctx, "EmbedChunksActivity", activities.EmbedChunksInput{
		PaperID:      input.PaperID,
		CollectionID: input.CollectionID,
		Contents:     contents,
	}).Get(ctx, &embedOut); err != nil {
		_ = workflow.ExecuteActivity(ctx, "RecordModelCallActivity", activities.RecordModelCallInput{
			Operation:    "embed_chunks",
			CollectionID: input.CollectionID,
			PaperID:      input.PaperID,
			Status:       "failed",
			ErrorType:    errorType(err),
		}).Get(ctx, nil)
		markFailed("embed failed: " + err.Error())
		return "", err
	}
	_ = workflow.ExecuteActivity(ctx, "RecordModelCallActivity", activities.RecordModelCallInput{
		Operation:    "embed_chunks",
		CollectionID: input.CollectionID,
		PaperID:      input.PaperID,
		ProviderName: embedOut.ProviderName,
		Model:        embedOut.Model,
		Status:       "ok",
	}).Get(ctx, nil)
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "index"
	status.Steps[status.CurrentStep] = "processing"
	var indexOut activities.IndexChunksOutput
	if err := workflow.ExecuteActivity(ctx, "IndexChunksActivity", activities.IndexChunksInput{
		PaperID:      input.PaperID,
		CollectionID: input.CollectionID,
		Chunks:       chunkOut.Chunks,
		Vectors:      embedOut.Vectors,
	}).Get(ctx, &indexOut); err != nil {
		if reason, permanent := permanentFailReason(err); permanent {
			markFailed(reason)
			return status.Status, nil
		}
		markFailed("index failed: " + err.Error())
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "complete"
	if err := workflow.ExecuteActivity(ctx, "UpdatePaperStatusActivity", activities.UpdatePaperStatusInput{
		PaperID: input.PaperID,
		Status:  string(models.StatusCompleted),
	}).Get(ctx, nil); err != nil {
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"
	status.Status = string(models.StatusCompleted)
	return status.Status, nil
}

// CollectionIngestWorkflow fans paper ingestion out over child
// workflows with bounded concurrency, tracking per-paper outcomes in a
// queryable progress struct.
func CollectionIngestWorkflow(ctx workflow.Context, input CollectionIngestInput) (string, error) {
	progress := CollectionIngestProgress{
		CollectionID:  input.CollectionID,
		PerPaper:      map[string]string{},
		ChildWorkflow: map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetProgress, func() (CollectionIngestProgress, error) {
		return progress, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	paperIDs := input.PaperIDs
	if len(paperIDs) == 0 {
		var listOut activities.ListCollectionPapersOutput
		if err := workflow.ExecuteActivity(ctx, "ListCollectionPapersActivity", activities.ListCollectionPapersInput{
			CollectionID: input.CollectionID,
		}).Get(ctx, &listOut); err != nil {
			return "", err
		}
		for _, p := range listOut.Papers {
			paperIDs = append(paperIDs, p.PaperID)
		}
	}
	progress.Total = len(paperIDs)

	maxChildren := input.MaxConcurrentChildren
	if maxChildren <= 0 {
		maxChildren = 3
	}

	for i := 0; i < len(paperIDs); i += maxChildren {
		end := i + maxChildren
		if end > len(paperIDs) {
			end = len(paperIDs)
		}
		futures := make([]workflow.ChildWorkflowFuture, 0, end-i)
		batch := paperIDs[i:end]
		for _, paperID := range batch {
			progress.PerPaper[paperID] = string(models.StatusProcessing)
			workflowID := "paper-" + sanitizeID(input.CollectionID) + "-" + sanitizeID(paperID)
			childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{WorkflowID: workflowID})
			futures = append(futures, workflow.ExecuteChildWorkflow(childCtx, PaperIngestWorkflow, PaperIngestInput{
				CollectionID: input.CollectionID,
				PaperID:      paperID,
				Force:        input.Force,
			}))
			progress.ChildWorkflow[paperID] = workflowID
		}
		for idx, f := range futures {
			paperID := batch[idx]
			var childStatus string
			if err := f.Get(ctx, &childStatus); err != nil {
				progress.Done++
				progress.Failed++
				progress.PerPaper[paperID] = string(models.StatusFailed)
				continue
			}
			if childStatus == string(models.StatusFailed) {
				progress.Failed++
			}
			progress.Done++
			progress.PerPaper[paperID] = childStatus
		}
	}

	_ = workflow.ExecuteActivity(ctx, "WriteIngestSummaryActivity", activities.WriteIngestSummaryInput{
		CollectionID: input.CollectionID,
		Summary: map[string]any{
			"collection_id":    input.CollectionID,
			"total":            progress.Total,
			"done":             progress.Done,
			"failed":           progress.Failed,
			"per_paper_status": progress.PerPaper,
			"generated_at":     workflow.Now(ctx),
		},
	}).Get(ctx, nil)

	return "completed", nil
}

// BackfillWorkflow re-runs ingestion over an existing collection,
// either retrying only failed papers or re-ingesting everything.
func BackfillWorkflow(ctx workflow.Context, input BackfillInput) (string, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var paperIDs []string
	force := false
	switch strings.ToUpper(strings.TrimSpace(input.Mode)) {
	case BackfillRetryFailed:
		var failed activities.ListFailedPapersOutput
		if err := workflow.ExecuteActivity(ctx, "ListFailedPapersActivity", activities.ListFailedPapersInput{
			CollectionID: input.CollectionID,
		}).Get(ctx, &failed); err != nil {
			return "", err
		}
		for _, p := range failed.Papers {
			paperIDs = append(paperIDs, p.PaperID)
		}
	case BackfillReingestAll:
		force = true
	default:
		return "", fmt.Errorf("unsupported backfill mode: %s", input.Mode)
	}

	if strings.EqualFold(input.Mode, BackfillRetryFailed) && len(paperIDs) == 0 {
		return "nothing to retry", nil
	}

	var out string
	err := workflow.ExecuteChildWorkflow(ctx, CollectionIngestWorkflow, CollectionIngestInput{
		CollectionID:          input.CollectionID,
		PaperIDs:              paperIDs,
		MaxConcurrentChildren: input.MaxConcurrentChildren,
		Force:                 force,
	}).Get(ctx, &out)
	if err != nil {
		return "", err
	}
	return out, nil
}

// permanentFailReason inspects an activity error for a non-retryable
// application error and maps it to a user-facing fail reason.
func permanentFailReason(err error) (string, bool) {
	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) || !appErr.NonRetryable() {
		return "", false
	}
	switch appErr.Type() {
	case activities.ErrTypeDownloadRejected:
		return "PDF download rejected by the source: " + appErr.Message(), true
	case activities.ErrTypeNoExtractableText:
		return "no extractable text found (scanned PDF without OCR?)", true
	case activities.ErrTypeTextTooShort:
		return "extracted text too short to index", true
	case activities.ErrTypeEmbeddingMismatch:
		return "embedding count mismatch during indexing", true
	default:
		return appErr.Message(), true
	}
}

func errorType(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Type()
	}
	return "unknown"
}

func sanitizeID(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, ".", "-")
	s = strings.ReplaceAll(s, "/", "-")
	return s
}
