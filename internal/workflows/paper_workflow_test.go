package workflows

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"paperchat/internal/activities"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func newPaperIngestEnv() *testsuite.TestWorkflowEnvironment {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(PaperIngestWorkflow)
	registerActivityName(env, "UpdatePaperStatusActivity", func(context.Context, activities.UpdatePaperStatusInput) error { return nil })
	registerActivityName(env, "DownloadPaperActivity", func(context.Context, activities.DownloadPaperInput) (activities.DownloadPaperOutput, error) {
		return activities.DownloadPaperOutput{}, nil
	})
	registerActivityName(env, "ExtractTextActivity", func(context.Context, activities.ExtractTextInput) (activities.ExtractTextOutput, error) {
		return activities.ExtractTextOutput{}, nil
	})
	registerActivityName(env, "ChunkPaperActivity", func(context.Context, activities.ChunkPaperInput) (activities.ChunkPaperOutput, error) {
		return activities.ChunkPaperOutput{}, nil
	})
	registerActivityName(env, "EmbedChunksActivity", func(context.Context, activities.EmbedChunksInput) (activities.EmbedChunksOutput, error) {
		return activities.EmbedChunksOutput{}, nil
	})
	registerActivityName(env, "IndexChunksActivity", func(context.Context, activities.IndexChunksInput) (activities.IndexChunksOutput, error) {
		return activities.IndexChunksOutput{}, nil
	})
	registerActivityName(env, "RecordModelCallActivity", func(context.Context, activities.RecordModelCallInput) error { return nil })
	return env
}

func TestPaperIngestWorkflowSuccess(t *testing.T) {
	env := newPaperIngestEnv()
	env.OnActivity("UpdatePaperStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("DownloadPaperActivity", mock.Anything, activities.DownloadPaperInput{PaperID: "p1"}).
		Return(activities.DownloadPaperOutput{StorageKey: "p1/paper.pdf", SizeBytes: 1024}, nil)
	env.OnActivity("ExtractTextActivity", mock.Anything, activities.ExtractTextInput{PaperID: "p1"}).
		Return(activities.ExtractTextOutput{TextKey: "p1/extracted.txt", CharCount: 4000}, nil)
	env.OnActivity("ChunkPaperActivity", mock.Anything, mock.Anything).
		Return(activities.ChunkPaperOutput{Chunks: []activities.ChunkItem{
			{ChunkID: "c1", ChunkIndex: 0, Content: "first chunk", TokenCount: 3},
			{ChunkID: "c2", ChunkIndex: 1, Content: "second chunk", TokenCount: 3},
		}}, nil)
	env.OnActivity("EmbedChunksActivity", mock.Anything, mock.Anything).
		Return(activities.EmbedChunksOutput{Vectors: [][]float32{{0.1}, {0.2}}, ProviderName: "mock", Model: "mock"}, nil)
	env.OnActivity("IndexChunksActivity", mock.Anything, mock.Anything).
		Return(activities.IndexChunksOutput{Indexed: 2}, nil)
	env.OnActivity("RecordModelCallActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(PaperIngestWorkflow, PaperIngestInput{CollectionID: "col", PaperID: "p1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "completed", out)
}

func TestPaperIngestWorkflowDownloadNotFoundFailsGracefully(t *testing.T) {
	env := newPaperIngestEnv()
	var statusUpdates []activities.UpdatePaperStatusInput
	env.OnActivity("UpdatePaperStatusActivity", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			statusUpdates = append(statusUpdates, args.Get(1).(activities.UpdatePaperStatusInput))
		}).Return(nil)
	env.OnActivity("DownloadPaperActivity", mock.Anything, mock.Anything).
		Return(activities.DownloadPaperOutput{}, temporal.NewNonRetryableApplicationError(
			"download rejected with status 404", activities.ErrTypeDownloadRejected, nil))

	env.ExecuteWorkflow(PaperIngestWorkflow, PaperIngestInput{CollectionID: "col", PaperID: "p404"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "failed", out)

	last := statusUpdates[len(statusUpdates)-1]
	require.Equal(t, "failed", last.Status)
	require.Contains(t, last.FailReason, "rejected")
}

func TestPaperIngestWorkflowTransientDownloadFailureErrors(t *testing.T) {
	env := newPaperIngestEnv()
	env.OnActivity("UpdatePaperStatusActivity", mock.Anything, mock.Anything).Return(nil)
	// A 503-style fault is retryable; once attempts are exhausted the
	// workflow itself fails rather than marking the paper permanently
	// rejected.
	env.OnActivity("DownloadPaperActivity", mock.Anything, mock.Anything).
		Return(activities.DownloadPaperOutput{}, errors.New("download pdf: unexpected status 503"))

	env.ExecuteWorkflow(PaperIngestWorkflow, PaperIngestInput{CollectionID: "col", PaperID: "p503"})
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}

func TestPaperIngestWorkflowNoTextFailsGracefully(t *testing.T) {
	env := newPaperIngestEnv()
	env.OnActivity("UpdatePaperStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("DownloadPaperActivity", mock.Anything, mock.Anything).
		Return(activities.DownloadPaperOutput{StorageKey: "p1/paper.pdf"}, nil)
	env.OnActivity("ExtractTextActivity", mock.Anything, mock.Anything).
		Return(activities.ExtractTextOutput{}, temporal.NewNonRetryableApplicationError(
			"no extractable text found in PDF", activities.ErrTypeNoExtractableText, nil))

	env.ExecuteWorkflow(PaperIngestWorkflow, PaperIngestInput{CollectionID: "col", PaperID: "p1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "failed", out)
}

func TestPaperIngestWorkflowEmbeddingMismatchFailsGracefully(t *testing.T) {
	env := newPaperIngestEnv()
	env.OnActivity("UpdatePaperStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("DownloadPaperActivity", mock.Anything, mock.Anything).
		Return(activities.DownloadPaperOutput{StorageKey: "p1/paper.pdf"}, nil)
	env.OnActivity("ExtractTextActivity", mock.Anything, mock.Anything).
		Return(activities.ExtractTextOutput{TextKey: "p1/extracted.txt", CharCount: 500}, nil)
	env.OnActivity("ChunkPaperActivity", mock.Anything, mock.Anything).
		Return(activities.ChunkPaperOutput{Chunks: []activities.ChunkItem{{ChunkID: "c1", Content: "x"}}}, nil)
	env.OnActivity("EmbedChunksActivity", mock.Anything, mock.Anything).
		Return(activities.EmbedChunksOutput{Vectors: [][]float32{{0.1}, {0.2}}}, nil)
	env.OnActivity("RecordModelCallActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("IndexChunksActivity", mock.Anything, mock.Anything).
		Return(activities.IndexChunksOutput{}, temporal.NewNonRetryableApplicationError(
			"embedding count does not match input count", activities.ErrTypeEmbeddingMismatch, nil))

	env.ExecuteWorkflow(PaperIngestWorkflow, PaperIngestInput{CollectionID: "col", PaperID: "p1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "failed", out)
}

func TestCollectionIngestWorkflowCountsOutcomes(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(CollectionIngestWorkflow)
	env.RegisterWorkflow(PaperIngestWorkflow)
	registerActivityName(env, "ListCollectionPapersActivity", func(context.Context, activities.ListCollectionPapersInput) (activities.ListCollectionPapersOutput, error) {
		return activities.ListCollectionPapersOutput{}, nil
	})
	registerActivityName(env, "WriteIngestSummaryActivity", func(context.Context, activities.WriteIngestSummaryInput) error { return nil })
	registerActivityName(env, "UpdatePaperStatusActivity", func(context.Context, activities.UpdatePaperStatusInput) error { return nil })
	registerActivityName(env, "DownloadPaperActivity", func(context.Context, activities.DownloadPaperInput) (activities.DownloadPaperOutput, error) {
		return activities.DownloadPaperOutput{}, nil
	})
	registerActivityName(env, "ExtractTextActivity", func(context.Context, activities.ExtractTextInput) (activities.ExtractTextOutput, error) {
		return activities.ExtractTextOutput{}, nil
	})
	registerActivityName(env, "ChunkPaperActivity", func(context.Context, activities.ChunkPaperInput) (activities.ChunkPaperOutput, error) {
		return activities.ChunkPaperOutput{}, nil
	})
	registerActivityName(env, "EmbedChunksActivity", func(context.Context, activities.EmbedChunksInput) (activities.EmbedChunksOutput, error) {
		return activities.EmbedChunksOutput{}, nil
	})
	registerActivityName(env, "IndexChunksActivity", func(context.Context, activities.IndexChunksInput) (activities.IndexChunksOutput, error) {
		return activities.IndexChunksOutput{}, nil
	})
	registerActivityName(env, "RecordModelCallActivity", func(context.Context, activities.RecordModelCallInput) error { return nil })

	env.OnActivity("ListCollectionPapersActivity", mock.Anything, mock.Anything).
		Return(activities.ListCollectionPapersOutput{Papers: []activities.CollectionPaper{
			{PaperID: "ok-paper"},
			{PaperID: "missing-paper"},
			{PaperID: "flaky-paper"},
		}}, nil)
	env.OnActivity("UpdatePaperStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("DownloadPaperActivity", mock.Anything, activities.DownloadPaperInput{PaperID: "ok-paper"}).
		Return(activities.DownloadPaperOutput{StorageKey: "ok-paper/paper.pdf"}, nil)
	env.OnActivity("DownloadPaperActivity", mock.Anything, activities.DownloadPaperInput{PaperID: "missing-paper"}).
		Return(activities.DownloadPaperOutput{}, temporal.NewNonRetryableApplicationError(
			"download rejected with status 404", activities.ErrTypeDownloadRejected, nil))
	// Exhausts its retries, so the child future itself errors instead of
	// returning a "failed" result.
	env.OnActivity("DownloadPaperActivity", mock.Anything, activities.DownloadPaperInput{PaperID: "flaky-paper"}).
		Return(activities.DownloadPaperOutput{}, errors.New("download pdf: unexpected status 503"))
	env.OnActivity("ExtractTextActivity", mock.Anything, mock.Anything).
		Return(activities.ExtractTextOutput{TextKey: "ok-paper/extracted.txt", CharCount: 400}, nil)
	env.OnActivity("ChunkPaperActivity", mock.Anything, mock.Anything).
		Return(activities.ChunkPaperOutput{Chunks: []activities.ChunkItem{{ChunkID: "c1", Content: "x"}}}, nil)
	env.OnActivity("EmbedChunksActivity", mock.Anything, mock.Anything).
		Return(activities.EmbedChunksOutput{Vectors: [][]float32{{0.1}}}, nil)
	env.OnActivity("IndexChunksActivity", mock.Anything, mock.Anything).
		Return(activities.IndexChunksOutput{Indexed: 1}, nil)
	env.OnActivity("RecordModelCallActivity", mock.Anything, mock.Anything).Return(nil)

	var summary activities.WriteIngestSummaryInput
	env.OnActivity("WriteIngestSummaryActivity", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			summary = args.Get(1).(activities.WriteIngestSummaryInput)
		}).Return(nil)

	env.ExecuteWorkflow(CollectionIngestWorkflow, CollectionIngestInput{CollectionID: "col", MaxConcurrentChildren: 2})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "completed", out)
	require.EqualValues(t, 3, summary.Summary["total"])
	require.EqualValues(t, 2, summary.Summary["failed"])
	// Every child counts as done once it finishes, failed or not.
	require.EqualValues(t, 3, summary.Summary["done"])
}

func TestBackfillWorkflowRejectsUnknownMode(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(BackfillWorkflow)

	env.ExecuteWorkflow(BackfillWorkflow, BackfillInput{CollectionID: "col", Mode: "SOMETHING_ELSE"})
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}

func TestBackfillWorkflowRetryFailedNothingToDo(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(BackfillWorkflow)
	registerActivityName(env, "ListFailedPapersActivity", func(context.Context, activities.ListFailedPapersInput) (activities.ListFailedPapersOutput, error) {
		return activities.ListFailedPapersOutput{}, nil
	})
	env.OnActivity("ListFailedPapersActivity", mock.Anything, mock.Anything).
		Return(activities.ListFailedPapersOutput{}, nil)

	env.ExecuteWorkflow(BackfillWorkflow, BackfillInput{CollectionID: "col", Mode: BackfillRetryFailed})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "nothing to retry", out)
}
