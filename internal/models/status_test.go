package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPaperStatusTransitions(t *testing.T) {
	require.True(t, StatusPending.CanTransitionTo(StatusProcessing))
	require.True(t, StatusProcessing.CanTransitionTo(StatusCompleted))
	require.True(t, StatusProcessing.CanTransitionTo(StatusFailed))
	require.True(t, StatusFailed.CanTransitionTo(StatusProcessing))
	require.True(t, StatusCompleted.CanTransitionTo(StatusProcessing))

	require.False(t, StatusCompleted.CanTransitionTo(StatusFailed))
	require.False(t, StatusCompleted.CanTransitionTo(StatusPending))
	require.False(t, StatusPending.CanTransitionTo(StatusCompleted))
	require.False(t, StatusFailed.CanTransitionTo(StatusPending))
}

func TestAllowedPredecessors(t *testing.T) {
	preds := AllowedPredecessors(StatusCompleted)
	require.ElementsMatch(t, []string{"processing"}, preds)

	preds = AllowedPredecessors(StatusProcessing)
	require.ElementsMatch(t, []string{"pending", "processing", "completed", "failed"}, preds)
}

func TestParsePaperStatus(t *testing.T) {
	s, err := ParsePaperStatus("completed")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, s)

	_, err = ParsePaperStatus("done")
	require.Error(t, err)
}
