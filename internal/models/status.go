package models

import "fmt"

// PaperStatus is the indexing lifecycle of a paper. It is a closed set:
// writes outside the transition table are rejected at the repo layer so
// a completed paper cannot silently revert to an arbitrary state.
type PaperStatus string

const (
	StatusPending    PaperStatus = "pending"
	StatusProcessing PaperStatus = "processing"
	StatusCompleted  PaperStatus = "completed"
	StatusFailed     PaperStatus = "failed"
)

var transitions = map[PaperStatus][]PaperStatus{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusProcessing, StatusCompleted, StatusFailed},
	// Completed and failed papers may only re-enter the pipeline.
	StatusCompleted: {StatusProcessing},
	StatusFailed:    {StatusProcessing},
}

func (s PaperStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

func (s PaperStatus) CanTransitionTo(next PaperStatus) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// AllowedPredecessors returns the states from which target is reachable,
// for use in guarded UPDATE ... WHERE status = ANY(...) writes.
func AllowedPredecessors(target PaperStatus) []string {
	out := make([]string, 0, 4)
	for from, tos := range transitions {
		for _, to := range tos {
			if to == target {
				out = append(out, string(from))
			}
		}
	}
	return out
}

func ParsePaperStatus(s string) (PaperStatus, error) {
	ps := PaperStatus(s)
	if !ps.Valid() {
		return "", fmt.Errorf("invalid paper status: %q", s)
	}
	return ps, nil
}
