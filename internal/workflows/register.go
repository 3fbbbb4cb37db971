package workflows

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker) {
	w.RegisterWorkflow(PaperIngestWorkflow)
	w.RegisterWorkflow(CollectionIngestWorkflow)
	w.RegisterWorkflow(BackfillWorkflow)
}
