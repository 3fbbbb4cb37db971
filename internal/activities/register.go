package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.DownloadPaperActivity)
	w.RegisterActivity(a.ExtractTextActivity)
	w.RegisterActivity(a.ChunkPaperActivity)
	w.RegisterActivity(a.EmbedChunksActivity)
	w.RegisterActivity(a.IndexChunksActivity)
	w.RegisterActivity(a.UpdatePaperStatusActivity)
	w.RegisterActivity(a.ListFailedPapersActivity)
	w.RegisterActivity(a.ListCollectionPapersActivity)
	w.RegisterActivity(a.RecordModelCallActivity)
	w.RegisterActivity(a.WriteIngestSummaryActivity)
}
