// Package activities implements the worker-side activities behind the
// ingestion workflows.
package activities

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"paperchat/internal/blobstore"
	"paperchat/internal/chunker"
	"paperchat/internal/config"
	"paperchat/internal/embedding"
	"paperchat/internal/indexer"
	"paperchat/internal/models"
	"paperchat/internal/storage"
	"paperchat/internal/util"
)

// Application error types attached to non-retryable failures, so
// workflows can map them to a paper fail reason.
const (
	ErrTypeDownloadRejected  = "DownloadRejected"
	ErrTypeNoExtractableText = "NoExtractableText"
	ErrTypeTextTooShort      = "TextTooShort"
	ErrTypeEmbeddingMismatch = "EmbeddingMismatch"
)

// paperStore is the slice of the paper repository the activities use.
type paperStore interface {
	GetPaperByID(ctx context.Context, paperID string) (models.Paper, error)
	UpsertPaper(ctx context.Context, p models.Paper) error
	SetStorageKey(ctx context.Context, paperID, storageKey string) error
	UpdatePaperStatus(ctx context.Context, paperID string, status models.PaperStatus, failReason string) (bool, error)
	ListPapersByCollection(ctx context.Context, collectionID string) ([]models.Paper, error)
	ListFailedPapers(ctx context.Context, collectionID string) ([]models.Paper, error)
}

type Activities struct {
	cfg           config.Config
	paperRepo     paperStore
	chunkRepo     *storage.ChunkRepo
	modelCallRepo *storage.ModelCallRepo
	blobs         blobstore.Store
	gateway       *embedding.Gateway
	indexer       *indexer.Indexer
	httpClient    *http.Client
	logger        *zap.Logger
}

func New(cfg config.Config, db *storage.DB, blobs blobstore.Store, gateway *embedding.Gateway, logger *zap.Logger) *Activities {
	if logger == nil {
		logger = zap.NewNop()
	}
	chunkRepo := storage.NewChunkRepo(db)
	return &Activities{
		cfg:           cfg,
		paperRepo:     storage.NewPaperRepo(db),
		chunkRepo:     chunkRepo,
		modelCallRepo: storage.NewModelCallRepo(db),
		blobs:         blobs,
		gateway:       gateway,
		indexer:       indexer.New(chunkRepo, logger),
		httpClient:    &http.Client{Timeout: 2 * time.Minute},
		logger:        logger,
	}
}

// DownloadPaperActivity fetches the paper's PDF into the blob store.
// An existing blob is reused unless Force is set. The URL comes from
// the input when the caller has it, otherwise from the paper row, so
// papers registered by pdf_url ingest without the workflow carrying
// the URL around. Client rejections (400, 403, 404) will never succeed
// on retry and fail the activity permanently.
func (a *Activities) DownloadPaperActivity(ctx context.Context, in DownloadPaperInput) (DownloadPaperOutput, error) {
	key := blobstore.PDFKey(in.PaperID)
	if !in.Force {
		exists, err := a.blobs.Exists(ctx, key)
		if err != nil {
			return DownloadPaperOutput{}, err
		}
		if exists {
			return DownloadPaperOutput{StorageKey: key, Skipped: true}, nil
		}
	}
	pdfURL := strings.TrimSpace(in.PDFURL)
	if pdfURL == "" {
		paper, err := a.paperRepo.GetPaperByID(ctx, in.PaperID)
		if err != nil {
			return DownloadPaperOutput{}, err
		}
		pdfURL = strings.TrimSpace(paper.PDFURL)
	}
	if pdfURL == "" {
		return DownloadPaperOutput{}, temporal.NewNonRetryableApplicationError(
			"paper has no PDF URL", ErrTypeDownloadRejected, nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return DownloadPaperOutput{}, fmt.Errorf("build download request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return DownloadPaperOutput{}, fmt.Errorf("download pdf: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound:
		return DownloadPaperOutput{}, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("download rejected with status %d", resp.StatusCode), ErrTypeDownloadRejected, nil)
	}
	if resp.StatusCode >= 400 {
		return DownloadPaperOutput{}, fmt.Errorf("download pdf: unexpected status %d", resp.StatusCode)
	}

	counter := &countingReader{r: resp.Body}
	if err := a.blobs.Put(ctx, key, counter); err != nil {
		return DownloadPaperOutput{}, fmt.Errorf("store pdf: %w", err)
	}
	if err := a.paperRepo.SetStorageKey(ctx, in.PaperID, key); err != nil {
		return DownloadPaperOutput{}, err
	}
	a.logger.Info("downloaded paper pdf",
		zap.String("paper_id", in.PaperID),
		zap.Int64("bytes", counter.n))
	return DownloadPaperOutput{StorageKey: key, SizeBytes: counter.n}, nil
}

// ExtractTextActivity pulls plain text out of the stored PDF, cleans
// it, and writes it back to the blob store for the chunking stage.
// PDFs with no usable text fail permanently.
func (a *Activities) ExtractTextActivity(ctx context.Context, in ExtractTextInput) (ExtractTextOutput, error) {
	path, ok := a.blobs.Path(blobstore.PDFKey(in.PaperID))
	if !ok {
		return ExtractTextOutput{}, fmt.Errorf("blob store has no local path for paper %s", in.PaperID)
	}
	f, r, err := pdf.Open(path)
	if err != nil {
		return ExtractTextOutput{}, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return ExtractTextOutput{}, temporal.NewNonRetryableApplicationError(
			"extract pdf text: "+err.Error(), ErrTypeNoExtractableText, err)
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, reader); err != nil {
		return ExtractTextOutput{}, fmt.Errorf("read extracted text: %w", err)
	}
	text := util.SanitizeText(strings.TrimSpace(buf.String()))
	if text == "" {
		return ExtractTextOutput{}, temporal.NewNonRetryableApplicationError(
			util.ErrNoExtractableText.Error(), ErrTypeNoExtractableText, util.ErrNoExtractableText)
	}
	if len([]rune(text)) < a.cfg.ChunkMinChars {
		return ExtractTextOutput{}, temporal.NewNonRetryableApplicationError(
			util.ErrTextTooShort.Error(), ErrTypeTextTooShort, util.ErrTextTooShort)
	}

	key := blobstore.TextKey(in.PaperID)
	if err := a.blobs.Put(ctx, key, strings.NewReader(text)); err != nil {
		return ExtractTextOutput{}, fmt.Errorf("store extracted text: %w", err)
	}

	// Backfill title and authors from the leading lines when no
	// bibliographic metadata was provided at registration.
	paper, err := a.paperRepo.GetPaperByID(ctx, in.PaperID)
	if err == nil && strings.TrimSpace(paper.Title) == "" {
		title, authors := heuristicTitleAndAuthors(text)
		if title != "" {
			paper.Title = title
			paper.Authors = authors
			if err := a.paperRepo.UpsertPaper(ctx, paper); err != nil {
				return ExtractTextOutput{}, err
			}
		}
	}
	return ExtractTextOutput{TextKey: key, CharCount: len([]rune(text))}, nil
}

// heuristicTitleAndAuthors guesses title and author line from the
// first non-empty lines of extracted text.
func heuristicTitleAndAuthors(text string) (string, []string) {
	s := bufio.NewScanner(strings.NewReader(text))
	nonEmpty := make([]string, 0, 2)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		nonEmpty = append(nonEmpty, line)
		if len(nonEmpty) == 2 {
			break
		}
	}
	title := ""
	var authors []string
	if len(nonEmpty) > 0 && len(nonEmpty[0]) < 300 {
		title = nonEmpty[0]
	}
	if len(nonEmpty) > 1 && len(nonEmpty[1]) < 300 {
		for _, name := range strings.Split(nonEmpty[1], ",") {
			if name = strings.TrimSpace(name); name != "" {
				authors = append(authors, name)
			}
		}
	}
	return title, authors
}

// ChunkPaperActivity splits the extracted text into overlapping chunks
// with stable content-derived IDs.
func (a *Activities) ChunkPaperActivity(ctx context.Context, in ChunkPaperInput) (ChunkPaperOutput, error) {
	rc, err := a.blobs.Get(ctx, blobstore.TextKey(in.PaperID))
	if err != nil {
		return ChunkPaperOutput{}, err
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return ChunkPaperOutput{}, fmt.Errorf("read extracted text: %w", err)
	}

	parts := chunker.Split(string(raw), chunker.Config{
		MaxChars:     a.cfg.ChunkMaxChars,
		OverlapChars: a.cfg.ChunkOverlapChars,
		MinChars:     a.cfg.ChunkMinChars,
	})
	chunks := make([]ChunkItem, 0, len(parts))
	for _, p := range parts {
		contentHash := util.SHA256Hex([]byte(p.Content))
		chunkID := util.SHA256Hex([]byte(fmt.Sprintf("%s:%s:%d:%s", in.PaperID, in.CollectionID, p.Index, contentHash)))
		chunks = append(chunks, ChunkItem{
			ChunkID:    chunkID,
			ChunkIndex: p.Index,
			Content:    p.Content,
			TokenCount: p.TokenCount,
		})
	}
	return ChunkPaperOutput{Chunks: chunks}, nil
}

// EmbedChunksActivity embeds chunk contents with the document task
// type. Output vectors correspond to inputs by position.
func (a *Activities) EmbedChunksActivity(ctx context.Context, in EmbedChunksInput) (EmbedChunksOutput, error) {
	vectors, err := a.gateway.EmbedDocuments(ctx, in.Contents)
	if err != nil {
		return EmbedChunksOutput{}, err
	}
	return EmbedChunksOutput{
		Vectors:      vectors,
		ProviderName: "embedding",
		Model:        fmt.Sprintf("dim-%d", a.gateway.Dimension()),
	}, nil
}

// IndexChunksActivity writes chunks and vectors into the store. A
// count mismatch means an upstream bug, not a transient fault, so it
// fails permanently.
func (a *Activities) IndexChunksActivity(ctx context.Context, in IndexChunksInput) (IndexChunksOutput, error) {
	chunks := make([]models.Chunk, 0, len(in.Chunks))
	for _, c := range in.Chunks {
		chunks = append(chunks, models.Chunk{
			ChunkID:      c.ChunkID,
			PaperID:      in.PaperID,
			CollectionID: in.CollectionID,
			ChunkIndex:   c.ChunkIndex,
			Content:      c.Content,
			TokenCount:   c.TokenCount,
		})
	}
	if err := a.indexer.IndexChunks(ctx, in.CollectionID, in.PaperID, chunks, in.Vectors); err != nil {
		if errors.Is(err, util.ErrEmbeddingMismatch) {
			return IndexChunksOutput{}, temporal.NewNonRetryableApplicationError(
				err.Error(), ErrTypeEmbeddingMismatch, err)
		}
		return IndexChunksOutput{}, err
	}
	return IndexChunksOutput{Indexed: len(chunks)}, nil
}

func (a *Activities) UpdatePaperStatusActivity(ctx context.Context, in UpdatePaperStatusInput) error {
	status, err := models.ParsePaperStatus(in.Status)
	if err != nil {
		return temporal.NewNonRetryableApplicationError(err.Error(), "InvalidStatus", err)
	}
	changed, err := a.paperRepo.UpdatePaperStatus(ctx, in.PaperID, status, in.FailReason)
	if err != nil {
		return err
	}
	if !changed {
		a.logger.Warn("paper status transition skipped",
			zap.String("paper_id", in.PaperID),
			zap.String("target", in.Status))
	}
	return nil
}

func (a *Activities) ListFailedPapersActivity(ctx context.Context, in ListFailedPapersInput) (ListFailedPapersOutput, error) {
	papers, err := a.paperRepo.ListFailedPapers(ctx, in.CollectionID)
	if err != nil {
		return ListFailedPapersOutput{}, err
	}
	out := ListFailedPapersOutput{Papers: make([]FailedPaper, 0, len(papers))}
	for _, p := range papers {
		out.Papers = append(out.Papers, FailedPaper{PaperID: p.PaperID, PDFURL: p.PDFURL, FailReason: p.FailReason})
	}
	return out, nil
}

func (a *Activities) ListCollectionPapersActivity(ctx context.Context, in ListCollectionPapersInput) (ListCollectionPapersOutput, error) {
	papers, err := a.paperRepo.ListPapersByCollection(ctx, in.CollectionID)
	if err != nil {
		return ListCollectionPapersOutput{}, err
	}
	out := ListCollectionPapersOutput{Papers: make([]CollectionPaper, 0, len(papers))}
	for _, p := range papers {
		out.Papers = append(out.Papers, CollectionPaper{
			PaperID: p.PaperID,
			Title:   p.Title,
			PDFURL:  p.PDFURL,
			Status:  string(p.Status),
		})
	}
	return out, nil
}

func (a *Activities) RecordModelCallActivity(ctx context.Context, in RecordModelCallInput) error {
	return a.modelCallRepo.Record(ctx, storage.ModelCall{
		Operation:    in.Operation,
		CollectionID: in.CollectionID,
		PaperID:      in.PaperID,
		ProviderName: in.ProviderName,
		Model:        in.Model,
		RequestID:    in.RequestID,
		Status:       in.Status,
		ErrorType:    in.ErrorType,
	})
}

func (a *Activities) WriteIngestSummaryActivity(ctx context.Context, in WriteIngestSummaryInput) error {
	_ = ctx
	path := filepath.Join(a.cfg.DataOutRoot, in.CollectionID, "ingest_summary.json")
	return util.WriteJSONAtomic(path, in.Summary)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
