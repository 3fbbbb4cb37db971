package activities

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"paperchat/internal/blobstore"
	"paperchat/internal/models"
)

type fakePaperStore struct {
	papers      map[string]models.Paper
	storageKeys map[string]string
}

func (f *fakePaperStore) GetPaperByID(_ context.Context, paperID string) (models.Paper, error) {
	p, ok := f.papers[paperID]
	if !ok {
		return models.Paper{}, fmt.Errorf("get paper by id: no rows for %s", paperID)
	}
	return p, nil
}

func (f *fakePaperStore) UpsertPaper(_ context.Context, p models.Paper) error {
	if f.papers == nil {
		f.papers = map[string]models.Paper{}
	}
	f.papers[p.PaperID] = p
	return nil
}

func (f *fakePaperStore) SetStorageKey(_ context.Context, paperID, storageKey string) error {
	if f.storageKeys == nil {
		f.storageKeys = map[string]string{}
	}
	f.storageKeys[paperID] = storageKey
	return nil
}

func (f *fakePaperStore) UpdatePaperStatus(context.Context, string, models.PaperStatus, string) (bool, error) {
	return true, nil
}

func (f *fakePaperStore) ListPapersByCollection(context.Context, string) ([]models.Paper, error) {
	return nil, nil
}

func (f *fakePaperStore) ListFailedPapers(context.Context, string) ([]models.Paper, error) {
	return nil, nil
}

func newDownloadFixture(t *testing.T, store *fakePaperStore) *Activities {
	t.Helper()
	blobs, err := blobstore.NewFSStore(t.TempDir())
	require.NoError(t, err)
	return &Activities{
		paperRepo:  store,
		blobs:      blobs,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     zap.NewNop(),
	}
}

func TestDownloadPaperActivityResolvesURLFromPaperRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "%PDF-1.4 fake body")
	}))
	defer srv.Close()

	store := &fakePaperStore{papers: map[string]models.Paper{
		"p1": {PaperID: "p1", PDFURL: srv.URL + "/p1.pdf"},
	}}
	a := newDownloadFixture(t, store)

	// The workflow only carries the paper ID; the URL must come from
	// the paper row.
	out, err := a.DownloadPaperActivity(context.Background(), DownloadPaperInput{PaperID: "p1"})
	require.NoError(t, err)
	require.False(t, out.Skipped)
	require.Equal(t, blobstore.PDFKey("p1"), out.StorageKey)
	require.Positive(t, out.SizeBytes)
	require.Equal(t, out.StorageKey, store.storageKeys["p1"])

	exists, err := a.blobs.Exists(context.Background(), out.StorageKey)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestDownloadPaperActivityNotFoundIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	a := newDownloadFixture(t, &fakePaperStore{})
	_, err := a.DownloadPaperActivity(context.Background(), DownloadPaperInput{PaperID: "p404", PDFURL: srv.URL})
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	require.True(t, appErr.NonRetryable())
	require.Equal(t, ErrTypeDownloadRejected, appErr.Type())
	require.Contains(t, appErr.Message(), "404")
}

func TestDownloadPaperActivityServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := newDownloadFixture(t, &fakePaperStore{})
	_, err := a.DownloadPaperActivity(context.Background(), DownloadPaperInput{PaperID: "p503", PDFURL: srv.URL})
	require.Error(t, err)
	require.Contains(t, err.Error(), "503")

	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		require.False(t, appErr.NonRetryable())
	}
}

func TestDownloadPaperActivityNoURLAnywhereIsPermanent(t *testing.T) {
	store := &fakePaperStore{papers: map[string]models.Paper{
		"p-manual": {PaperID: "p-manual"},
	}}
	a := newDownloadFixture(t, store)

	_, err := a.DownloadPaperActivity(context.Background(), DownloadPaperInput{PaperID: "p-manual"})
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	require.True(t, appErr.NonRetryable())
	require.Equal(t, ErrTypeDownloadRejected, appErr.Type())
	require.Contains(t, appErr.Message(), "no PDF URL")
}

func TestDownloadPaperActivitySkipsExistingBlob(t *testing.T) {
	a := newDownloadFixture(t, &fakePaperStore{})
	key := blobstore.PDFKey("p-up")
	require.NoError(t, a.blobs.Put(context.Background(), key, strings.NewReader("%PDF-1.4 uploaded")))

	// No URL configured anywhere; the existing blob short-circuits the
	// download entirely, which is how uploaded papers ingest.
	out, err := a.DownloadPaperActivity(context.Background(), DownloadPaperInput{PaperID: "p-up"})
	require.NoError(t, err)
	require.True(t, out.Skipped)
	require.Equal(t, key, out.StorageKey)
}
