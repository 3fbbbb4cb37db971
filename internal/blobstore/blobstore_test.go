package blobstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"paperchat/internal/util"
)

func TestFSStoreRoundTrip(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key := PDFKey("paper-1")
	require.NoError(t, store.Put(ctx, key, strings.NewReader("%PDF-1.4 fake")))

	ok, err := store.Exists(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	rc, err := store.Get(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4 fake", string(data))

	path, ok := store.Path(key)
	require.True(t, ok)
	require.NotEmpty(t, path)

	require.NoError(t, store.Delete(ctx, key))
	ok, err = store.Exists(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFSStoreMissingBlob(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), TextKey("nope"))
	require.Error(t, err)
	require.True(t, errors.Is(err, util.ErrBlobNotFound))
}

func TestFSStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.Error(t, store.Put(ctx, "../outside", strings.NewReader("x")))
	require.Error(t, store.Put(ctx, "/abs/path", strings.NewReader("x")))
}

func TestFSStoreOverwrite(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key := TextKey("paper-2")
	require.NoError(t, store.Put(ctx, key, strings.NewReader("old")))
	require.NoError(t, store.Put(ctx, key, strings.NewReader("new")))

	rc, err := store.Get(ctx, key)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	require.Equal(t, "new", string(data))
}
