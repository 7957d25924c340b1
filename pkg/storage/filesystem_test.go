package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveResolveDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)

	name, err := store.SaveStream("photo.jpg", bytes.NewReader([]byte("jpeg-bytes")))
	require.NoError(t, err)
	require.Equal(t, "photo.jpg", name)

	rc, err := store.Resolve(context.Background(), name)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, []byte("jpeg-bytes"), data)

	require.NoError(t, store.Delete(name))
	_, err = store.Resolve(context.Background(), name)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Delete(name))
}

func TestLocalStorageResolveMissing(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Resolve(context.Background(), "absent.png")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.Resolve(context.Background(), "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorageConfinesReferences(t *testing.T) {
	root := t.TempDir()
	uploads := filepath.Join(root, "uploads")
	store, err := NewLocalStorage(uploads)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "secret.txt"), []byte("nope"), 0o600))
	_, err = store.Resolve(context.Background(), "../secret.txt")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.Save("../../escape.png", []byte("x"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(uploads, "escape.png"))
	require.NoError(t, err)
}

func TestLocalStorageResolveHonoursContext(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.Resolve(ctx, "any.png")
	require.ErrorIs(t, err, context.Canceled)
}

func TestLocalStorageGenerateName(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	store.now = func() time.Time { return time.UnixMilli(1700000000000) }

	first := store.GenerateName("Portrait.JPG")
	second := store.GenerateName("Portrait.JPG")
	require.True(t, strings.HasPrefix(first, "1700000000000-"))
	require.True(t, strings.HasSuffix(first, ".jpg"))
	require.NotEqual(t, first, second)
}
