package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/medium-digest/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("creates missing directory", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "nested", "archive")
		store, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		require.NotNil(t, store)
		require.DirExists(t, dir)
	})
	t.Run("missing base dir", func(t *testing.T) {
		t.Parallel()
		_, err := local.New(local.Config{})
		require.Error(t, err)
	})
	t.Run("base dir is a file", func(t *testing.T) {
		t.Parallel()
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		require.ErrorContains(t, err, "not a directory")
	})
}

func TestPutAndGetObject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	uri, err := store.PutObject(ctx, "reports/2026/run-1.json", "application/json", strings.NewReader(`{"ok":true}`))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "file://"))
	require.FileExists(t, filepath.Join(dir, "reports", "2026", "run-1.json"))

	got, err := store.GetObject(ctx, uri)
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(got))
}

func TestPathTraversalRejected(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.PutObject(ctx, "../escape.txt", "", strings.NewReader("x"))
	require.ErrorContains(t, err, "path traversal")
	_, err = store.GetObject(ctx, "file:///etc/passwd")
	require.ErrorContains(t, err, "path traversal")
	_, err = store.GetObject(ctx, "gs://bucket/object")
	require.ErrorContains(t, err, "unsupported uri")
	_, err = store.PutObject(ctx, "", "", strings.NewReader("x"))
	require.Error(t, err)
}
