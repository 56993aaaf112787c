package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_SaveReadDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, "documents/2025/01/02/cv.txt", []byte("hello")))

	data, err := store.ReadFile(ctx, "documents/2025/01/02/cv.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	entries, err := os.ReadDir(filepath.Join(store.Root(), "documents/2025/01/02"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not remain")

	require.NoError(t, store.Delete(ctx, "documents/2025/01/02/cv.txt"))
	require.NoError(t, store.Delete(ctx, "documents/2025/01/02/cv.txt"))

	_, err = store.ReadFile(ctx, "documents/2025/01/02/cv.txt")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestLocalStore_RejectsPathsOutsideRoot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewLocalStore(filepath.Join(root, "uploads"))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "secret.txt"), []byte("x"), 0o600))

	paths := []string{
		"../secret.txt",
		"a/../../secret.txt",
		"/etc/passwd",
		"",
		".",
	}
	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			_, err := store.ReadFile(ctx, p)
			assert.ErrorIs(t, err, ErrInvalidPath)
			assert.ErrorIs(t, store.Save(ctx, p, []byte("x")), ErrInvalidPath)
		})
	}
}

func TestLocalStore_CancelledContext(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.ReadFile(ctx, "a.txt")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewLocalStore_RequiresRoot(t *testing.T) {
	_, err := NewLocalStore("")
	assert.Error(t, err)
}
