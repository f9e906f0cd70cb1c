package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveReadDelete(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	rel, err := store.Save("lessons/l-1.pdf", []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "lessons/l-1.pdf", rel)

	data, err := store.Read(rel)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))

	require.NoError(t, store.Delete(rel))
	_, err = store.Read(rel)
	assert.Error(t, err)
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("../escape.pdf", []byte("x"))
	assert.Error(t, err)
	_, err = store.Read("/etc/passwd")
	assert.Error(t, err)
}

func TestLocalStorageCleanupOlderThan(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)

	_, err = store.Save("old.pdf", []byte("x"))
	require.NoError(t, err)
	_, err = store.Save("new.pdf", []byte("y"))
	require.NoError(t, err)
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "old.pdf"), past, past))

	deleted, err := store.CleanupOlderThan(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"old.pdf"}, deleted)
}
