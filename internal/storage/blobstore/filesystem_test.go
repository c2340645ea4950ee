package blobstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteBinaryAndResolveRelative(t *testing.T) {
	root := t.TempDir()
	store, err := NewFilesystemStore(root, "")
	require.NoError(t, err)

	handle, err := store.WriteBinary("assets/shot 1.png", []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "assets/shot 1.png", handle)

	data, err := os.ReadFile(filepath.Join(root, "assets", "shot 1.png"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	ref, err := store.Resolve(handle)
	require.NoError(t, err)
	assert.Equal(t, "assets/shot%201.png", ref)
}

func TestResolveWithPublicURL(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir(), "https://notes.example/vault/")
	require.NoError(t, err)

	handle, err := store.WriteBinary("img/a.png", []byte("x"))
	require.NoError(t, err)

	ref, err := store.Resolve(handle)
	require.NoError(t, err)
	assert.Equal(t, "https://notes.example/vault/img/a.png", ref)
}

func TestWriteBinaryRefusesOverwriteAndEscape(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir(), "")
	require.NoError(t, err)

	_, err = store.WriteBinary("a.png", []byte("first"))
	require.NoError(t, err)
	_, err = store.WriteBinary("a.png", []byte("second"))
	require.Error(t, err)

	_, err = store.WriteBinary("../escape.png", []byte("x"))
	require.True(t, errors.Is(err, ErrOutsideRoot))
}

func TestResolveMissingFile(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir(), "")
	require.NoError(t, err)
	_, err = store.Resolve("missing.png")
	require.Error(t, err)

	require.NoError(t, store.DeleteObject("missing.png"))
}
