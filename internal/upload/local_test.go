package upload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pasteup/internal/attachments"
	"pasteup/internal/host"
	"pasteup/internal/logging"
	"pasteup/internal/storage/blobstore"
	"pasteup/internal/testutil"
)

func TestSaveLocallySynthesisesTimestampedName(t *testing.T) {
	files := testutil.NewFiles()
	writer := NewLocalWriter(nil, files, files, "attachments/").WithLogger(logging.Nop())
	writer.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }

	outcome := writer.SaveLocally(context.Background(), pngPayload(), testutil.NewTarget("notes/day.md"))

	require.True(t, outcome.OK(), outcome.Reason())
	assert.Equal(t, "local/attachments/pasted-image-20260304050607.png", outcome.URL())
	data, ok := files.File("attachments/pasted-image-20260304050607.png")
	require.True(t, ok)
	assert.Equal(t, "0123456789", string(data))
}

func TestSaveLocallyUsesAllocatorAndVaultStore(t *testing.T) {
	root := t.TempDir()
	store, err := blobstore.NewFilesystemStore(root, "")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "assets", "clipboard.png"), []byte("old"), 0o644))

	writer := NewLocalWriter(attachments.NewAllocator(root, "assets"), store, store, "assets").WithLogger(logging.Nop())
	outcome := writer.SaveLocally(context.Background(), pngPayload(), testutil.NewTarget("daily/today.md"))

	require.True(t, outcome.OK(), outcome.Reason())
	assert.Equal(t, "assets/clipboard%201.png", outcome.URL())
	data, err := os.ReadFile(filepath.Join(root, "assets", "clipboard 1.png"))
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))
}

type failingAllocator struct{}

func (failingAllocator) AllocatePath(string, string) (string, error) {
	return "", errors.New("no space left in folder")
}

type panickingWriter struct{}

func (panickingWriter) WriteBinary(string, []byte) (string, error) { panic("writer bug") }

func TestSaveLocallyFailures(t *testing.T) {
	ctx := context.Background()
	target := testutil.NewTarget("")

	files := testutil.NewFiles()
	files.WriteErr = testutil.ErrWriteFailed
	outcome := NewLocalWriter(nil, files, files, "").WithLogger(logging.Nop()).SaveLocally(ctx, pngPayload(), target)
	assert.False(t, outcome.OK())
	assert.Contains(t, outcome.Reason(), "disk full")

	files = testutil.NewFiles()
	files.ResolveErr = errors.New("no resolver")
	writer := NewLocalWriter(nil, files, files, "").WithLogger(logging.Nop())
	writer.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }
	outcome = writer.SaveLocally(ctx, pngPayload(), target)
	assert.False(t, outcome.OK())
	assert.Contains(t, outcome.Reason(), "no resolver")
	assert.Equal(t, 1, files.Writes())
	_, kept := files.File("pasted-image-20260304050607.png")
	assert.False(t, kept, "unresolvable attachment is removed")

	outcome = NewLocalWriter(failingAllocator{}, files, files, "").WithLogger(logging.Nop()).SaveLocally(ctx, pngPayload(), target)
	assert.False(t, outcome.OK())
	assert.Contains(t, outcome.Reason(), "allocate attachment path")

	outcome = NewLocalWriter(nil, panickingWriter{}, files, "").WithLogger(logging.Nop()).SaveLocally(ctx, pngPayload(), target)
	assert.False(t, outcome.OK())
	assert.Contains(t, outcome.Reason(), "writer bug")

	outcome = NewLocalWriter(nil, nil, nil, "").WithLogger(logging.Nop()).SaveLocally(ctx, pngPayload(), host.TargetFunc(nil))
	assert.False(t, outcome.OK())
}
