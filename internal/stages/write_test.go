package stages

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"context"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"janus/internal/images"
	"janus/internal/job"
)

func TestWriteStreamsPlainImageToDevice(t *testing.T) {
	dir := t.TempDir()
	content := make([]byte, 1<<20)
	for i := range content {
		content[i] = byte(i % 251)
	}
	imgPath := filepath.Join(dir, "test.img")
	require.NoError(t, os.WriteFile(imgPath, content, 0644))

	img, err := images.Resolve(dir, "test.img")
	require.NoError(t, err)

	devicePath := filepath.Join(dir, "fake-device")
	require.NoError(t, os.WriteFile(devicePath, make([]byte, len(content)), 0644))

	j := job.New("job-1", "batch-1", "A1", devicePath, "test.img", job.Options{})
	result := Write(context.Background(), j, img, devicePath, 30*time.Second)

	require.Equal(t, Success, result.Outcome, result.Message)

	written, err := os.ReadFile(devicePath)
	require.NoError(t, err)
	assert.Equal(t, content, written)
	assert.Equal(t, 1.0, j.Snapshot().Progress)
}

func TestWriteReportsIOErrorForUnwritableDevice(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.img"), []byte("payload"), 0644))
	img, err := images.Resolve(dir, "test.img")
	require.NoError(t, err)

	j := job.New("job-1", "batch-1", "A1", "/nonexistent/dir/device", "test.img", job.Options{})
	result := Write(context.Background(), j, img, "/nonexistent/dir/device", 5*time.Second)

	assert.Equal(t, Failure, result.Outcome)
	assert.Equal(t, "WriteIOError", result.Kind)
}
