package scheduler

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"janus/config"
	"janus/internal/digestcache"
	appErrors "janus/internal/errors"
	"janus/internal/eventbus"
	"janus/internal/job"
	"janus/internal/safety"
)

// memoryDB is a minimal in-memory db.Database, mirroring the test double in
// internal/digestcache's own tests.
type memoryDB struct {
	buckets map[string]map[string][]byte
}

func newMemoryDB() *memoryDB { return &memoryDB{buckets: make(map[string]map[string][]byte)} }

func (m *memoryDB) Close() error { return nil }

func (m *memoryDB) GetOrCreateBucket(ctx context.Context, name string) error {
	if _, ok := m.buckets[name]; !ok {
		m.buckets[name] = make(map[string][]byte)
	}
	return nil
}

func (m *memoryDB) GetKV(ctx context.Context, bucket string, key []byte) ([]byte, error) {
	return m.buckets[bucket][string(key)], nil
}

func (m *memoryDB) PutKV(ctx context.Context, bucket string, key, value []byte) error {
	if _, ok := m.buckets[bucket]; !ok {
		m.buckets[bucket] = make(map[string][]byte)
	}
	m.buckets[bucket][string(key)] = value
	return nil
}

func (m *memoryDB) DeleteKV(ctx context.Context, bucket string, key []byte) error {
	delete(m.buckets[bucket], string(key))
	return nil
}

func (m *memoryDB) GetAllKV(ctx context.Context, bucket string) (map[string][]byte, error) {
	return m.buckets[bucket], nil
}

func (m *memoryDB) DeleteAllKV(ctx context.Context, bucket string) error {
	m.buckets[bucket] = make(map[string][]byte)
	return nil
}

// alwaysWritable is a safetyGate stub that accepts or rejects every device
// path uniformly, so tests never depend on the real inventory package.
type alwaysWritable struct {
	writable bool
	reason   safety.Reason
}

func (g alwaysWritable) VerifyWritable(ctx context.Context, devicePath string, allowNonRemovable bool) (bool, safety.Reason) {
	return g.writable, g.reason
}

func testConfig(imagesDir string) *config.Config {
	return &config.Config{
		Images:    config.ImagesConfig{Dir: imagesDir},
		Scheduler: config.SchedulerConfig{DefaultConcurrency: 1},
		Stages: config.StageTimeouts{
			Write:  10 * time.Second,
			Verify: 10 * time.Second,
			Expand: 5 * time.Second,
			Resize: 5 * time.Second,
			Eject:  5 * time.Second,
		},
	}
}

func testScheduler(t *testing.T, imagesDir string, gate safetyGate) *Scheduler {
	t.Helper()
	bus := eventbus.New()
	t.Cleanup(bus.Close)
	cache := digestcache.New(newMemoryDB(), "image_digests")
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s := New(testConfig(imagesDir), bus, gate, cache, logger)
	t.Cleanup(s.Shutdown)
	return s
}

func writeFakeImage(t *testing.T, dir, name string, size int) string {
	t.Helper()
	content := make([]byte, size)
	for i := range content {
		content[i] = byte(i % 251)
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

func waitForTerminal(t *testing.T, s *Scheduler, jobID string, timeout time.Duration) job.Job {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		j, ok := s.Job(jobID)
		if ok && j.State.IsTerminal() {
			return j
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state within %s", jobID, timeout)
	return job.Job{}
}

func TestStartBatchHappyPathRunsToDone(t *testing.T) {
	imagesDir := t.TempDir()
	writeFakeImage(t, imagesDir, "test.img", 1<<16)

	deviceDir := t.TempDir()
	devicePath := filepath.Join(deviceDir, "device0")
	require.NoError(t, os.WriteFile(devicePath, make([]byte, 1<<16), 0644))

	s := testScheduler(t, imagesDir, alwaysWritable{writable: true})

	created, err := s.StartBatch(context.Background(), "test.img",
		[]CellTarget{{CellID: "A1", DevicePath: devicePath}}, 1, job.Options{})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, job.Queued, created[0].State)

	final := waitForTerminal(t, s, created[0].JobID, 5*time.Second)
	assert.Equal(t, job.Done, final.State)
	assert.Equal(t, 1.0, final.Progress)
}

func TestStartBatchPublishesJobLogEvents(t *testing.T) {
	imagesDir := t.TempDir()
	writeFakeImage(t, imagesDir, "test.img", 1<<16)

	deviceDir := t.TempDir()
	devicePath := filepath.Join(deviceDir, "device0")
	require.NoError(t, os.WriteFile(devicePath, make([]byte, 1<<16), 0644))

	s := testScheduler(t, imagesDir, alwaysWritable{writable: true})
	_, events, unsubscribe := s.bus.Subscribe()
	defer unsubscribe()

	created, err := s.StartBatch(context.Background(), "test.img",
		[]CellTarget{{CellID: "A1", DevicePath: devicePath}}, 1, job.Options{})
	require.NoError(t, err)
	require.Len(t, created, 1)

	waitForTerminal(t, s, created[0].JobID, 5*time.Second)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == eventbus.JobLog {
				payload, ok := ev.Data.(eventbus.JobLogPayload)
				require.True(t, ok)
				assert.Equal(t, created[0].JobID, payload.JobID)
				assert.NotEmpty(t, payload.Lines)
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for a job_log event")
		}
	}
}

func TestStartBatchPreflightRejectedNeverQueues(t *testing.T) {
	imagesDir := t.TempDir()
	writeFakeImage(t, imagesDir, "test.img", 1024)

	s := testScheduler(t, imagesDir, alwaysWritable{writable: false, reason: "not removable"})

	created, err := s.StartBatch(context.Background(), "test.img",
		[]CellTarget{{CellID: "A1", DevicePath: "/dev/whatever"}}, 1, job.Options{})
	require.NoError(t, err)
	require.Len(t, created, 1)

	assert.Equal(t, job.Failed, created[0].State)
	require.NotNil(t, created[0].Error)
	assert.Equal(t, "PreflightRejected", created[0].Error.Kind)

	s.mu.Lock()
	_, running := s.running[created[0].JobID]
	queued := len(s.queue)
	s.mu.Unlock()
	assert.False(t, running)
	assert.Equal(t, 0, queued)
}

func TestStartBatchSkipsCellWithNonTerminalJob(t *testing.T) {
	imagesDir := t.TempDir()
	writeFakeImage(t, imagesDir, "test.img", 1024)

	s := testScheduler(t, imagesDir, alwaysWritable{writable: true})

	// Manually seed a running job occupying cell A1, bypassing admission so
	// it stays non-terminal for the duration of this test.
	existing := job.New("existing-job", "batch-0", "A1", "/dev/existing", "test.img", job.Options{})
	s.mu.Lock()
	s.jobs[existing.JobID] = existing
	s.running[existing.JobID] = existing
	s.mu.Unlock()

	created, err := s.StartBatch(context.Background(), "test.img",
		[]CellTarget{{CellID: "A1", DevicePath: "/dev/other"}}, 1, job.Options{})
	require.NoError(t, err)
	assert.Len(t, created, 0)
}

func TestAdmissionDefersOnDevicePathCollision(t *testing.T) {
	imagesDir := t.TempDir()
	writeFakeImage(t, imagesDir, "test.img", 1024)

	s := testScheduler(t, imagesDir, alwaysWritable{writable: true})

	running := job.New("running-job", "batch-0", "A1", "/dev/shared", "test.img", job.Options{})
	s.mu.Lock()
	s.jobs[running.JobID] = running
	s.running[running.JobID] = running
	s.concurrency = 2
	s.mu.Unlock()

	queued := job.New("queued-job", "batch-0", "A2", "/dev/shared", "test.img", job.Options{})
	s.mu.Lock()
	s.jobs[queued.JobID] = queued
	s.queue = append(s.queue, queued.JobID)
	s.admitLocked()
	_, stillRunning := s.running[queued.JobID]
	stillQueued := len(s.queue)
	s.mu.Unlock()

	assert.False(t, stillRunning, "colliding device_path must not be admitted")
	assert.Equal(t, 1, stillQueued)
}

func TestCancelQueuedJobNeverStartsARunner(t *testing.T) {
	imagesDir := t.TempDir()
	writeFakeImage(t, imagesDir, "test.img", 1024)

	s := testScheduler(t, imagesDir, alwaysWritable{writable: true})

	// Occupy the single concurrency slot so the second job stays queued.
	blocker := job.New("blocker", "batch-0", "A1", "/dev/blocker", "test.img", job.Options{})
	s.mu.Lock()
	s.jobs[blocker.JobID] = blocker
	s.running[blocker.JobID] = blocker
	s.mu.Unlock()

	waiting := job.New("waiting", "batch-0", "A2", "/dev/waiting", "test.img", job.Options{})
	s.mu.Lock()
	s.jobs[waiting.JobID] = waiting
	s.queue = append(s.queue, waiting.JobID)
	s.mu.Unlock()

	require.NoError(t, s.CancelJob(waiting.JobID))

	final := waiting.Snapshot()
	assert.Equal(t, job.Cancelled, final.State)

	s.mu.Lock()
	remaining := append([]string(nil), s.queue...)
	s.mu.Unlock()
	assert.NotContains(t, remaining, waiting.JobID)
}

func TestCancelAllSignalsEveryNonTerminalJob(t *testing.T) {
	imagesDir := t.TempDir()
	s := testScheduler(t, imagesDir, alwaysWritable{writable: true})

	a := job.New("a", "batch-0", "A1", "/dev/a", "test.img", job.Options{})
	b := job.New("b", "batch-0", "A2", "/dev/b", "test.img", job.Options{})
	done := job.New("c", "batch-0", "A3", "/dev/c", "test.img", job.Options{})
	require.NoError(t, done.Transition(job.Writing))
	require.NoError(t, done.Transition(job.Done))

	s.mu.Lock()
	s.jobs[a.JobID] = a
	s.jobs[b.JobID] = b
	s.jobs[done.JobID] = done
	s.queue = append(s.queue, a.JobID, b.JobID)
	s.mu.Unlock()

	s.CancelAll()

	assert.True(t, a.IsCancelRequested())
	assert.True(t, b.IsCancelRequested())
	assert.False(t, done.IsCancelRequested())
	assert.Equal(t, job.Cancelled, a.Snapshot().State)
	assert.Equal(t, job.Cancelled, b.Snapshot().State)
}

func TestRetryFailedExcludesCancelled(t *testing.T) {
	imagesDir := t.TempDir()
	s := testScheduler(t, imagesDir, alwaysWritable{writable: true})

	failed := job.New("failed-job", "batch-0", "A1", "/dev/a", "test.img", job.Options{})
	require.NoError(t, failed.Transition(job.Writing))
	require.NoError(t, failed.Fail("WriteIOError", "disk full"))

	cancelled := job.New("cancelled-job", "batch-0", "A2", "/dev/b", "test.img", job.Options{})
	require.NoError(t, cancelled.MarkCancelled())

	s.mu.Lock()
	s.jobs[failed.JobID] = failed
	s.jobs[cancelled.JobID] = cancelled
	s.mu.Unlock()

	retried := s.RetryFailed()
	require.Len(t, retried, 1)
	assert.Equal(t, "A1", retried[0].CellID)
	assert.NotEqual(t, failed.JobID, retried[0].JobID)
	assert.Equal(t, job.Queued, retried[0].State)
}

func TestRetryJobRejectsNonTerminalSource(t *testing.T) {
	imagesDir := t.TempDir()
	s := testScheduler(t, imagesDir, alwaysWritable{writable: true})

	running := job.New("running-job", "batch-0", "A1", "/dev/a", "test.img", job.Options{})
	require.NoError(t, running.Transition(job.Writing))
	s.mu.Lock()
	s.jobs[running.JobID] = running
	s.mu.Unlock()

	_, err := s.RetryJob(running.JobID)
	assert.Error(t, err)
}

func TestRetryJobRejectsWhenCellHasADifferentNonTerminalJob(t *testing.T) {
	imagesDir := t.TempDir()
	s := testScheduler(t, imagesDir, alwaysWritable{writable: true})

	failed := job.New("failed-job", "batch-0", "A1", "/dev/a", "test.img", job.Options{})
	require.NoError(t, failed.Transition(job.Writing))
	require.NoError(t, failed.Fail("WriteIOError", "disk full"))

	inFlight := job.New("in-flight-job", "batch-1", "A1", "/dev/a", "test.img", job.Options{})
	require.NoError(t, inFlight.Transition(job.Writing))

	s.mu.Lock()
	s.jobs[failed.JobID] = failed
	s.jobs[inFlight.JobID] = inFlight
	s.mu.Unlock()

	_, err := s.RetryJob(failed.JobID)
	require.Error(t, err)
	var appErr *appErrors.AppError
	require.True(t, appErrors.IsAppError(err, &appErr))
	assert.Equal(t, appErrors.DeviceStateChanged, appErr.Type)
	assert.Equal(t, http.StatusConflict, appErr.Code)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Len(t, s.jobs, 2, "no retry job should have been created")
}

func TestRetryFailedSkipsCellWithADifferentNonTerminalJob(t *testing.T) {
	imagesDir := t.TempDir()
	s := testScheduler(t, imagesDir, alwaysWritable{writable: true})

	failed := job.New("failed-job", "batch-0", "A1", "/dev/a", "test.img", job.Options{})
	require.NoError(t, failed.Transition(job.Writing))
	require.NoError(t, failed.Fail("WriteIOError", "disk full"))

	inFlight := job.New("in-flight-job", "batch-1", "A1", "/dev/a", "test.img", job.Options{})
	require.NoError(t, inFlight.Transition(job.Writing))

	s.mu.Lock()
	s.jobs[failed.JobID] = failed
	s.jobs[inFlight.JobID] = inFlight
	s.mu.Unlock()

	retried := s.RetryFailed()
	assert.Empty(t, retried)
}

func TestEjectCellRejectsWhenCellHasActiveJob(t *testing.T) {
	imagesDir := t.TempDir()
	s := testScheduler(t, imagesDir, alwaysWritable{writable: true})

	active := job.New("active-job", "batch-0", "A1", "/dev/a", "test.img", job.Options{})
	s.mu.Lock()
	s.jobs[active.JobID] = active
	s.running[active.JobID] = active
	s.mu.Unlock()

	err := s.EjectCell(context.Background(), "A1", "/dev/a")
	assert.Error(t, err)
}
