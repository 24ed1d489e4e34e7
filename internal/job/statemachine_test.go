package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJob() *Job {
	return New("job-1", "batch-1", "A1", "/dev/sdz", "test.img", Options{Verify: true})
}

func TestHappyPathTransitions(t *testing.T) {
	j := newTestJob()
	require.NoError(t, j.Transition(Writing))
	require.NoError(t, j.Transition(Verifying))
	require.NoError(t, j.Transition(Done))

	assert.Equal(t, Done, j.State)
	assert.Equal(t, 1.0, j.Progress)
	assert.Len(t, j.History, 3)
}

func TestSkipVerifyGoesStraightToDone(t *testing.T) {
	j := newTestJob()
	require.NoError(t, j.Transition(Writing))
	require.NoError(t, j.Transition(Done))
	assert.Equal(t, Done, j.State)
}

func TestIllegalTransitionRejected(t *testing.T) {
	j := newTestJob()
	err := j.Transition(Verifying)
	assert.Error(t, err, "cannot verify before writing")
	assert.Equal(t, Queued, j.State)
}

func TestTerminalStateIsImmutable(t *testing.T) {
	j := newTestJob()
	require.NoError(t, j.Transition(Writing))
	require.NoError(t, j.Fail("WriteIOError", "disk full"))

	err := j.Transition(Verifying)
	assert.Error(t, err)
	assert.Equal(t, Failed, j.State)
}

func TestCancelFromQueuedNeverStarts(t *testing.T) {
	j := newTestJob()
	require.NoError(t, j.MarkCancelled())
	assert.Equal(t, Cancelled, j.State)
	assert.Nil(t, j.Error)
	assert.NotNil(t, j.Warning)
}

func TestCancelPreservesProgress(t *testing.T) {
	j := newTestJob()
	require.NoError(t, j.Transition(Writing))
	j.SetProgress(0.42, 1000, 10)

	require.NoError(t, j.MarkCancelled())
	assert.Equal(t, 0.42, j.Progress)
}

func TestFailFromAnyNonTerminalState(t *testing.T) {
	j := newTestJob()
	require.NoError(t, j.Transition(Writing))
	require.NoError(t, j.Transition(Verifying))
	require.NoError(t, j.Fail("VerifyMismatch", "digest mismatch at offset 104857600"))

	assert.Equal(t, Failed, j.State)
	assert.Equal(t, "VerifyMismatch", j.Error.Kind)
}

func TestProgressClampedToUnitRange(t *testing.T) {
	j := newTestJob()
	require.NoError(t, j.Transition(Writing))

	j.SetProgress(-1, 0, 0)
	assert.Equal(t, 0.0, j.Progress)

	j.SetProgress(5, 0, 0)
	assert.Equal(t, 1.0, j.Progress)
}

func TestAppendLogDropsOldest(t *testing.T) {
	j := newTestJob()
	for i := 0; i < logRingCapacity+10; i++ {
		j.AppendLog("line")
	}
	assert.Len(t, j.LogTail, logRingCapacity)
}

func TestSetWarningConcatenatesOnSecondCall(t *testing.T) {
	j := newTestJob()
	j.SetWarning("expand", "no partitions to expand")
	j.SetWarning("resize", "no partitions to resize")

	require.NotNil(t, j.Warning)
	assert.Equal(t, "resize", j.Warning.Stage)
	assert.Equal(t, "no partitions to expand; no partitions to resize", j.Warning.Message)
}

func TestAppendLogForwardsToSink(t *testing.T) {
	j := newTestJob()
	var received []string
	j.SetLogSink(func(line string) { received = append(received, line) })

	j.AppendLog("first")
	j.AppendLog("second")

	assert.Equal(t, []string{"first", "second"}, received)
}

func TestCancelTokenClosesOnce(t *testing.T) {
	j := newTestJob()
	assert.False(t, j.IsCancelRequested())
	j.Cancel()
	j.Cancel() // must not panic
	assert.True(t, j.IsCancelRequested())

	select {
	case <-j.CancelToken():
	default:
		t.Fatal("cancel token should be closed")
	}
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	j := newTestJob()
	snap := j.Snapshot()
	j.AppendLog("mutate after snapshot")

	assert.NotEqual(t, len(j.LogTail), len(snap.LogTail))
}
