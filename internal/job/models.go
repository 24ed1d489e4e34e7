// Package job defines the Job entity and its state machine: the central
// record of one device-flashing pipeline run, from admission through a
// terminal state.
package job

import (
	"sync"
	"time"
)

// State is one of a job's lifecycle states. Transitions are enforced by
// Job.Transition, never assigned directly by callers outside this package.
type State string

const (
	Queued    State = "QUEUED"
	Writing   State = "WRITING"
	Verifying State = "VERIFYING"
	Expanding State = "EXPANDING"
	Resizing  State = "RESIZING"
	Done      State = "DONE"
	Failed    State = "FAILED"
	Cancelled State = "CANCELLED"
)

// IsTerminal reports whether a state is a sink: DONE, FAILED, or CANCELLED.
func (s State) IsTerminal() bool {
	return s == Done || s == Failed || s == Cancelled
}

// Options is the enumerated set of recognised per-batch flags. Unknown keys
// must be rejected before they ever reach this struct.
type Options struct {
	Verify           bool `json:"verify"`
	ExpandPartition  bool `json:"expand_partition"`
	ResizeFilesystem bool `json:"resize_filesystem"`
	EjectAfterDone   bool `json:"eject_after_done"`
}

// ErrorInfo is set iff State == Failed; a CANCELLED job keeps it nil.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Warning is attached to a DONE job when a non-fatal stage (expand, resize,
// eject) failed but the pipeline continued. MarkCancelled also sets one on a
// CANCELLED job to carry the cancellation notice.
type Warning struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// StateTransition records one hop in a job's history, mirroring the audit
// trail kept for device leases elsewhere in this codebase.
type StateTransition struct {
	FromState State     `json:"from_state"`
	ToState   State     `json:"to_state"`
	Timestamp time.Time `json:"timestamp"`
}

// logRingCapacity bounds log_tail to the range spec.md names: at least 200,
// at most 2000 lines.
const logRingCapacity = 500

// Job is the central entity. Every mutation to a running job's fields must
// go through Transition, SetProgress, AppendLog, or SetWarning so that the
// terminal-state immutability invariant holds.
type Job struct {
	mu sync.Mutex

	JobID      string    `json:"job_id"`
	BatchID    string    `json:"batch_id"`
	CellID     string    `json:"cell_id"`
	DevicePath string    `json:"device_path"`
	ImageName  string    `json:"image_name"`
	Options    Options   `json:"options"`
	State      State     `json:"state"`
	Stage      string    `json:"stage"`
	Progress   float64   `json:"progress"`
	SpeedBPS   float64   `json:"speed_bps,omitempty"`
	ETASeconds float64   `json:"eta_seconds,omitempty"`
	Error      *ErrorInfo `json:"error,omitempty"`
	Warning    *Warning  `json:"warning,omitempty"`
	LogTail    []string  `json:"log_tail"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at,omitempty"`

	History []StateTransition `json:"-"`

	// cancel is closed exactly once, by Cancel(). Runners select on it
	// alongside child-process exit.
	cancel     chan struct{}
	cancelOnce sync.Once

	// logSink, when set, is invoked with every line appended via AppendLog.
	// The scheduler wires this to the event bus so log lines reach
	// subscribers; nil is a valid no-op (e.g. in unit tests).
	logSink func(line string)
}

// New creates a fresh job in QUEUED for the given cell/image/options.
func New(jobID, batchID, cellID, devicePath, imageName string, opts Options) *Job {
	return &Job{
		JobID:      jobID,
		BatchID:    batchID,
		CellID:     cellID,
		DevicePath: devicePath,
		ImageName:  imageName,
		Options:    opts,
		State:      Queued,
		Stage:      "queued",
		LogTail:    make([]string, 0, logRingCapacity),
		StartedAt:  time.Now(),
		cancel:     make(chan struct{}),
	}
}

// Snapshot returns a shallow copy of the job's externally visible fields,
// safe to hand to the event bus or an HTTP handler without racing further
// mutation.
func (j *Job) Snapshot() Job {
	j.mu.Lock()
	defer j.mu.Unlock()

	cp := Job{
		JobID:      j.JobID,
		BatchID:    j.BatchID,
		CellID:     j.CellID,
		DevicePath: j.DevicePath,
		ImageName:  j.ImageName,
		Options:    j.Options,
		State:      j.State,
		Stage:      j.Stage,
		Progress:   j.Progress,
		SpeedBPS:   j.SpeedBPS,
		ETASeconds: j.ETASeconds,
		LogTail:    append([]string(nil), j.LogTail...),
		StartedAt:  j.StartedAt,
		EndedAt:    j.EndedAt,
	}
	if j.Error != nil {
		e := *j.Error
		cp.Error = &e
	}
	if j.Warning != nil {
		w := *j.Warning
		cp.Warning = &w
	}
	return cp
}

// CancelToken returns the channel closed when this job is cancelled.
func (j *Job) CancelToken() <-chan struct{} {
	return j.cancel
}

// Cancel requests cancellation of the job's current or future stage. Safe
// to call more than once and from any goroutine.
func (j *Job) Cancel() {
	j.cancelOnce.Do(func() { close(j.cancel) })
}

// IsCancelRequested reports whether Cancel has been called.
func (j *Job) IsCancelRequested() bool {
	select {
	case <-j.cancel:
		return true
	default:
		return false
	}
}

// AppendLog appends a line to the bounded log ring, dropping the oldest
// line once the ring is full, and forwards the line to the log sink if one
// is set.
func (j *Job) AppendLog(line string) {
	j.mu.Lock()
	j.LogTail = append(j.LogTail, line)
	if len(j.LogTail) > logRingCapacity {
		j.LogTail = j.LogTail[len(j.LogTail)-logRingCapacity:]
	}
	sink := j.logSink
	j.mu.Unlock()

	if sink != nil {
		sink(line)
	}
}

// SetLogSink wires a callback invoked with every future AppendLog line.
func (j *Job) SetLogSink(sink func(line string)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.logSink = sink
}

// SetProgress updates progress and the derived speed/ETA fields for the
// active stage. It is the caller's (a Stage Runner's) responsibility to
// ensure progress is monotonically non-decreasing within a stage.
func (j *Job) SetProgress(progress, speedBPS, etaSeconds float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	j.Progress = progress
	j.SpeedBPS = speedBPS
	j.ETASeconds = etaSeconds
}

// SetStage updates the human-readable stage tag without a state transition,
// for substeps (eject after done) that don't have their own State value.
// A no-op once the job has reached a terminal state.
func (j *Job) SetStage(name string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.State.IsTerminal() {
		return
	}
	j.Stage = name
}

// SetWarning attaches a non-fatal stage warning without touching state. A
// job that already carries a warning (e.g. expand warned, then resize also
// warns) has the new message appended rather than losing the earlier one.
func (j *Job) SetWarning(stage, message string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Warning == nil {
		j.Warning = &Warning{Stage: stage, Message: message}
		return
	}
	j.Warning.Stage = stage
	j.Warning.Message = j.Warning.Message + "; " + message
}

// StateSnapshot returns the current state under lock, for callers deciding
// whether to admit/skip a job without racing a concurrent transition.
func (j *Job) StateSnapshot() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.State
}
