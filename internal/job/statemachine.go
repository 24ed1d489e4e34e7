package job

import (
	"fmt"
	"time"

	appErrors "janus/internal/errors"
)

// stageBaseline is the progress value a forward transition resets to on
// entry. DONE is special-cased to 1.0 after this baseline is applied.
func stageBaseline(s State) float64 {
	return 0
}

// stageName is the human-readable tag stored in Job.Stage for each state.
func stageName(s State) string {
	switch s {
	case Queued:
		return "queued"
	case Writing:
		return "writing"
	case Verifying:
		return "verifying"
	case Expanding:
		return "expanding"
	case Resizing:
		return "resizing"
	case Done:
		return "done"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// allowedTransitions enumerates the exact graph from the state-machine
// design: every non-terminal state may also move to FAILED or CANCELLED,
// which is handled separately in Transition rather than listed here.
var allowedTransitions = map[State][]State{
	Queued:    {Writing},
	Writing:   {Verifying, Expanding, Resizing, Done},
	Verifying: {Expanding, Resizing, Done},
	Expanding: {Resizing, Done},
	Resizing:  {Done},
}

// Transition moves the job to newState, validating the hop against the
// allowed graph, updating stage/progress, recording history, and refusing
// any mutation once the job has already reached a terminal state.
func (j *Job) Transition(newState State) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.State.IsTerminal() {
		return appErrors.NewInternalError("job.Transition",
			fmt.Errorf("job %s already terminal at %s, cannot move to %s", j.JobID, j.State, newState))
	}

	if !j.isAllowed(newState) {
		return appErrors.NewInternalError("job.Transition",
			fmt.Errorf("illegal transition %s -> %s for job %s", j.State, newState, j.JobID))
	}

	j.History = append(j.History, StateTransition{
		FromState: j.State,
		ToState:   newState,
		Timestamp: time.Now(),
	})

	j.State = newState
	j.Stage = stageName(newState)
	if newState != Failed && newState != Cancelled {
		j.Progress = stageBaseline(newState)
	}

	if newState.IsTerminal() {
		j.EndedAt = time.Now()
		if newState == Done {
			j.Progress = 1.0
		}
	}

	return nil
}

// isAllowed reports whether newState is reachable from the job's current
// state: either it is in the state-specific forward graph, or it is one of
// the two universally-reachable terminal branches from any non-terminal
// state.
func (j *Job) isAllowed(newState State) bool {
	if newState == Failed || newState == Cancelled {
		return true
	}
	for _, s := range allowedTransitions[j.State] {
		if s == newState {
			return true
		}
	}
	return false
}

// Fail transitions the job to FAILED with the given taxonomy kind and
// message. Terminal-state immutability applies: calling Fail on an
// already-terminal job is a no-op error, not a panic.
func (j *Job) Fail(kind, message string) error {
	if err := j.Transition(Failed); err != nil {
		return err
	}
	j.mu.Lock()
	j.Error = &ErrorInfo{Kind: kind, Message: message}
	j.mu.Unlock()
	return nil
}

// MarkCancelled transitions the job to CANCELLED, preserving whatever
// progress had been made. Error stays nil: per spec.md §3, error? is set
// iff state = FAILED. The human-readable explanation goes in Warning
// instead.
func (j *Job) MarkCancelled() error {
	if err := j.Transition(Cancelled); err != nil {
		return err
	}

	j.mu.Lock()
	j.Warning = &Warning{Stage: j.Stage, Message: "cancelled"}
	j.mu.Unlock()
	return nil
}
