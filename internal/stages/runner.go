// Package stages implements the five pipeline stages — write, verify,
// expand, resize, eject — each a thin supervisor around one external
// program, sharing a common cancellation and progress-reporting contract.
package stages

import "time"

// Outcome classifies how a stage run ended.
type Outcome int

const (
	Success Outcome = iota
	Failure
	Cancelled
)

// Result is what every stage runner returns.
type Result struct {
	Outcome      Outcome
	Kind         string // set iff Outcome == Failure; a taxonomy kind from internal/errors
	Message      string
	BytesWritten int64 // set iff Outcome == Success for the write stage; 0 otherwise
}

// gracePeriod is how long a stage waits after sending a graceful
// termination signal before forcing the child to die, per the ≤2s bound in
// the cancellation design.
const gracePeriod = 2 * time.Second

// cancelled builds a Cancelled result.
func cancelled() Result {
	return Result{Outcome: Cancelled}
}

// failure builds a Failure result with a taxonomy kind.
func failure(kind, message string) Result {
	return Result{Outcome: Failure, Kind: kind, Message: message}
}

// success builds a Success result.
func success() Result {
	return Result{Outcome: Success}
}

// successWithBytes builds a Success result carrying the byte count the write
// stage actually copied, for callers tallying total bytes written.
func successWithBytes(n int64) Result {
	return Result{Outcome: Success, BytesWritten: n}
}
