//go:build !windows

package stages

import (
	"os"
	"syscall"
)

// cmdInterruptSignal is sent to a child process to request graceful
// shutdown before the grace period escalates to SIGKILL.
var cmdInterruptSignal os.Signal = syscall.SIGTERM
