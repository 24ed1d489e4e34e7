package stages

import (
	"context"
	"fmt"
	"time"

	"janus/internal/inventory"
	"janus/internal/job"
)

// Eject powers off devicePath after a successful pipeline, or downgrades to
// an unmount-only best effort with a warning when the full power-off fails
// (a locked USB controller, a stale udisksctl session, ...). This never
// fails the job: the flash itself already succeeded by the time eject runs.
func Eject(ctx context.Context, j *job.Job, devicePath string, timeout time.Duration) Result {
	runCtx, cancelFn := context.WithTimeout(ctx, timeout)
	defer cancelFn()

	if err := inventory.EjectDevice(runCtx, devicePath); err == nil {
		return success()
	} else if !cancelRequested(j) {
		j.AppendLog(fmt.Sprintf("eject: %v, falling back to unmount", err))
	}

	if cancelRequested(j) {
		return cancelled()
	}

	if err := inventory.UnmountDevice(runCtx, devicePath); err != nil {
		j.SetWarning("eject", fmt.Sprintf("could not eject or unmount %s: %v", devicePath, err))
		return success()
	}

	j.SetWarning("eject", fmt.Sprintf("%s was unmounted but could not be powered off", devicePath))
	return success()
}
