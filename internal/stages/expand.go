package stages

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"janus/internal/job"
)

// Expand grows the device's last partition to fill any trailing free space.
// growpart reporting NOCHANGE (exit 1) counts as success, since the
// partition was already at its maximum size. A missing growpart binary is
// logged as a warning rather than failing the job — expansion is an
// optional convenience, not part of the write/verify contract.
func Expand(ctx context.Context, j *job.Job, devicePath string, timeout time.Duration) Result {
	runCtx, cancelFn := context.WithTimeout(ctx, timeout)
	defer cancelFn()

	part, ok, err := lastPartition(runCtx, devicePath, "NAME,TYPE")
	if err != nil {
		j.SetWarning("expand", fmt.Sprintf("could not inspect partitions: %v", err))
		return success()
	}
	if !ok {
		j.SetWarning("expand", "device has no partitions to expand")
		return success()
	}
	partNum, ok := partitionNumber(part.Name)
	if !ok {
		j.SetWarning("expand", fmt.Sprintf("could not derive partition number from %q", part.Name))
		return success()
	}

	cmd := exec.CommandContext(runCtx, "growpart", devicePath, strconv.Itoa(partNum))
	out, err := cmd.CombinedOutput()
	j.AppendLog(fmt.Sprintf("growpart: %s", string(out)))

	if err == nil {
		return success()
	}

	select {
	case <-j.CancelToken():
		return cancelled()
	default:
	}

	var execErr *exec.Error
	if errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound) {
		j.SetWarning("expand", "growpart is not installed")
		return success()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		// NOCHANGE: partition already fills the device.
		return success()
	}

	j.SetWarning("expand", fmt.Sprintf("growpart failed: %v", err))
	return success()
}
