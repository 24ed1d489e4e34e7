package stages

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"janus/internal/job"
)

// resizableFilesystems is the set of filesystem types resize2fs understands.
var resizableFilesystems = map[string]bool{"ext2": true, "ext3": true, "ext4": true}

// Resize grows the last partition's filesystem to fill its (already
// expanded) partition. Like Expand, this is best-effort: an unsupported
// filesystem, a missing resize2fs binary, or an e2fsck failure downgrades to
// a warning rather than failing the job.
func Resize(ctx context.Context, j *job.Job, devicePath string, timeout time.Duration) Result {
	runCtx, cancelFn := context.WithTimeout(ctx, timeout)
	defer cancelFn()

	part, ok, err := lastPartition(runCtx, devicePath, "NAME,FSTYPE,TYPE")
	if err != nil {
		j.SetWarning("resize", fmt.Sprintf("could not inspect partitions: %v", err))
		return success()
	}
	if !ok {
		j.SetWarning("resize", "device has no partitions to resize")
		return success()
	}
	if !resizableFilesystems[part.FSType] {
		j.SetWarning("resize", fmt.Sprintf("filesystem %q is not resizable by this tool", part.FSType))
		return success()
	}

	partDevice := "/dev/" + part.Name

	fsckCmd := exec.CommandContext(runCtx, "e2fsck", "-f", "-y", partDevice)
	fsckOut, fsckErr := fsckCmd.CombinedOutput()
	j.AppendLog(fmt.Sprintf("e2fsck: %s", string(fsckOut)))

	if cancelRequested(j) {
		return cancelled()
	}

	if fsckErr != nil {
		var exitErr *exec.ExitError
		// e2fsck exit codes are a bitmask; 0 = clean, 1 = errors corrected.
		// Anything higher means errors remain, so resizing would be unsafe.
		if errors.As(fsckErr, &exitErr) && exitErr.ExitCode() > 1 {
			j.SetWarning("resize", fmt.Sprintf("e2fsck left uncorrected errors on %s", partDevice))
			return success()
		}
		var execErr *exec.Error
		if errors.As(fsckErr, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound) {
			j.SetWarning("resize", "e2fsck is not installed")
			return success()
		}
	}

	resizeCmd := exec.CommandContext(runCtx, "resize2fs", partDevice)
	resizeOut, resizeErr := resizeCmd.CombinedOutput()
	j.AppendLog(fmt.Sprintf("resize2fs: %s", string(resizeOut)))

	if cancelRequested(j) {
		return cancelled()
	}

	if resizeErr != nil {
		var execErr *exec.Error
		if errors.As(resizeErr, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound) {
			j.SetWarning("resize", "resize2fs is not installed")
			return success()
		}
		j.SetWarning("resize", fmt.Sprintf("resize2fs failed: %v", resizeErr))
		return success()
	}

	return success()
}

func cancelRequested(j *job.Job) bool {
	select {
	case <-j.CancelToken():
		return true
	default:
		return false
	}
}
