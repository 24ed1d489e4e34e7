package stages

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	appErrors "janus/internal/errors"
	"janus/internal/images"
	"janus/internal/job"
)

// speedEMAAlpha smooths the instantaneous byte rate reported between two dd
// progress lines, so a single slow or fast sample doesn't whipsaw the
// reported speed and ETA.
const speedEMAAlpha = 0.3

// Write streams img's uncompressed bytes into devicePath via dd, reporting
// progress as dd's own status=progress output arrives on stderr.
func Write(ctx context.Context, j *job.Job, img images.Image, devicePath string, timeout time.Duration) Result {
	runCtx, cancelFn := context.WithTimeout(ctx, timeout)
	defer cancelFn()

	stream, length, err := images.Open(img)
	if err != nil {
		return failureFromAppError(err)
	}
	defer stream.Close()

	cmd := exec.CommandContext(runCtx, "dd",
		"of="+devicePath,
		"bs=4M",
		"conv=fsync",
		"status=progress",
	)
	cmd.Stdin = stream

	var (
		lastBytes int64
		lastTime  = time.Now()
		emaSpeed  float64
	)
	total := int64(0)
	if length != nil {
		total = *length
	}

	onLine := func(line string) {
		j.AppendLog(line)
		copied, ok := parseBytesCopied(line)
		if !ok {
			return
		}
		now := time.Now()
		elapsed := now.Sub(lastTime).Seconds()
		if elapsed > 0 {
			instSpeed := float64(copied-lastBytes) / elapsed
			if instSpeed < 0 {
				instSpeed = 0
			}
			if emaSpeed == 0 {
				emaSpeed = instSpeed
			} else {
				emaSpeed = speedEMAAlpha*instSpeed + (1-speedEMAAlpha)*emaSpeed
			}
		}
		lastBytes = copied
		lastTime = now

		var progress, eta float64
		if total > 0 {
			progress = float64(copied) / float64(total)
			if emaSpeed > 0 {
				eta = float64(total-copied) / emaSpeed
			}
		}
		j.SetProgress(progress, emaSpeed, eta)
	}

	result := runSupervised(runCtx, j.CancelToken(), cmd, onLine)

	if result.timedOut {
		return failure(appErrors.StageTimeout.String(), fmt.Sprintf("write stage exceeded its %s timeout", timeout))
	}
	if result.cancelled {
		return cancelled()
	}
	if result.err != nil {
		if exitErr, ok := result.err.(*exec.ExitError); ok {
			return failure(appErrors.WriteIOError.String(),
				fmt.Sprintf("dd exited with code %d", exitErr.ExitCode()))
		}
		return failure(appErrors.WriteIOError.String(), result.err.Error())
	}

	j.SetProgress(1.0, 0, 0)
	bytesWritten := lastBytes
	if bytesWritten == 0 {
		// dd's status=progress line may never have fired for a file small
		// enough to copy in under its reporting interval.
		bytesWritten = total
	}
	return successWithBytes(bytesWritten)
}

// failureFromAppError converts an *errors.AppError raised while opening the
// image into a stage Result carrying the same taxonomy kind.
func failureFromAppError(err error) Result {
	var appErr *appErrors.AppError
	if appErrors.IsAppError(err, &appErr) {
		return failure(appErr.Type.String(), appErr.Message)
	}
	return failure(appErrors.Internal.String(), err.Error())
}
