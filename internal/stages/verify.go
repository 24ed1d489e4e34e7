package stages

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"janus/internal/digestcache"
	appErrors "janus/internal/errors"
	"janus/internal/images"
	"janus/internal/job"
)

// verifyChunkSize matches the write stage's dd block size, so a mismatch is
// discovered at roughly the same granularity data was written.
const verifyChunkSize = 4 << 20

// stageError adapts a Result into the error interface so hashImage/hashDevice
// can return it through a single error-typed return value.
type stageError struct{ Result Result }

func (s stageError) Error() string { return s.Result.Message }

// checkAborted reports, as a Result, whether the caller should stop:
// cancellation takes priority over a bare context expiry, since the two are
// otherwise indistinguishable once runCtx's deadline is also its parent's.
func checkAborted(ctx context.Context, j *job.Job) (Result, bool) {
	if j.IsCancelRequested() {
		return cancelled(), true
	}
	if ctx.Err() != nil {
		return failure(appErrors.StageTimeout.String(), "verify stage exceeded its timeout"), true
	}
	return Result{}, false
}

// Verify re-derives the image's digest (consulting cache) and compares it
// against a digest of the first len(image) bytes read back from the device.
// Progress runs 0.0-0.5 across the image-side hash and 0.5-1.0 across the
// device-side read, mirroring the two-pass verify used before this rewrite.
func Verify(ctx context.Context, j *job.Job, cache *digestcache.Cache, img images.Image, devicePath string, timeout time.Duration) Result {
	runCtx, cancelFn := context.WithTimeout(ctx, timeout)
	defer cancelFn()

	expected, imgSize, err := hashImage(runCtx, j, cache, img)
	if err != nil {
		return err.(stageError).Result
	}

	if result, stop := checkAborted(runCtx, j); stop {
		return result
	}

	actual, verr := hashDevice(runCtx, j, devicePath, imgSize)
	if verr != nil {
		return verr.(stageError).Result
	}

	if expected != actual {
		j.AppendLog(fmt.Sprintf("verify mismatch: expected %s got %s", expected, actual))
		return failure(appErrors.VerifyMismatch.String(), fmt.Sprintf("digest mismatch after reading %d bytes", imgSize))
	}

	j.SetProgress(1.0, 0, 0)
	return success()
}

func hashImage(ctx context.Context, j *job.Job, cache *digestcache.Cache, img images.Image) (string, int64, error) {
	if cache != nil {
		if digest, ok := cache.Lookup(ctx, img.Path, img.SizeBytes, img.ModTime); ok {
			j.SetProgress(0.5, 0, 0)
			size, err := uncompressedSize(img)
			if err != nil {
				return "", 0, stageError{failureFromAppError(err)}
			}
			return digest, size, nil
		}
	}

	stream, length, err := images.Open(img)
	if err != nil {
		return "", 0, stageError{failureFromAppError(err)}
	}
	defer stream.Close()

	h := sha256.New()
	var read int64
	buf := make([]byte, verifyChunkSize)
	for {
		if result, stop := checkAborted(ctx, j); stop {
			return "", 0, stageError{result}
		}

		n, rerr := stream.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			read += int64(n)
			if length != nil && *length > 0 {
				j.SetProgress(0.5*float64(read)/float64(*length), 0, 0)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return "", 0, stageError{failure(appErrors.VerifyIOError.String(), rerr.Error())}
		}
	}

	digest := hex.EncodeToString(h.Sum(nil))
	if cache != nil {
		_ = cache.Put(ctx, img.Path, img.SizeBytes, img.ModTime, digest)
	}
	return digest, read, nil
}

// uncompressedSize returns an image's decompressed length, reading the
// stream fully when it isn't cheaply known (only reached on a cache hit for
// a compressed image, since the size is needed to bound the device read).
func uncompressedSize(img images.Image) (int64, error) {
	stream, length, err := images.Open(img)
	if err != nil {
		return 0, err
	}
	defer stream.Close()
	if length != nil {
		return *length, nil
	}
	n, err := io.Copy(io.Discard, stream)
	if err != nil {
		return 0, appErrors.NewImageReadError("stages.uncompressedSize", err)
	}
	return n, nil
}

func hashDevice(ctx context.Context, j *job.Job, devicePath string, limit int64) (string, error) {
	f, err := os.Open(devicePath)
	if err != nil {
		return "", stageError{failure(appErrors.VerifyIOError.String(), err.Error())}
	}
	defer f.Close()

	h := sha256.New()
	var read int64
	buf := make([]byte, verifyChunkSize)
	for read < limit {
		if result, stop := checkAborted(ctx, j); stop {
			return "", stageError{result}
		}

		want := int64(len(buf))
		if remaining := limit - read; remaining < want {
			want = remaining
		}
		n, rerr := f.Read(buf[:want])
		if n > 0 {
			h.Write(buf[:n])
			read += int64(n)
			j.SetProgress(0.5+0.5*float64(read)/float64(limit), 0, 0)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return "", stageError{failure(appErrors.VerifyIOError.String(), rerr.Error())}
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
