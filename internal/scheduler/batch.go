package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	appErrors "janus/internal/errors"
	"janus/internal/job"
	"janus/internal/metrics"
)

// CellTarget names one cell in a batch request, already resolved to a
// device path by the caller (the HTTP handler, via the layout and
// inventory collaborators) — the scheduler itself never resolves cells.
type CellTarget struct {
	CellID     string
	DevicePath string
}

// StartBatch creates one Job per target, immediately failing any whose
// device isn't currently writable (PreflightRejected) and skipping any
// whose cell already has a non-terminal job, then attempts admission.
// Concurrency, if positive, becomes the new global cap per §4.5.
func (s *Scheduler) StartBatch(ctx context.Context, imageName string, targets []CellTarget, concurrency int, opts job.Options) ([]job.Job, error) {
	img, err := s.resolveImage(imageName)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if concurrency > 0 {
		s.concurrency = concurrency
	}

	batchID := newJobID()
	created := make([]job.Job, 0, len(targets))
	for _, target := range targets {
		if s.hasNonTerminalJobForCellLocked(target.CellID) {
			s.logger.Warn("skipping batch target: cell already has a non-terminal job",
				slog.String("cell_id", target.CellID))
			continue
		}

		j := job.New(newJobID(), batchID, target.CellID, target.DevicePath, img.Name, opts)
		j.SetLogSink(func(line string) { s.bus.PublishJobLog(j.JobID, line) })
		s.jobs[j.JobID] = j

		if ok, reason := s.gate.VerifyWritable(ctx, target.DevicePath, false); !ok {
			_ = j.Fail(appErrors.PreflightRejected.String(), fmt.Sprintf("preflight rejected: %s", reason))
			s.bus.PublishJobUpdate(j.Snapshot())
			metrics.PreflightRejections.Inc()
			created = append(created, j.Snapshot())
			continue
		}

		s.queue = append(s.queue, j.JobID)
		s.bus.PublishJobUpdate(j.Snapshot())
		created = append(created, j.Snapshot())
	}

	s.admitLocked()
	return created, nil
}
