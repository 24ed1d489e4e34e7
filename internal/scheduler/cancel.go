package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	appErrors "janus/internal/errors"
	"janus/internal/inventory"
	"janus/internal/job"
)

// CancelJob signals jobID's cancel token. A still-QUEUED job is removed
// from the queue and moved straight to CANCELLED without ever starting a
// runner; a running job's stage notices the token on its own poll.
func (s *Scheduler) CancelJob(jobID string) error {
	s.mu.Lock()
	j, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return appErrors.New(appErrors.Internal, "scheduler.CancelJob", fmt.Errorf("job %s not found", jobID))
	}
	if j.StateSnapshot().IsTerminal() {
		s.mu.Unlock()
		return nil
	}

	wasQueued := j.StateSnapshot() == job.Queued
	if wasQueued {
		s.removeFromQueueLocked(jobID)
	}
	s.mu.Unlock()

	j.Cancel()
	if wasQueued {
		_ = j.MarkCancelled()
		s.bus.PublishJobUpdate(j.Snapshot())
	}
	return nil
}

func (s *Scheduler) removeFromQueueLocked(jobID string) {
	for i, id := range s.queue {
		if id == jobID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

// CancelAll signals every non-terminal job's cancel token and returns
// immediately; it does not wait for jobs to reach a terminal state.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.jobs))
	for id, j := range s.jobs {
		if !j.StateSnapshot().IsTerminal() {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	for _, id := range ids {
		_ = s.CancelJob(id)
	}
}

// RetryJob creates a fresh job from a FAILED or CANCELLED job, sharing its
// cell/image/options, and enqueues it.
func (s *Scheduler) RetryJob(jobID string) (job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.jobs[jobID]
	if !ok {
		return job.Job{}, appErrors.New(appErrors.Internal, "scheduler.RetryJob", fmt.Errorf("job %s not found", jobID))
	}
	state := src.StateSnapshot()
	if state != job.Failed && state != job.Cancelled {
		return job.Job{}, appErrors.NewPreflightRejected("scheduler.RetryJob", "only a FAILED or CANCELLED job can be retried")
	}
	if s.hasNonTerminalJobForCellLocked(src.CellID) {
		return job.Job{}, appErrors.NewDeviceStateChanged("scheduler.RetryJob", fmt.Sprintf("cell %s already has a non-terminal job", src.CellID))
	}

	retry := s.enqueueRetryLocked(src)
	s.admitLocked()
	return retry, nil
}

// RetryFailed creates a fresh job for every terminal-FAILED job. CANCELLED
// jobs are intentionally excluded, per the decided open question.
func (s *Scheduler) RetryFailed() []job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	retried := make([]job.Job, 0)
	for _, id := range s.creationOrderLocked() {
		src := s.jobs[id]
		if src.StateSnapshot() != job.Failed {
			continue
		}
		if s.hasNonTerminalJobForCellLocked(src.CellID) {
			s.logger.Warn("skipping retry: cell already has a non-terminal job",
				slog.String("cell_id", src.CellID))
			continue
		}
		retried = append(retried, s.enqueueRetryLocked(src))
	}
	s.admitLocked()
	return retried
}

// enqueueRetryLocked creates and enqueues a fresh job cloned from src.
// Callers must hold s.mu.
func (s *Scheduler) enqueueRetryLocked(src *job.Job) job.Job {
	retry := job.New(newJobID(), src.BatchID, src.CellID, src.DevicePath, src.ImageName, src.Options)
	retry.SetLogSink(func(line string) { s.bus.PublishJobLog(retry.JobID, line) })
	s.jobs[retry.JobID] = retry
	s.queue = append(s.queue, retry.JobID)
	s.bus.PublishJobUpdate(retry.Snapshot())
	return retry.Snapshot()
}

// EjectCell ejects the device currently bound to cellID, independent of any
// job. It refuses to run against a cell with a non-terminal job, since that
// job owns the device.
func (s *Scheduler) EjectCell(ctx context.Context, cellID, devicePath string) error {
	s.mu.Lock()
	busy := s.hasNonTerminalJobForCellLocked(cellID)
	s.mu.Unlock()

	if busy {
		return appErrors.NewDeviceStateChanged("scheduler.EjectCell",
			fmt.Sprintf("cell %s has an active job", cellID))
	}

	if err := inventory.EjectDevice(ctx, devicePath); err != nil {
		return appErrors.NewWriteIOError("scheduler.EjectCell", err)
	}
	return nil
}
