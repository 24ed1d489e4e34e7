package scheduler

import (
	"fmt"
	"time"

	"janus/config"
	appErrors "janus/internal/errors"
	"janus/internal/job"
	"janus/internal/metrics"
	"janus/internal/stages"
)

// runJob drives one admitted job sequentially through write, and whichever
// of verify/expand/resize/eject its options request, publishing a
// job_update after every transition. It always returns; the scheduler
// learns of completion via onJobFinished.
func (s *Scheduler) runJob(j *job.Job) {
	defer s.onJobFinished(j.JobID)

	if j.IsCancelRequested() {
		_ = j.MarkCancelled()
		s.bus.PublishJobUpdate(j.Snapshot())
		metrics.JobsTotal.WithLabelValues("cancelled").Inc()
		return
	}

	img, err := s.resolveImage(j.ImageName)
	if err != nil {
		s.failJob(j, err)
		metrics.JobsTotal.WithLabelValues("failed").Inc()
		return
	}

	if err := j.Transition(job.Writing); err != nil {
		s.logError("scheduler.runJob", err)
		return
	}
	s.bus.PublishJobUpdate(j.Snapshot())

	if !s.checkSafetyBoundary(j) {
		metrics.JobsTotal.WithLabelValues("failed").Inc()
		return
	}

	writeTimeout := config.ScaledTimeout(s.cfg.Stages.Write, img.SizeBytes)
	start := time.Now()
	result := stages.Write(s.rootCtx, j, img, j.DevicePath, writeTimeout)
	s.recordStageDuration("write", start, result)
	s.bus.PublishJobUpdate(j.Snapshot())
	if result.Outcome == stages.Success {
		metrics.BytesWritten.Add(float64(result.BytesWritten))
	}
	if !s.handleResult(j, result) {
		metrics.JobsTotal.WithLabelValues(terminalOutcomeLabel(result)).Inc()
		return
	}

	if j.Options.Verify {
		if !s.runVerify(j) {
			return
		}
	}
	if j.Options.ExpandPartition {
		if !s.runExpand(j) {
			return
		}
	}
	if j.Options.ResizeFilesystem {
		if !s.runResize(j) {
			return
		}
	}
	if j.Options.EjectAfterDone {
		s.runEject(j)
	}

	_ = j.Transition(job.Done)
	s.bus.PublishJobUpdate(j.Snapshot())
	metrics.JobsTotal.WithLabelValues("done").Inc()
}

// terminalOutcomeLabel maps a non-success stage Result to the JobsTotal
// outcome label the job will carry once handleResult applies it.
func terminalOutcomeLabel(result stages.Result) string {
	if result.Outcome == stages.Cancelled {
		return "cancelled"
	}
	return "failed"
}

// recordStageDuration observes one stage's wall-clock duration, labelled by
// its outcome, for the janus_stage_duration_seconds histogram.
func (s *Scheduler) recordStageDuration(stage string, start time.Time, result stages.Result) {
	outcome := "success"
	switch result.Outcome {
	case stages.Cancelled:
		outcome = "cancelled"
	case stages.Failure:
		outcome = "failure"
	}
	metrics.StageDuration.WithLabelValues(stage, outcome).Observe(time.Since(start).Seconds())
}

func (s *Scheduler) runVerify(j *job.Job) bool {
	if err := j.Transition(job.Verifying); err != nil {
		s.logError("scheduler.runVerify", err)
		return false
	}
	s.bus.PublishJobUpdate(j.Snapshot())
	if !s.checkSafetyBoundary(j) {
		metrics.JobsTotal.WithLabelValues("failed").Inc()
		return false
	}

	img, err := s.resolveImage(j.ImageName)
	if err != nil {
		s.failJob(j, err)
		metrics.JobsTotal.WithLabelValues("failed").Inc()
		return false
	}
	timeout := config.ScaledTimeout(s.cfg.Stages.Verify, img.SizeBytes)
	start := time.Now()
	result := stages.Verify(s.rootCtx, j, s.digestCache, img, j.DevicePath, timeout)
	s.recordStageDuration("verify", start, result)
	s.bus.PublishJobUpdate(j.Snapshot())
	if ok := s.handleResult(j, result); !ok {
		metrics.JobsTotal.WithLabelValues(terminalOutcomeLabel(result)).Inc()
		return false
	}
	return true
}

func (s *Scheduler) runExpand(j *job.Job) bool {
	if err := j.Transition(job.Expanding); err != nil {
		s.logError("scheduler.runExpand", err)
		return false
	}
	s.bus.PublishJobUpdate(j.Snapshot())
	if !s.checkSafetyBoundary(j) {
		metrics.JobsTotal.WithLabelValues("failed").Inc()
		return false
	}

	start := time.Now()
	result := stages.Expand(s.rootCtx, j, j.DevicePath, s.cfg.Stages.Expand)
	s.recordStageDuration("expand", start, result)
	s.bus.PublishJobUpdate(j.Snapshot())
	if ok := s.handleResult(j, result); !ok {
		metrics.JobsTotal.WithLabelValues(terminalOutcomeLabel(result)).Inc()
		return false
	}
	return true
}

func (s *Scheduler) runResize(j *job.Job) bool {
	if err := j.Transition(job.Resizing); err != nil {
		s.logError("scheduler.runResize", err)
		return false
	}
	s.bus.PublishJobUpdate(j.Snapshot())
	if !s.checkSafetyBoundary(j) {
		metrics.JobsTotal.WithLabelValues("failed").Inc()
		return false
	}

	start := time.Now()
	result := stages.Resize(s.rootCtx, j, j.DevicePath, s.cfg.Stages.Resize)
	s.recordStageDuration("resize", start, result)
	s.bus.PublishJobUpdate(j.Snapshot())
	if ok := s.handleResult(j, result); !ok {
		metrics.JobsTotal.WithLabelValues(terminalOutcomeLabel(result)).Inc()
		return false
	}
	return true
}

func (s *Scheduler) runEject(j *job.Job) {
	j.SetStage("ejecting")
	s.bus.PublishJobUpdate(j.Snapshot())
	start := time.Now()
	result := stages.Eject(s.rootCtx, j, j.DevicePath, s.cfg.Stages.Eject)
	s.recordStageDuration("eject", start, result)
	s.bus.PublishJobUpdate(j.Snapshot())
}

// checkSafetyBoundary re-verifies the device is still writable at a stage
// boundary, failing the job with DeviceStateChanged if not.
func (s *Scheduler) checkSafetyBoundary(j *job.Job) bool {
	ok, reason := s.gate.VerifyWritable(s.rootCtx, j.DevicePath, false)
	if ok {
		return true
	}
	_ = j.Fail(appErrors.DeviceStateChanged.String(), fmt.Sprintf("device state changed: %s", reason))
	s.bus.PublishJobUpdate(j.Snapshot())
	return false
}

// handleResult applies a stage Result to j, returning true iff the pipeline
// should continue to the next stage.
func (s *Scheduler) handleResult(j *job.Job, result stages.Result) bool {
	switch result.Outcome {
	case stages.Success:
		return true
	case stages.Cancelled:
		_ = j.MarkCancelled()
		s.bus.PublishJobUpdate(j.Snapshot())
		return false
	default:
		_ = j.Fail(result.Kind, result.Message)
		s.bus.PublishJobUpdate(j.Snapshot())
		return false
	}
}

func (s *Scheduler) failJob(j *job.Job, err error) {
	var appErr *appErrors.AppError
	if appErrors.IsAppError(err, &appErr) {
		_ = j.Fail(appErr.Type.String(), appErr.Message)
	} else {
		_ = j.Fail(appErrors.Internal.String(), err.Error())
	}
	s.logError("scheduler.runJob", err)
	s.bus.PublishJobUpdate(j.Snapshot())
}
