package scheduler

import "janus/internal/metrics"

// admitLocked pops jobs off the front of the queue up to the concurrency
// cap, skipping (not removing) any whose device_path collides with a
// currently running job. Callers must hold s.mu. Each admitted job is
// started on its own goroutine.
func (s *Scheduler) admitLocked() {
	for len(s.running) < s.concurrency {
		idx := s.nextAdmissibleLocked()
		if idx < 0 {
			return
		}

		jobID := s.queue[idx]
		s.queue = append(s.queue[:idx], s.queue[idx+1:]...)

		j, ok := s.jobs[jobID]
		if !ok {
			continue
		}
		s.running[jobID] = j
		metrics.JobsRunning.Inc()
		go s.runJob(j)
	}
}

// nextAdmissibleLocked returns the queue index of the first job whose
// device_path doesn't collide with a running job, or -1 if none qualifies.
func (s *Scheduler) nextAdmissibleLocked() int {
	for i, jobID := range s.queue {
		j, ok := s.jobs[jobID]
		if !ok {
			continue
		}
		if !s.devicePathBusyLocked(j.DevicePath) {
			return i
		}
	}
	return -1
}

func (s *Scheduler) devicePathBusyLocked(devicePath string) bool {
	for _, running := range s.running {
		if running.DevicePath == devicePath {
			return true
		}
	}
	return false
}

// onJobFinished removes jobID from the running set and attempts to admit
// the next eligible queued job.
func (s *Scheduler) onJobFinished(jobID string) {
	s.mu.Lock()
	delete(s.running, jobID)
	metrics.JobsRunning.Dec()
	s.admitLocked()
	s.mu.Unlock()
}

// SetConcurrency updates the effective admission cap. Per the decided open
// question, this never preempts already-running jobs; a lower cap only
// slows future admission and a higher cap speeds it up on the next
// admission cycle.
func (s *Scheduler) SetConcurrency(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.concurrency = n
	s.admitLocked()
	s.mu.Unlock()
}
