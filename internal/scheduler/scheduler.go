// Package scheduler owns the job table: admission under a global
// concurrency cap, cancellation, and retry, driving each admitted job
// through its stages on its own goroutine.
package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"janus/config"
	"janus/internal/digestcache"
	appErrors "janus/internal/errors"
	"janus/internal/eventbus"
	"janus/internal/images"
	"janus/internal/job"
	"janus/internal/safety"
)

// safetyGate is the subset of *safety.Gate the scheduler depends on,
// narrowed to an interface so a test can supply a fake without touching the
// real inventory package.
type safetyGate interface {
	VerifyWritable(ctx context.Context, devicePath string, allowNonRemovable bool) (bool, safety.Reason)
}

// Scheduler is the single process-wide instance created at startup, per the
// "no implicit re-initialisation" design constraint; all job lifecycle
// operations go through it.
type Scheduler struct {
	cfg         *config.Config
	bus         *eventbus.Bus
	gate        safetyGate
	logger      *slog.Logger
	digestCache *digestcache.Cache

	imagesDir string

	mu          sync.Mutex
	jobs        map[string]*job.Job
	queue       []string // job IDs, FIFO
	running     map[string]*job.Job
	concurrency int

	rootCtx    context.Context
	cancelRoot context.CancelFunc
}

// New builds a Scheduler. rootCtx bounds every stage subprocess the
// scheduler spawns; cancelling it (at shutdown) tears down every runner.
func New(cfg *config.Config, bus *eventbus.Bus, gate safetyGate, cache *digestcache.Cache, logger *slog.Logger) *Scheduler {
	rootCtx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:         cfg,
		bus:         bus,
		gate:        gate,
		digestCache: cache,
		logger:      logger,
		imagesDir:   cfg.Images.Dir,
		jobs:        make(map[string]*job.Job),
		running:     make(map[string]*job.Job),
		concurrency: cfg.Scheduler.DefaultConcurrency,
		rootCtx:     rootCtx,
		cancelRoot:  cancel,
	}
}

// Shutdown cancels every in-flight stage's subprocess supervision. Job
// cancel tokens are not touched: an interrupted stage sees its context end
// and reports a timeout or a killed child, so its job ends FAILED rather
// than CANCELLED.
func (s *Scheduler) Shutdown() {
	s.cancelRoot()
}

// Job returns a snapshot of one job, or false if jobID is unknown.
func (s *Scheduler) Job(jobID string) (job.Job, bool) {
	s.mu.Lock()
	j, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok {
		return job.Job{}, false
	}
	return j.Snapshot(), true
}

// Jobs returns a snapshot of every known job, most recently created last.
func (s *Scheduler) Jobs() []job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]job.Job, 0, len(s.jobs))
	for _, id := range s.creationOrderLocked() {
		out = append(out, s.jobs[id].Snapshot())
	}
	return out
}

// creationOrderLocked returns job IDs ordered by StartedAt. Callers must
// hold s.mu.
func (s *Scheduler) creationOrderLocked() []string {
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for k := i; k > 0 && s.jobs[ids[k-1]].StartedAt.After(s.jobs[ids[k]].StartedAt); k-- {
			ids[k-1], ids[k] = ids[k], ids[k-1]
		}
	}
	return ids
}

// newJobID generates an opaque, stable job identifier.
func newJobID() string { return uuid.NewString() }

// hasNonTerminalJobForCellLocked reports whether cellID already has a
// non-terminal job, enforcing invariant (iii): at most one in-flight job
// per cell. Callers must hold s.mu.
func (s *Scheduler) hasNonTerminalJobForCellLocked(cellID string) bool {
	for _, j := range s.jobs {
		if j.CellID != cellID {
			continue
		}
		if !j.StateSnapshot().IsTerminal() {
			return true
		}
	}
	return false
}

// resolveImage looks up imageName under the configured images directory.
func (s *Scheduler) resolveImage(imageName string) (images.Image, error) {
	return images.Resolve(s.imagesDir, imageName)
}

func (s *Scheduler) logError(op string, err error) {
	var appErr *appErrors.AppError
	if appErrors.IsAppError(err, &appErr) {
		appErrors.LogError(s.logger, appErr)
		return
	}
	s.logger.Error(op, slog.String("error", err.Error()))
}
