// Package drivewatch periodically re-polls the USB port topology and
// publishes a drive_change event whenever the inventory differs from the
// last poll, so a dashboard doesn't have to poll the REST API on its own.
package drivewatch

import (
	"context"
	"log/slog"
	"reflect"
	"sync"

	"github.com/robfig/cron/v3"

	"janus/internal/eventbus"
	"janus/internal/inventory"
)

// defaultSchedule polls every five seconds — frequent enough that a freshly
// inserted drive shows up promptly, infrequent enough not to hammer lsblk.
const defaultSchedule = "@every 5s"

// Watcher owns the cron-driven poll loop and the last snapshot it published,
// so it only emits an event when the topology actually changed.
type Watcher struct {
	logger *slog.Logger
	bus    *eventbus.Bus
	poll   func(ctx context.Context) ([]inventory.PhysicalPort, error)

	cron *cron.Cron

	mu   sync.Mutex
	last []inventory.PhysicalPort
}

// New builds a Watcher backed by the real inventory package. Call Start to
// begin polling and Stop to tear it down.
func New(bus *eventbus.Bus, logger *slog.Logger) *Watcher {
	return &Watcher{
		logger: logger,
		bus:    bus,
		poll:   inventory.ListPhysicalPorts,
		cron:   cron.New(),
	}
}

// Start schedules the poll loop and runs one poll immediately so the first
// subscriber doesn't wait out a full interval for an initial snapshot.
func (w *Watcher) Start(ctx context.Context) error {
	if _, err := w.cron.AddFunc(defaultSchedule, func() { w.pollOnce(ctx) }); err != nil {
		return err
	}
	w.cron.Start()
	go w.pollOnce(ctx)
	return nil
}

// Stop cancels the cron scheduler and waits for any in-flight poll to
// finish.
func (w *Watcher) Stop() {
	<-w.cron.Stop().Done()
}

func (w *Watcher) pollOnce(ctx context.Context) {
	ports, err := w.poll(ctx)
	if err != nil {
		w.logger.Warn("drivewatch: poll failed", slog.String("error", err.Error()))
		return
	}

	w.mu.Lock()
	changed := !reflect.DeepEqual(ports, w.last)
	w.last = ports
	w.mu.Unlock()

	if changed {
		w.bus.PublishDriveChange(ports)
	}
}
