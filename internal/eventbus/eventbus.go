// Package eventbus fans job and inventory changes out to every SSE
// subscriber. Each subscriber owns a bounded ring buffer: a subscriber that
// falls behind loses its oldest unread events rather than stalling the
// publisher, and is told to resync from the REST API once that happens.
package eventbus

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// ringCapacity bounds how many events a slow subscriber can lag by before
// the bus starts dropping its oldest unread events.
const ringCapacity = 256

// heartbeatInterval keeps idle SSE connections (and any intermediary
// proxies) from timing them out.
const heartbeatInterval = 15 * time.Second

// logCoalesceWindow batches log lines appended in quick succession for the
// same job into a single event, since dd's status=progress output can
// otherwise produce several lines per second.
const logCoalesceWindow = 100 * time.Millisecond

// Kind identifies the shape of an Event's Data.
type Kind string

const (
	JobUpdate   Kind = "job_update"
	JobLog      Kind = "job_log"
	DriveChange Kind = "drive_change"
	Resync      Kind = "resync"
	Heartbeat   Kind = "heartbeat"
)

// Event is one message delivered to every subscriber.
type Event struct {
	ID   string      `json:"id"`
	Kind Kind        `json:"kind"`
	Data interface{} `json:"data,omitempty"`
}

// JobLogPayload is Event.Data for a Kind == JobLog event.
type JobLogPayload struct {
	JobID string   `json:"job_id"`
	Lines []string `json:"lines"`
}

// Bus is the process-wide event fan-out point. The zero value is not usable;
// construct with New.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber

	logMu      sync.Mutex
	logBuffers map[string]*logBuffer

	done      chan struct{}
	closeOnce sync.Once
}

type logBuffer struct {
	lines []string
	timer *time.Timer
}

// New creates a Bus and starts its heartbeat loop.
func New() *Bus {
	b := &Bus{
		subscribers: make(map[string]*subscriber),
		logBuffers:  make(map[string]*logBuffer),
		done:        make(chan struct{}),
	}
	go b.heartbeatLoop()
	return b
}

// Close stops the heartbeat loop. Existing subscriptions are left open;
// callers should Unsubscribe each one during shutdown.
func (b *Bus) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}

// Subscribe registers a new listener and returns its event channel and an
// unsubscribe function the caller must eventually invoke.
func (b *Bus) Subscribe() (id string, events <-chan Event, unsubscribe func()) {
	sub := newSubscriber()

	b.mu.Lock()
	b.subscribers[sub.id] = sub
	b.mu.Unlock()

	return sub.id, sub.ch, func() { b.unsubscribe(sub.id) }
}

func (b *Bus) unsubscribe(id string) {
	b.mu.Lock()
	sub, ok := b.subscribers[id]
	delete(b.subscribers, id)
	b.mu.Unlock()

	if ok {
		close(sub.ch)
	}
}

func (b *Bus) broadcast(ev Event) {
	b.mu.RLock()
	subs := lo.Values(b.subscribers)
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.send(ev)
	}
}

// PublishJobUpdate announces a job's new snapshot (state, progress, error, ...).
func (b *Bus) PublishJobUpdate(jobSnapshot interface{}) {
	b.broadcast(Event{ID: uuid.NewString(), Kind: JobUpdate, Data: jobSnapshot})
}

// PublishDriveChange announces a change in the physical port/drive topology.
func (b *Bus) PublishDriveChange(ports interface{}) {
	b.broadcast(Event{ID: uuid.NewString(), Kind: DriveChange, Data: ports})
}

// PublishJobLog appends one log line to jobID's pending batch, flushing it
// as a single JobLog event once logCoalesceWindow has elapsed since the
// batch's first line.
func (b *Bus) PublishJobLog(jobID, line string) {
	b.logMu.Lock()
	defer b.logMu.Unlock()

	buf, ok := b.logBuffers[jobID]
	if !ok {
		buf = &logBuffer{}
		b.logBuffers[jobID] = buf
		buf.timer = time.AfterFunc(logCoalesceWindow, func() { b.flushJobLog(jobID) })
	}
	buf.lines = append(buf.lines, line)
}

func (b *Bus) flushJobLog(jobID string) {
	b.logMu.Lock()
	buf, ok := b.logBuffers[jobID]
	if ok {
		delete(b.logBuffers, jobID)
	}
	b.logMu.Unlock()

	if !ok || len(buf.lines) == 0 {
		return
	}
	b.broadcast(Event{
		ID:   uuid.NewString(),
		Kind: JobLog,
		Data: JobLogPayload{JobID: jobID, Lines: buf.lines},
	})
}

func (b *Bus) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.broadcast(Event{ID: uuid.NewString(), Kind: Heartbeat})
		}
	}
}
