package notifylist

import (
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/maxpert/notifylist/notify"
	"github.com/maxpert/notifylist/telemetry"
	"github.com/rs/zerolog/log"
)

// Queue receives dispatch records. Push appends record to the tail of destination.
type Queue interface {
	Push(destination string, record []byte) error
}

// Mirror is told about every record that was pushed successfully.
type Mirror interface {
	Mirror(destination, key, op string, record []byte) error
}

// Event is one key mutation reported by the keyspace.
type Event struct {
	Op  string
	Key string
}

// IsWatchedOp reports whether op is one of the operations relayed to destinations.
func IsWatchedOp(op string) bool {
	switch op {
	case notify.OpSet, notify.OpExpire, notify.OpExpired:
		return true
	}
	return false
}

// DispatchStats is a snapshot of dispatcher counters.
type DispatchStats struct {
	Events  uint64 // Events received
	Empty   uint64 // Dropped because nothing was registered
	Ignored uint64 // Dropped because the op is not relayed
	Scans   uint64 // Registry scans performed
	Pushed  uint64 // Records pushed
	Failed  uint64 // Records that failed to push
}

// Dispatcher turns mutation events into dispatch records.
type Dispatcher struct {
	registry *Registry
	queue    Queue
	mirror   Mirror

	events  atomic.Uint64
	empty   atomic.Uint64
	ignored atomic.Uint64
	scans   atomic.Uint64
	pushed  atomic.Uint64
	failed  atomic.Uint64
}

// NewDispatcher creates a dispatcher. mirror may be nil.
func NewDispatcher(registry *Registry, queue Queue, mirror Mirror) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		queue:    queue,
		mirror:   mirror,
	}
}

// Handle pushes one record per matching registry entry. Every match is attempted;
// push failures are combined into the returned error.
func (d *Dispatcher) Handle(ev Event) error {
	d.events.Add(1)

	if d.registry.Size() == 0 {
		d.empty.Add(1)
		telemetry.EventsTotal.With(ev.Op, "empty").Inc()
		return nil
	}

	if !IsWatchedOp(ev.Op) {
		d.ignored.Add(1)
		telemetry.EventsTotal.With(ev.Op, "ignored").Inc()
		return nil
	}

	start := time.Now()
	defer func() {
		telemetry.DispatchDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	d.scans.Add(1)
	telemetry.EventsTotal.With(ev.Op, "handled").Inc()

	// Pushes happen outside the registry lock: the queue may be the same
	// engine that delivered this event.
	var errs error
	for _, t := range d.registry.targets(ev.Key) {
		if err := d.push(t, ev); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}

	return errs
}

// HandleNotification adapts Handle to notify.Handler. Failures are already logged per push.
func (d *Dispatcher) HandleNotification(op, key string) {
	_ = d.Handle(Event{Op: op, Key: key})
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Events:  d.events.Load(),
		Empty:   d.empty.Load(),
		Ignored: d.ignored.Load(),
		Scans:   d.scans.Load(),
		Pushed:  d.pushed.Load(),
		Failed:  d.failed.Load(),
	}
}

func (d *Dispatcher) push(t target, ev Event) error {
	record := Format(ev.Key, ev.Op)

	if err := d.queue.Push(t.destination, record); err != nil {
		d.failed.Add(1)
		telemetry.PushFailuresTotal.Inc()
		log.Warn().
			Err(err).
			Str("key", ev.Key).
			Str("op", ev.Op).
			Str("pattern", t.pattern).
			Str("destination", t.destination).
			Msg("Failed to push dispatch record")
		return errors.Mark(errors.Wrapf(err, "push %s record for %q to %q", ev.Op, ev.Key, t.destination), ErrPushFailed)
	}

	d.pushed.Add(1)
	telemetry.RecordsPushedTotal.With(t.path).Inc()

	if d.mirror != nil {
		if err := d.mirror.Mirror(t.destination, ev.Key, ev.Op, record); err != nil {
			log.Warn().
				Err(err).
				Str("destination", t.destination).
				Msg("Failed to mirror dispatch record")
		}
	}

	return nil
}
