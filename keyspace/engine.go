package keyspace

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maxpert/notifylist/notify"
	"github.com/maxpert/notifylist/telemetry"
	"github.com/rs/zerolog/log"
)

// DefaultSweepInterval is how often the sweeper looks for expired keys
const DefaultSweepInterval = 100 * time.Millisecond

// Options configures an Engine
type Options struct {
	SweepInterval time.Duration    // 0 uses DefaultSweepInterval
	Now           func() time.Time // Clock, defaults to time.Now
}

// event is a notification collected under the engine lock and emitted after it is released
type event struct {
	class notify.Class
	op    string
	key   string
}

// Engine is the embedded keyspace. Writes are serialized by one mutex; notifications
// are emitted after that mutex is released, so handlers may call back into the engine.
type Engine struct {
	mu      sync.Mutex
	backend Backend
	hub     *notify.Hub
	now     func() time.Time

	sweepInterval time.Duration
	stopCh        chan struct{}
	wg            sync.WaitGroup
	started       atomic.Bool
	closed        atomic.Bool
}

var _ Store = (*Engine)(nil)

// NewEngine creates an engine over backend. Call Start to run the expiry sweeper.
func NewEngine(backend Backend, opts Options) *Engine {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Engine{
		backend:       backend,
		hub:           notify.NewHub(),
		now:           opts.Now,
		sweepInterval: opts.SweepInterval,
		stopCh:        make(chan struct{}),
	}
}

// Hub returns the engine's notification hub
func (e *Engine) Hub() *notify.Hub {
	return e.hub
}

// Subscribe attaches handler to the engine's notifications
func (e *Engine) Subscribe(classes notify.Class, handler notify.Handler) (func(), error) {
	return e.hub.Subscribe(classes, handler)
}

// Size returns the number of stored keys, including expired keys not yet swept
func (e *Engine) Size() int {
	return e.backend.Len()
}

// Start launches the background expiry sweeper
func (e *Engine) Start() {
	if !e.started.CompareAndSwap(false, true) {
		return
	}
	e.wg.Add(1)
	go e.sweepLoop()
}

// Close stops the sweeper, drops all subscribers and closes the backend
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(e.stopCh)
	e.wg.Wait()
	e.hub.Close()

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backend.Close()
}

func (e *Engine) emit(events []event) {
	for _, ev := range events {
		telemetry.KeyspaceNotificationsTotal.With(ev.op).Inc()
		e.hub.Notify(ev.class, ev.op, ev.key)
	}
}

// load returns the live entry for key. An expired entry is deleted and an expired
// event is appended. Must be called with e.mu held.
func (e *Engine) load(key string, now int64, events *[]event) (*Entry, error) {
	ent, ok, err := e.backend.Load(key)
	if err != nil || !ok {
		return nil, err
	}
	if !ent.Expired(now) {
		return ent, nil
	}

	if _, err := e.backend.Delete(key); err != nil {
		return nil, err
	}
	telemetry.KeysExpiredTotal.Inc()
	*events = append(*events, event{notify.ClassExpired, notify.OpExpired, key})
	return nil, nil
}

// Set stores value under key, replacing whatever was there. ttl > 0 sets an expiry,
// otherwise any previous expiry is cleared.
func (e *Engine) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	ent := &Entry{Kind: KindString, Value: append([]byte(nil), value...)}
	events := []event{{notify.ClassString, notify.OpSet, key}}
	if ttl > 0 {
		deadline, err := ExpireDeadline(e.now(), ttl)
		if err != nil {
			return err
		}
		ent.ExpireAt = deadline
		events = append(events, event{notify.ClassGeneric, notify.OpExpire, key})
	}

	e.mu.Lock()
	err := e.backend.Store(key, ent)
	e.mu.Unlock()
	if err != nil {
		return err
	}

	e.emit(events)
	return nil
}

// Get returns the string stored under key
func (e *Engine) Get(_ context.Context, key string) ([]byte, bool, error) {
	if e.closed.Load() {
		return nil, false, ErrEngineClosed
	}

	var events []event
	e.mu.Lock()
	ent, err := e.load(key, e.now().UnixNano(), &events)
	e.mu.Unlock()
	e.emit(events)

	if err != nil || ent == nil {
		return nil, false, err
	}
	if ent.Kind != KindString {
		return nil, false, ErrWrongType
	}
	return ent.Value, true, nil
}

// Del removes keys and returns how many existed
func (e *Engine) Del(_ context.Context, keys ...string) (int64, error) {
	if e.closed.Load() {
		return 0, ErrEngineClosed
	}

	var events []event
	var removed int64
	var err error

	e.mu.Lock()
	now := e.now().UnixNano()
	for _, key := range keys {
		var ent *Entry
		if ent, err = e.load(key, now, &events); err != nil {
			break
		}
		if ent == nil {
			continue
		}
		if _, err = e.backend.Delete(key); err != nil {
			break
		}
		removed++
		events = append(events, event{notify.ClassGeneric, notify.OpDel, key})
	}
	e.mu.Unlock()

	e.emit(events)
	return removed, err
}

// Expire sets key's time to live. A non-positive ttl deletes the key.
// Returns false when key does not exist.
func (e *Engine) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if e.closed.Load() {
		return false, ErrEngineClosed
	}

	var events []event
	e.mu.Lock()
	now := e.now()
	ent, err := e.load(key, now.UnixNano(), &events)
	if err == nil && ent != nil {
		if ttl <= 0 {
			_, err = e.backend.Delete(key)
			if err == nil {
				events = append(events, event{notify.ClassGeneric, notify.OpDel, key})
			}
		} else {
			var deadline int64
			if deadline, err = ExpireDeadline(now, ttl); err == nil {
				updated := *ent
				updated.ExpireAt = deadline
				err = e.backend.Store(key, &updated)
			}
			if err == nil {
				events = append(events, event{notify.ClassGeneric, notify.OpExpire, key})
			}
		}
	}
	e.mu.Unlock()

	e.emit(events)
	if err != nil {
		return false, err
	}
	return ent != nil, nil
}

// TTL returns key's remaining lifetime, TTLMissing or TTLNoExpiry
func (e *Engine) TTL(_ context.Context, key string) (time.Duration, error) {
	if e.closed.Load() {
		return 0, ErrEngineClosed
	}

	var events []event
	e.mu.Lock()
	now := e.now().UnixNano()
	ent, err := e.load(key, now, &events)
	e.mu.Unlock()
	e.emit(events)

	switch {
	case err != nil:
		return 0, err
	case ent == nil:
		return TTLMissing, nil
	case ent.ExpireAt == 0:
		return TTLNoExpiry, nil
	}
	return time.Duration(ent.ExpireAt - now), nil
}

// RPush appends values to the list at key, creating it if needed, and returns the new length
func (e *Engine) RPush(_ context.Context, key string, values ...[]byte) (int64, error) {
	if e.closed.Load() {
		return 0, ErrEngineClosed
	}

	var events []event
	var length int64

	e.mu.Lock()
	ent, err := e.load(key, e.now().UnixNano(), &events)
	if err == nil {
		var list [][]byte
		var expireAt int64
		if ent != nil {
			if ent.Kind != KindList {
				err = ErrWrongType
			}
			list, expireAt = ent.List, ent.ExpireAt
		}
		if err == nil {
			grown := make([][]byte, 0, len(list)+len(values))
			grown = append(grown, list...)
			for _, v := range values {
				grown = append(grown, append([]byte(nil), v...))
			}
			err = e.backend.Store(key, &Entry{Kind: KindList, List: grown, ExpireAt: expireAt})
			if err == nil {
				length = int64(len(grown))
				events = append(events, event{notify.ClassList, notify.OpRPush, key})
			}
		}
	}
	e.mu.Unlock()

	e.emit(events)
	return length, err
}

// LPop removes and returns the head of the list at key. An emptied list is deleted.
func (e *Engine) LPop(_ context.Context, key string) ([]byte, bool, error) {
	if e.closed.Load() {
		return nil, false, ErrEngineClosed
	}

	var events []event
	var head []byte
	var popped bool

	e.mu.Lock()
	ent, err := e.load(key, e.now().UnixNano(), &events)
	switch {
	case err != nil || ent == nil:
	case ent.Kind != KindList:
		err = ErrWrongType
	case len(ent.List) == 0:
	default:
		head, popped = ent.List[0], true
		rest := ent.List[1:]
		if len(rest) == 0 {
			_, err = e.backend.Delete(key)
		} else {
			err = e.backend.Store(key, &Entry{Kind: KindList, List: rest, ExpireAt: ent.ExpireAt})
		}
		if err == nil {
			events = append(events, event{notify.ClassList, notify.OpLPop, key})
			if len(rest) == 0 {
				events = append(events, event{notify.ClassGeneric, notify.OpDel, key})
			}
		}
	}
	e.mu.Unlock()

	e.emit(events)
	if err != nil {
		return nil, false, err
	}
	return head, popped, nil
}

// LRange returns the elements between start and stop inclusive. Negative indexes
// count from the tail.
func (e *Engine) LRange(_ context.Context, key string, start, stop int64) ([][]byte, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	var events []event
	e.mu.Lock()
	ent, err := e.load(key, e.now().UnixNano(), &events)
	e.mu.Unlock()
	e.emit(events)

	if err != nil || ent == nil {
		return nil, err
	}
	if ent.Kind != KindList {
		return nil, ErrWrongType
	}

	from, to, ok := NormalizeRange(start, stop, int64(len(ent.List)))
	if !ok {
		return [][]byte{}, nil
	}
	out := make([][]byte, to-from)
	copy(out, ent.List[from:to])
	return out, nil
}

// LLen returns the length of the list at key, 0 when missing
func (e *Engine) LLen(_ context.Context, key string) (int64, error) {
	if e.closed.Load() {
		return 0, ErrEngineClosed
	}

	var events []event
	e.mu.Lock()
	ent, err := e.load(key, e.now().UnixNano(), &events)
	e.mu.Unlock()
	e.emit(events)

	if err != nil || ent == nil {
		return 0, err
	}
	if ent.Kind != KindList {
		return 0, ErrWrongType
	}
	return int64(len(ent.List)), nil
}

// Push appends record to the destination list
func (e *Engine) Push(destination string, record []byte) error {
	_, err := e.RPush(context.Background(), destination, record)
	return err
}

// Sweep deletes every expired key, emits expired for each and returns the count
func (e *Engine) Sweep() (int, error) {
	if e.closed.Load() {
		return 0, ErrEngineClosed
	}

	var events []event

	e.mu.Lock()
	now := e.now().UnixNano()
	var expired []string
	err := e.backend.Range(func(key string, ent *Entry) bool {
		if ent.Expired(now) {
			expired = append(expired, key)
		}
		return true
	})
	if err == nil {
		for _, key := range expired {
			var existed bool
			if existed, err = e.backend.Delete(key); err != nil {
				break
			}
			if existed {
				telemetry.KeysExpiredTotal.Inc()
				events = append(events, event{notify.ClassExpired, notify.OpExpired, key})
			}
		}
	}
	e.mu.Unlock()

	e.emit(events)
	return len(events), err
}

func (e *Engine) sweepLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := e.Sweep()
			if errors.Is(err, ErrEngineClosed) {
				return
			}
			if err != nil {
				log.Warn().Err(err).Msg("Keyspace sweep failed")
				continue
			}
			if n > 0 {
				log.Debug().Int("keys", n).Msg("Expired keys swept")
			}
		case <-e.stopCh:
			return
		}
	}
}
