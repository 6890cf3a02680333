// Package notify implements keyspace notifications: the engine reports each key
// mutation to a Hub, and the Hub calls every subscriber whose class mask covers it.
package notify

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Class is a bit mask of notification classes.
type Class uint32

const (
	// ClassGeneric covers type-independent operations (del, expire)
	ClassGeneric Class = 1 << iota
	// ClassString covers string operations (set)
	ClassString
	// ClassList covers list operations (rpush, lpop)
	ClassList
	// ClassExpired covers keys removed because their TTL elapsed
	ClassExpired

	ClassAll = ClassGeneric | ClassString | ClassList | ClassExpired
)

// Operation names carried by notifications
const (
	OpSet     = "set"
	OpDel     = "del"
	OpExpire  = "expire"
	OpExpired = "expired"
	OpRPush   = "rpush"
	OpLPop    = "lpop"
)

var (
	// ErrNoClasses is returned when subscribing with an empty class mask
	ErrNoClasses = errors.New("notify: subscription needs at least one class")
	// ErrHubClosed is returned when subscribing to a closed hub
	ErrHubClosed = errors.New("notify: hub is closed")
)

// Handler receives one notification. It runs on the goroutine that performed the mutation.
type Handler func(op, key string)

// Source is anything that delivers keyspace notifications to subscribers.
type Source interface {
	Subscribe(classes Class, handler Handler) (cancel func(), err error)
}

// subscription represents a single subscriber.
type subscription struct {
	id      uint64
	classes Class
	handler Handler
}

// Hub implements Source.
// Thread-safe; handlers are called synchronously and in subscription order.
type Hub struct {
	mu            sync.RWMutex
	subscriptions []*subscription
	nextID        atomic.Uint64
	closed        bool
}

// NewHub creates a new notification hub.
func NewHub() *Hub {
	return &Hub{}
}

// Notify calls every handler subscribed to class. The subscriber list is copied
// before any handler runs, so handlers may subscribe, cancel, or mutate keys.
func (h *Hub) Notify(class Class, op, key string) {
	h.mu.RLock()
	if len(h.subscriptions) == 0 {
		h.mu.RUnlock()
		return
	}
	targets := make([]Handler, 0, len(h.subscriptions))
	for _, sub := range h.subscriptions {
		if sub.classes&class != 0 {
			targets = append(targets, sub.handler)
		}
	}
	h.mu.RUnlock()

	for _, handler := range targets {
		handler(op, key)
	}
}

// Subscribe registers handler for the given classes and returns an idempotent cancel function.
func (h *Hub) Subscribe(classes Class, handler Handler) (func(), error) {
	if classes&ClassAll == 0 {
		return nil, ErrNoClasses
	}
	if handler == nil {
		return nil, errors.New("notify: handler is required")
	}

	sub := &subscription{
		id:      h.nextID.Add(1),
		classes: classes,
		handler: handler,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	h.subscriptions = append(h.subscriptions, sub)
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() { h.unsubscribe(sub.id) })
	}

	return cancel, nil
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions)
}

// Close drops every subscription and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.subscriptions = nil
	h.mu.Unlock()
}

// unsubscribe removes a subscription.
func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, sub := range h.subscriptions {
		if sub.id == id {
			h.subscriptions = append(h.subscriptions[:i:i], h.subscriptions[i+1:]...)
			return
		}
	}
}
