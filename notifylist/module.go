package notifylist

import (
	"fmt"
	"sync/atomic"

	"github.com/maxpert/notifylist/notify"
	"github.com/rs/zerolog/log"
)

// Config wires a Module to its collaborators
type Config struct {
	Source notify.Source // Keyspace notifications
	Queue  Queue         // Destination lists
	Mirror Mirror        // Optional, told about every pushed record
}

// Module owns the registry, dispatcher, subscription and registration command for
// one process. Create it on start with New and release it with Close.
type Module struct {
	registry     *Registry
	dispatcher   *Dispatcher
	subscription *Subscription
	command      *Command
	closed       atomic.Bool
}

// New creates a module. Nothing is subscribed until the first registration.
func New(config Config) (*Module, error) {
	if config.Source == nil {
		return nil, fmt.Errorf("keyspace source is required")
	}
	if config.Queue == nil {
		return nil, fmt.Errorf("queue is required")
	}

	registry := NewRegistry()
	dispatcher := NewDispatcher(registry, config.Queue, config.Mirror)
	subscription := NewSubscription(config.Source, dispatcher.HandleNotification)

	return &Module{
		registry:     registry,
		dispatcher:   dispatcher,
		subscription: subscription,
		command:      NewCommand(registry, subscription),
	}, nil
}

// Register watches pattern and relays matching events to destination.
func (m *Module) Register(pattern, destination string) error {
	if m.closed.Load() {
		return ErrClosed
	}
	return m.command.Register(pattern, destination)
}

// Execute runs NOTIFYLIST.SET with args (command name excluded).
func (m *Module) Execute(args []string) error {
	if m.closed.Load() {
		return ErrClosed
	}
	return m.command.Execute(args)
}

// Handle dispatches one event directly, bypassing the keyspace subscription.
func (m *Module) Handle(ev Event) error {
	return m.dispatcher.Handle(ev)
}

// Registry returns the pattern registry.
func (m *Module) Registry() *Registry {
	return m.registry
}

// Stats returns the dispatcher counters.
func (m *Module) Stats() DispatchStats {
	return m.dispatcher.Stats()
}

// Active reports whether the keyspace subscription is established.
func (m *Module) Active() bool {
	return m.subscription.Active()
}

// Close cancels the keyspace subscription and drops every registration.
func (m *Module) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	m.subscription.Close()
	patterns := m.registry.Size()
	m.registry.Clear()

	log.Info().Int("patterns", patterns).Msg("Notifylist module closed")
	return nil
}
