package notifylist

import (
	"github.com/maxpert/notifylist/telemetry"
	"github.com/rs/zerolog/log"
)

// CommandName is the externally visible name of the registration command.
const CommandName = "notifylist.set"

// Command is the registration operation: it writes the registry, then makes sure the
// keyspace subscription is up.
type Command struct {
	registry     *Registry
	subscription *Subscription
}

// NewCommand creates the registration command.
func NewCommand(registry *Registry, subscription *Subscription) *Command {
	return &Command{
		registry:     registry,
		subscription: subscription,
	}
}

// Register watches pattern and relays its events to destination. The entry is kept
// even when the subscription cannot be established.
func (c *Command) Register(pattern, destination string) error {
	replaced := c.registry.Set(pattern, destination)

	log.Debug().
		Str("pattern", pattern).
		Str("destination", destination).
		Bool("replaced", replaced).
		Msg("Registered watch pattern")

	if err := c.subscription.EnsureActive(); err != nil {
		telemetry.RegistrationsTotal.With("activation_failed").Inc()
		log.Warn().
			Err(err).
			Str("pattern", pattern).
			Msg("Registration stored but keyspace subscription failed")
		return err
	}

	telemetry.RegistrationsTotal.With("ok").Inc()
	return nil
}

// Execute runs the command with its arguments, command name excluded.
func (c *Command) Execute(args []string) error {
	if len(args) != 2 {
		telemetry.RegistrationsTotal.With("arity").Inc()
		return ErrWrongArity
	}
	return c.Register(args[0], args[1])
}
