// Package redis connects notifylist to an external Redis server: keyspace
// notifications arrive through keyevent pub/sub and records are pushed with RPUSH.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/maxpert/notifylist/notify"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// NotifyKeyspaceEvents enables keyevent notifications for generic, string and expired events
const NotifyKeyspaceEvents = "Eg$x"

const keyeventPrefix = "__keyevent@"

// opClasses maps Redis keyevent names to notification classes
var opClasses = map[string]notify.Class{
	notify.OpSet:     notify.ClassString,
	notify.OpDel:     notify.ClassGeneric,
	notify.OpExpire:  notify.ClassGeneric,
	notify.OpExpired: notify.ClassExpired,
	notify.OpRPush:   notify.ClassList,
	notify.OpLPop:    notify.ClassList,
}

// ClassOf returns the notification class of a Redis keyevent. Unknown events are generic.
func ClassOf(op string) notify.Class {
	if c, ok := opClasses[op]; ok {
		return c
	}
	return notify.ClassGeneric
}

// KeyeventPattern is the pub/sub pattern covering every keyevent channel of db
func KeyeventPattern(db int) string {
	return keyeventPrefix + strconv.Itoa(db) + "__:*"
}

// ParseKeyeventChannel extracts the event name from "__keyevent@<db>__:<event>".
func ParseKeyeventChannel(channel string) (op string, ok bool) {
	rest, found := strings.CutPrefix(channel, keyeventPrefix)
	if !found {
		return "", false
	}
	i := strings.Index(rest, "__:")
	if i <= 0 {
		return "", false
	}
	if _, err := strconv.Atoi(rest[:i]); err != nil {
		return "", false
	}
	op = rest[i+3:]
	return op, op != ""
}

// Source delivers Redis keyevent notifications to notify handlers.
type Source struct {
	client    *goredis.Client
	db        int
	configure bool
}

var _ notify.Source = (*Source)(nil)

// NewSource creates a source. With configure set, Subscribe first enables
// notify-keyspace-events on the server.
func NewSource(client *goredis.Client, db int, configure bool) *Source {
	return &Source{client: client, db: db, configure: configure}
}

// Subscribe pattern-subscribes to the keyevent channels and calls handler for every
// event whose class is in classes. Events are delivered on a single goroutine, in
// the order Redis publishes them.
func (s *Source) Subscribe(classes notify.Class, handler notify.Handler) (func(), error) {
	if classes&notify.ClassAll == 0 {
		return nil, notify.ErrNoClasses
	}

	ctx := context.Background()

	if s.configure {
		if err := s.client.ConfigSet(ctx, "notify-keyspace-events", NotifyKeyspaceEvents).Err(); err != nil {
			return nil, fmt.Errorf("failed to enable keyspace events: %w", err)
		}
	}

	pattern := KeyeventPattern(s.db)
	pubsub := s.client.PSubscribe(ctx, pattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range pubsub.Channel() {
			op, ok := ParseKeyeventChannel(msg.Channel)
			if !ok {
				log.Debug().Str("channel", msg.Channel).Msg("Ignoring unexpected pub/sub channel")
				continue
			}
			if ClassOf(op)&classes == 0 {
				continue
			}
			handler(op, msg.Payload)
		}
	}()

	log.Info().Str("pattern", pattern).Msg("Subscribed to Redis keyevents")

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			if err := pubsub.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close Redis subscription")
			}
			<-done
		})
	}
	return cancel, nil
}
