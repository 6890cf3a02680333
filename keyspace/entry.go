// Package keyspace is the embedded key/value engine that notifylist watches and
// pushes into. Every mutation is reported to a notify.Hub.
package keyspace

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/maxpert/notifylist/notify"
)

// Kind identifies the type of value stored under a key
type Kind uint8

const (
	KindString Kind = 1
	KindList   Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	}
	return "none"
}

// TTL results for keys without a remaining lifetime, same as Redis
const (
	TTLMissing  time.Duration = -2
	TTLNoExpiry time.Duration = -1
)

// ErrWrongType is returned when a command is applied to a key holding another kind of value
var ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

// ErrEngineClosed is returned by every operation after Close
var ErrEngineClosed = errors.New("keyspace: engine is closed")

// ErrInvalidExpire is returned for a time to live whose deadline does not fit in int64 nanoseconds
var ErrInvalidExpire = errors.New("invalid expire time")

// ExpireDeadline returns now+ttl in unix nanoseconds, or ErrInvalidExpire on overflow
func ExpireDeadline(now time.Time, ttl time.Duration) (int64, error) {
	base := now.UnixNano()
	if ttl > 0 && int64(ttl) > math.MaxInt64-base {
		return 0, ErrInvalidExpire
	}
	return base + int64(ttl), nil
}

// Entry is the stored form of one key
type Entry struct {
	Kind     Kind     `msgpack:"k"`
	Value    []byte   `msgpack:"v,omitempty"`
	List     [][]byte `msgpack:"l,omitempty"`
	ExpireAt int64    `msgpack:"e,omitempty"` // Unix nanoseconds, 0 means no expiry
}

// Expired reports whether the entry's TTL has elapsed at now (Unix nanoseconds)
func (e *Entry) Expired(now int64) bool {
	return e.ExpireAt > 0 && e.ExpireAt <= now
}

// Store is the set of key operations served by both the embedded engine and an
// external Redis. It is also the event source and destination queue for notifylist.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Del(ctx context.Context, keys ...string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	RPush(ctx context.Context, key string, values ...[]byte) (int64, error)
	LPop(ctx context.Context, key string) ([]byte, bool, error)
	LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	LLen(ctx context.Context, key string) (int64, error)

	// Push appends record to the tail of the destination list
	Push(destination string, record []byte) error
	// Subscribe attaches handler to keyspace notifications
	Subscribe(classes notify.Class, handler notify.Handler) (func(), error)

	Close() error
}

// NormalizeRange converts Redis style start/stop indexes (negative counts from
// the tail, both inclusive) into slice bounds for a list of length n.
func NormalizeRange(start, stop, n int64) (from, to int64, ok bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop + 1, true
}
