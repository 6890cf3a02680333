package keyspace

import (
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/maxpert/notifylist/encoding"
	"github.com/rs/zerolog/log"
)

// Key prefix for stored entries: /kv/{key}
const pebblePrefixKV = "/kv/"

// PebbleBackend stores msgpack encoded entries in a Pebble database
type PebbleBackend struct {
	db     *pebble.DB
	path   string
	count  atomic.Int64
	closed atomic.Bool
}

var _ Backend = (*PebbleBackend)(nil)

// pebbleLogger wraps zerolog for Pebble
type pebbleLogger struct{}

func (l *pebbleLogger) Infof(format string, args ...interface{}) {
	log.Debug().Msgf("[pebble] "+format, args...)
}

func (l *pebbleLogger) Errorf(format string, args ...interface{}) {
	log.Error().Msgf("[pebble] "+format, args...)
}

func (l *pebbleLogger) Fatalf(format string, args ...interface{}) {
	log.Fatal().Msgf("[pebble] "+format, args...)
}

// OpenPebbleBackend opens (or creates) the database at path and counts its keys.
func OpenPebbleBackend(path string) (*PebbleBackend, error) {
	db, err := pebble.Open(path, &pebble.Options{
		Logger: &pebbleLogger{},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db: %w", err)
	}

	b := &PebbleBackend{db: db, path: path}

	var n int64
	if err := b.Range(func(string, *Entry) bool { n++; return true }); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to count keys: %w", err)
	}
	b.count.Store(n)

	log.Info().Str("path", path).Int64("keys", n).Msg("Opened pebble keyspace")
	return b, nil
}

func pebbleKVKey(key string) []byte {
	return append([]byte(pebblePrefixKV), key...)
}

func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xFF {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}

func (b *PebbleBackend) Load(key string) (*Entry, bool, error) {
	val, closer, err := b.db.Get(pebbleKVKey(key))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()

	var e Entry
	if err := encoding.Unmarshal(val, &e); err != nil {
		return nil, false, fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return &e, true, nil
}

func (b *PebbleBackend) Store(key string, e *Entry) error {
	data, err := encoding.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}

	k := pebbleKVKey(key)
	_, closer, err := b.db.Get(k)
	existed := err == nil
	if existed {
		closer.Close()
	} else if err != pebble.ErrNotFound {
		return err
	}

	if err := b.db.Set(k, data, pebble.NoSync); err != nil {
		return err
	}
	if !existed {
		b.count.Add(1)
	}
	return nil
}

func (b *PebbleBackend) Delete(key string) (bool, error) {
	k := pebbleKVKey(key)
	_, closer, err := b.db.Get(k)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()

	if err := b.db.Delete(k, pebble.NoSync); err != nil {
		return false, err
	}
	b.count.Add(-1)
	return true, nil
}

func (b *PebbleBackend) Range(fn func(key string, e *Entry) bool) error {
	prefix := []byte(pebblePrefixKV)
	iter, err := b.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		val, err := iter.ValueAndErr()
		if err != nil {
			return err
		}

		var e Entry
		if err := encoding.Unmarshal(val, &e); err != nil {
			log.Warn().Err(err).Bytes("key", iter.Key()).Msg("Skipping undecodable keyspace entry")
			continue
		}

		if !fn(string(iter.Key()[len(prefix):]), &e) {
			break
		}
	}
	return iter.Error()
}

func (b *PebbleBackend) Len() int {
	return int(b.count.Load())
}

func (b *PebbleBackend) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := b.db.Flush(); err != nil {
		log.Warn().Err(err).Msg("Failed to flush pebble keyspace")
	}
	return b.db.Close()
}
