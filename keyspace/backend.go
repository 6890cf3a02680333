package keyspace

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// Backend persists entries. The engine serializes writes, so implementations only
// need to be safe for one writer with concurrent readers.
// Entries handed to Store are never modified afterwards.
type Backend interface {
	Load(key string) (*Entry, bool, error)
	Store(key string, e *Entry) error
	Delete(key string) (bool, error)
	Range(fn func(key string, e *Entry) bool) error
	Len() int
	Close() error
}

// MemoryBackend keeps entries in a lock-free concurrent map
type MemoryBackend struct {
	entries *xsync.MapOf[string, *Entry]
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: xsync.NewMapOf[string, *Entry](),
	}
}

func (b *MemoryBackend) Load(key string) (*Entry, bool, error) {
	e, ok := b.entries.Load(key)
	return e, ok, nil
}

func (b *MemoryBackend) Store(key string, e *Entry) error {
	b.entries.Store(key, e)
	return nil
}

func (b *MemoryBackend) Delete(key string) (bool, error) {
	_, existed := b.entries.LoadAndDelete(key)
	return existed, nil
}

func (b *MemoryBackend) Range(fn func(key string, e *Entry) bool) error {
	b.entries.Range(fn)
	return nil
}

func (b *MemoryBackend) Len() int {
	return b.entries.Size()
}

func (b *MemoryBackend) Close() error {
	b.entries.Clear()
	return nil
}
