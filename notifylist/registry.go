package notifylist

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/btree"
)

const registryDegree = 16

// entry is one watched pattern. The stripped prefix is computed once at insert time.
type entry struct {
	pattern     string
	destination string
	prefix      string
	wildcard    bool
}

func lessEntry(a, b *entry) bool {
	return a.pattern < b.pattern
}

// target is a destination selected for one event.
type target struct {
	pattern     string
	destination string
	path        string
}

// Match paths, also used as metric labels
const (
	pathExact    = "exact"
	pathWildcard = "wildcard"
)

// Registry maps watched patterns to destination lists. Patterns are unique and
// kept in ascending byte order. A single RWMutex covers lookups, scans and writes.
type Registry struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[*entry]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tree: btree.NewG(registryDegree, lessEntry),
	}
}

// Set inserts pattern or replaces its destination. It reports whether an entry
// already existed. The registry keeps its own copies of both strings.
func (r *Registry) Set(pattern, destination string) (replaced bool) {
	pattern = strings.Clone(pattern)
	e := &entry{
		pattern:     pattern,
		destination: strings.Clone(destination),
		prefix:      StripWildcards(pattern),
		wildcard:    HasWildcard(pattern),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, replaced = r.tree.ReplaceOrInsert(e)
	return replaced
}

// Get returns the destination registered for exactly pattern.
func (r *Registry) Get(pattern string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tree.Get(&entry{pattern: pattern})
	if !ok {
		return "", false
	}
	return e.destination, true
}

// Size returns the number of registered patterns.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree.Len()
}

// IterateFrom calls fn for every entry whose pattern is >= start, in ascending
// order, until fn returns false. fn runs under the registry read lock and must not
// call Set.
func (r *Registry) IterateFrom(start string, fn func(pattern, destination string) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	r.tree.AscendGreaterOrEqual(&entry{pattern: start}, func(e *entry) bool {
		return fn(e.pattern, e.destination)
	})
}

// Destinations returns every distinct destination, sorted.
func (r *Registry) Destinations() []string {
	r.mu.RLock()
	seen := make(map[string]struct{}, r.tree.Len())
	r.tree.Ascend(func(e *entry) bool {
		seen[e.destination] = struct{}{}
		return true
	})
	r.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for dst := range seen {
		out = append(out, dst)
	}
	sort.Strings(out)
	return out
}

// Clear drops every entry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tree.Clear(false)
}

// targets returns the destinations that should receive key's record: the exact
// entry first, then every wildcard entry whose prefix matches, in registry order.
// An entry that qualifies on both paths is returned twice.
func (r *Registry) targets(key string) []target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []target

	if e, ok := r.tree.Get(&entry{pattern: key}); ok {
		out = append(out, target{pattern: e.pattern, destination: e.destination, path: pathExact})
	}

	r.tree.Ascend(func(e *entry) bool {
		if e.wildcard && matchesPrefix(key, e.prefix) {
			out = append(out, target{pattern: e.pattern, destination: e.destination, path: pathWildcard})
		}
		return true
	})

	return out
}
