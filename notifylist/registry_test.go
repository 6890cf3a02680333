package notifylist

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_SetAndGet(t *testing.T) {
	r := NewRegistry()

	replaced := r.Set("user:*", "q1")
	assert.False(t, replaced)

	dest, ok := r.Get("user:*")
	require.True(t, ok)
	assert.Equal(t, "q1", dest)

	_, ok = r.Get("user:1")
	assert.False(t, ok)
}

func TestRegistry_LastWriteWins(t *testing.T) {
	r := NewRegistry()

	r.Set("p", "first")
	replaced := r.Set("p", "second")

	assert.True(t, replaced)
	assert.Equal(t, 1, r.Size())

	dest, ok := r.Get("p")
	require.True(t, ok)
	assert.Equal(t, "second", dest)
}

func TestRegistry_OwnsStrings(t *testing.T) {
	r := NewRegistry()

	buf := []byte("orders:*")
	dst := []byte("orders-queue")
	r.Set(string(buf), string(dst))

	copy(buf, "xxxxxxxx")
	copy(dst, "yyyyyyyyyyyy")

	dest, ok := r.Get("orders:*")
	require.True(t, ok)
	assert.Equal(t, "orders-queue", dest)
}

func TestRegistry_IterateFromOrdered(t *testing.T) {
	r := NewRegistry()
	for _, p := range []string{"c", "a*", "b", "ab*", "d"} {
		r.Set(p, "q:"+p)
	}

	var all []string
	r.IterateFrom("", func(pattern, destination string) bool {
		assert.Equal(t, "q:"+pattern, destination)
		all = append(all, pattern)
		return true
	})
	assert.Equal(t, []string{"a*", "ab*", "b", "c", "d"}, all)

	var fromB []string
	r.IterateFrom("b", func(pattern, _ string) bool {
		fromB = append(fromB, pattern)
		return true
	})
	assert.Equal(t, []string{"b", "c", "d"}, fromB)

	// Restartable and stoppable
	var firstTwo []string
	r.IterateFrom("", func(pattern, _ string) bool {
		firstTwo = append(firstTwo, pattern)
		return len(firstTwo) < 2
	})
	assert.Equal(t, []string{"a*", "ab*"}, firstTwo)
}

func TestRegistry_Destinations(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.Destinations())

	r.Set("user:*", "events")
	r.Set("order:*", "events")
	r.Set("session:1", "audit")
	r.Set("session:1", "sessions")

	assert.Equal(t, []string{"events", "sessions"}, r.Destinations())
}

func TestRegistry_Clear(t *testing.T) {
	r := NewRegistry()
	r.Set("a", "q")
	r.Set("b*", "q")

	r.Clear()

	assert.Equal(t, 0, r.Size())
	_, ok := r.Get("a")
	assert.False(t, ok)
}

func TestRegistry_Targets(t *testing.T) {
	r := NewRegistry()
	r.Set("user:42", "exact")
	r.Set("user:*", "users")
	r.Set("u*", "u")
	r.Set("admin:*", "admins")
	r.Set("*", "everything")

	got := r.targets("user:42")
	require.Len(t, got, 3)

	assert.Equal(t, target{pattern: "user:42", destination: "exact", path: pathExact}, got[0])
	// Wildcard entries follow in registry order
	assert.Equal(t, "u*", got[1].pattern)
	assert.Equal(t, "user:*", got[2].pattern)
	assert.Equal(t, pathWildcard, got[1].path)
}

func TestRegistry_TargetsDoubleFire(t *testing.T) {
	r := NewRegistry()
	r.Set("a*", "q")

	// The literal key "a*" hits the exact path and the wildcard path
	got := r.targets("a*")
	require.Len(t, got, 2)
	assert.Equal(t, pathExact, got[0].path)
	assert.Equal(t, pathWildcard, got[1].path)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				r.Set(fmt.Sprintf("p%d:%d*", id, j%20), fmt.Sprintf("q%d", j))
			}
		}(i)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = r.targets(fmt.Sprintf("p%d:%d", id, j))
				r.IterateFrom("", func(string, string) bool { return true })
			}
		}(i)
	}

	wg.Wait()
	assert.Equal(t, 8*20, r.Size())
}
