package keyspace

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/maxpert/notifylist/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type notification struct {
	op, key string
}

type recorder struct {
	mu   sync.Mutex
	seen []notification
}

func (r *recorder) handle(op, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, notification{op, key})
}

func (r *recorder) get() []notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notification(nil), r.seen...)
}

func newTestEngine(t *testing.T, backend Backend) (*Engine, *fakeClock, *recorder) {
	t.Helper()
	clock := newFakeClock()
	engine := NewEngine(backend, Options{Now: clock.Now})
	rec := &recorder{}
	cancel, err := engine.Subscribe(notify.ClassAll, rec.handle)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		_ = engine.Close()
	})
	return engine, clock, rec
}

// backends runs fn against every Backend implementation
func backends(t *testing.T, fn func(t *testing.T, b Backend)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryBackend())
	})
	t.Run("pebble", func(t *testing.T) {
		b, err := OpenPebbleBackend(t.TempDir())
		require.NoError(t, err)
		fn(t, b)
	})
}

func TestEngine_SetGet(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		engine, _, rec := newTestEngine(t, b)

		require.NoError(t, engine.Set(ctx, "user:1", []byte("alice"), 0))

		v, ok, err := engine.Get(ctx, "user:1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("alice"), v)

		_, ok, err = engine.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)

		assert.Equal(t, []notification{{"set", "user:1"}}, rec.get())
		assert.Equal(t, 1, engine.Size())
	})
}

func TestEngine_SetWithTTLEmitsExpire(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		engine, _, rec := newTestEngine(t, b)

		require.NoError(t, engine.Set(ctx, "session", []byte("x"), 10*time.Second))

		assert.Equal(t, []notification{{"set", "session"}, {"expire", "session"}}, rec.get())

		ttl, err := engine.TTL(ctx, "session")
		require.NoError(t, err)
		assert.Equal(t, 10*time.Second, ttl)

		// Plain SET clears the expiry
		require.NoError(t, engine.Set(ctx, "session", []byte("y"), 0))
		ttl, err = engine.TTL(ctx, "session")
		require.NoError(t, err)
		assert.Equal(t, TTLNoExpiry, ttl)
	})
}

func TestEngine_TTLMissing(t *testing.T) {
	engine, _, _ := newTestEngine(t, NewMemoryBackend())

	ttl, err := engine.TTL(context.Background(), "nope")
	require.NoError(t, err)
	assert.Equal(t, TTLMissing, ttl)
}

func TestEngine_Del(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		engine, _, rec := newTestEngine(t, b)

		require.NoError(t, engine.Set(ctx, "a", []byte("1"), 0))
		require.NoError(t, engine.Set(ctx, "b", []byte("2"), 0))

		n, err := engine.Del(ctx, "a", "b", "c")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		assert.Equal(t, 0, engine.Size())

		assert.Equal(t, []notification{
			{"set", "a"}, {"set", "b"}, {"del", "a"}, {"del", "b"},
		}, rec.get())
	})
}

func TestEngine_Expire(t *testing.T) {
	ctx := context.Background()
	engine, clock, rec := newTestEngine(t, NewMemoryBackend())

	ok, err := engine.Expire(ctx, "missing", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, engine.Set(ctx, "k", []byte("v"), 0))
	ok, err = engine.Expire(ctx, "k", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(2 * time.Second)
	ttl, err := engine.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, ttl)

	assert.Equal(t, []notification{{"set", "k"}, {"expire", "k"}}, rec.get())
}

func TestEngine_ExpireNonPositiveDeletes(t *testing.T) {
	ctx := context.Background()
	engine, _, rec := newTestEngine(t, NewMemoryBackend())

	require.NoError(t, engine.Set(ctx, "k", []byte("v"), 0))
	ok, err := engine.Expire(ctx, "k", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	_, found, err := engine.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, []notification{{"set", "k"}, {"del", "k"}}, rec.get())
}

func TestEngine_UnrepresentableDeadline(t *testing.T) {
	ctx := context.Background()
	engine, _, rec := newTestEngine(t, NewMemoryBackend())
	huge := time.Duration(math.MaxInt64)

	assert.ErrorIs(t, engine.Set(ctx, "a", []byte("v"), huge), ErrInvalidExpire)
	_, found, err := engine.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, engine.Set(ctx, "b", []byte("v"), 0))
	ok, err := engine.Expire(ctx, "b", huge)
	assert.ErrorIs(t, err, ErrInvalidExpire)
	assert.False(t, ok)

	ttl, err := engine.TTL(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, TTLNoExpiry, ttl)
	assert.Equal(t, []notification{{"set", "b"}}, rec.get())
}

func TestExpireDeadline(t *testing.T) {
	now := time.Unix(1700000000, 0)

	deadline, err := ExpireDeadline(now, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute).UnixNano(), deadline)

	_, err = ExpireDeadline(now, time.Duration(math.MaxInt64-now.UnixNano()+1))
	assert.ErrorIs(t, err, ErrInvalidExpire)
}

func TestEngine_LazyExpiry(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		engine, clock, rec := newTestEngine(t, b)

		require.NoError(t, engine.Set(ctx, "k", []byte("v"), time.Second))
		clock.Advance(time.Second)

		_, found, err := engine.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Equal(t, 0, engine.Size())

		assert.Equal(t, []notification{{"set", "k"}, {"expire", "k"}, {"expired", "k"}}, rec.get())
	})
}

func TestEngine_Sweep(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		engine, clock, rec := newTestEngine(t, b)

		require.NoError(t, engine.Set(ctx, "short", []byte("1"), time.Second))
		require.NoError(t, engine.Set(ctx, "long", []byte("2"), time.Hour))
		require.NoError(t, engine.Set(ctx, "forever", []byte("3"), 0))

		n, err := engine.Sweep()
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		clock.Advance(time.Minute)
		n, err = engine.Sweep()
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, 2, engine.Size())

		seen := rec.get()
		assert.Equal(t, notification{"expired", "short"}, seen[len(seen)-1])
	})
}

func TestEngine_SweeperGoroutine(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(NewMemoryBackend(), Options{SweepInterval: 5 * time.Millisecond})
	defer engine.Close()

	expired := make(chan string, 1)
	cancel, err := engine.Subscribe(notify.ClassExpired, func(op, key string) { expired <- key })
	require.NoError(t, err)
	defer cancel()

	engine.Start()
	require.NoError(t, engine.Set(ctx, "k", []byte("v"), 10*time.Millisecond))

	select {
	case key := <-expired:
		assert.Equal(t, "k", key)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not expire key")
	}
}

func TestEngine_Lists(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		ctx := context.Background()
		engine, _, rec := newTestEngine(t, b)

		n, err := engine.RPush(ctx, "q", []byte("a"), []byte("b"))
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		n, err = engine.RPush(ctx, "q", []byte("c"))
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		l, err := engine.LLen(ctx, "q")
		require.NoError(t, err)
		assert.Equal(t, int64(3), l)

		all, err := engine.LRange(ctx, "q", 0, -1)
		require.NoError(t, err)
		assert.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, all)

		tail, err := engine.LRange(ctx, "q", -2, 100)
		require.NoError(t, err)
		assert.Equal(t, [][]byte{[]byte("b"), []byte("c")}, tail)

		empty, err := engine.LRange(ctx, "q", 5, 10)
		require.NoError(t, err)
		assert.Empty(t, empty)

		for _, want := range []string{"a", "b", "c"} {
			v, ok, err := engine.LPop(ctx, "q")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, want, string(v))
		}

		_, ok, err := engine.LPop(ctx, "q")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 0, engine.Size())

		assert.Equal(t, []notification{
			{"rpush", "q"}, {"rpush", "q"},
			{"lpop", "q"}, {"lpop", "q"}, {"lpop", "q"}, {"del", "q"},
		}, rec.get())
	})
}

func TestEngine_WrongType(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t, NewMemoryBackend())

	require.NoError(t, engine.Set(ctx, "s", []byte("v"), 0))
	_, err := engine.RPush(ctx, "s", []byte("x"))
	assert.ErrorIs(t, err, ErrWrongType)
	_, _, err = engine.LPop(ctx, "s")
	assert.ErrorIs(t, err, ErrWrongType)
	_, err = engine.LRange(ctx, "s", 0, -1)
	assert.ErrorIs(t, err, ErrWrongType)
	_, err = engine.LLen(ctx, "s")
	assert.ErrorIs(t, err, ErrWrongType)

	_, err = engine.RPush(ctx, "l", []byte("x"))
	require.NoError(t, err)
	_, _, err = engine.Get(ctx, "l")
	assert.ErrorIs(t, err, ErrWrongType)

	// SET replaces any kind
	require.NoError(t, engine.Set(ctx, "l", []byte("now a string"), 0))
}

func TestEngine_HandlerMayPushBack(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t, NewMemoryBackend())

	cancel, err := engine.Subscribe(notify.ClassString, func(op, key string) {
		// Must not deadlock on the engine lock
		require.NoError(t, engine.Push("events", []byte(op+":"+key)))
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, engine.Set(ctx, "k", []byte("v"), 0))

	got, err := engine.LRange(ctx, "events", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("set:k")}, got)
}

func TestEngine_Closed(t *testing.T) {
	engine := NewEngine(NewMemoryBackend(), Options{})
	engine.Start()
	require.NoError(t, engine.Close())
	require.NoError(t, engine.Close())

	assert.ErrorIs(t, engine.Set(context.Background(), "k", nil, 0), ErrEngineClosed)
	assert.ErrorIs(t, engine.Push("q", []byte("r")), ErrEngineClosed)
	_, err := engine.Subscribe(notify.ClassAll, func(op, key string) {})
	assert.ErrorIs(t, err, notify.ErrHubClosed)
}

func TestNormalizeRange(t *testing.T) {
	cases := []struct {
		start, stop, n int64
		from, to       int64
		ok             bool
	}{
		{0, -1, 3, 0, 3, true},
		{1, 1, 3, 1, 2, true},
		{-100, 100, 3, 0, 3, true},
		{2, 1, 3, 0, 0, false},
		{3, 5, 3, 0, 0, false},
		{0, -1, 0, 0, 0, false},
		{-1, -1, 3, 2, 3, true},
	}

	for _, c := range cases {
		from, to, ok := NormalizeRange(c.start, c.stop, c.n)
		assert.Equal(t, c.ok, ok, "%+v", c)
		if ok {
			assert.Equal(t, c.from, from, "%+v", c)
			assert.Equal(t, c.to, to, "%+v", c)
		}
	}
}
