package keyspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPebbleBackend_Reopen(t *testing.T) {
	dir := t.TempDir()

	b, err := OpenPebbleBackend(dir)
	require.NoError(t, err)
	require.NoError(t, b.Store("user:1", &Entry{Kind: KindString, Value: []byte("alice")}))
	require.NoError(t, b.Store("events", &Entry{Kind: KindList, List: [][]byte{[]byte("a"), []byte("b")}, ExpireAt: 42}))
	require.NoError(t, b.Store("user:1", &Entry{Kind: KindString, Value: []byte("bob")}))
	assert.Equal(t, 2, b.Len())
	require.NoError(t, b.Close())

	b, err = OpenPebbleBackend(dir)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, 2, b.Len())

	e, ok, err := b.Load("user:1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("bob"), e.Value)

	e, ok, err = b.Load("events")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, KindList, e.Kind)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, e.List)
	assert.Equal(t, int64(42), e.ExpireAt)
}

func TestPebbleBackend_DeleteAndRange(t *testing.T) {
	b, err := OpenPebbleBackend(t.TempDir())
	require.NoError(t, err)
	defer b.Close()

	for _, k := range []string{"c", "a", "b"} {
		require.NoError(t, b.Store(k, &Entry{Kind: KindString, Value: []byte(k)}))
	}

	existed, err := b.Delete("b")
	require.NoError(t, err)
	assert.True(t, existed)
	existed, err = b.Delete("b")
	require.NoError(t, err)
	assert.False(t, existed)

	var keys []string
	require.NoError(t, b.Range(func(key string, e *Entry) bool {
		keys = append(keys, key)
		return true
	}))
	assert.Equal(t, []string{"a", "c"}, keys)
	assert.Equal(t, 2, b.Len())
}

func TestMemoryBackend(t *testing.T) {
	b := NewMemoryBackend()

	require.NoError(t, b.Store("k", &Entry{Kind: KindString, Value: []byte("v")}))
	e, ok, err := b.Load("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, KindString, e.Kind)
	assert.Equal(t, 1, b.Len())

	existed, err := b.Delete("k")
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, 0, b.Len())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "string", KindString.String())
	assert.Equal(t, "list", KindList.String())
	assert.Equal(t, "none", Kind(0).String())
}
