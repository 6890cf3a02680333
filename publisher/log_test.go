package publisher

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLogEvents(n int, destination string) []Event {
	events := make([]Event, n)
	for i := range events {
		key := fmt.Sprintf("k%d", i+1)
		events[i] = Event{
			Destination: destination,
			Key:         key,
			Op:          "set",
			Record:      []byte(`{"key":"` + key + `","op":"set"}`),
			PushedAt:    int64(i + 1),
			NodeID:      1,
		}
	}
	return events
}

func TestNewPublishLog(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), LogDirName)

	pl, err := NewPublishLog(logPath)
	require.NoError(t, err)
	require.NotNil(t, pl)
	defer pl.Close()

	assert.Equal(t, logPath, pl.path)
	assert.NotNil(t, pl.cursors)
	assert.Equal(t, uint64(0), pl.LastSeq())
}

func TestPublishLogAppendAndRead(t *testing.T) {
	pl, err := NewPublishLog(t.TempDir())
	require.NoError(t, err)
	defer pl.Close()

	events := []Event{
		{Destination: "Q1", Key: "user:1", Op: "set", Record: []byte(`{"key":"user:1","op":"set"}`), PushedAt: 1000, NodeID: 1},
		{Destination: "Q2", Key: "user:1", Op: "expired", Record: []byte(`{"key":"user:1","op":"expired"}`), PushedAt: 2000, NodeID: 1},
	}

	require.NoError(t, pl.Append(events))
	assert.Equal(t, uint64(1), events[0].SeqNum)
	assert.Equal(t, uint64(2), events[1].SeqNum)
	assert.Equal(t, uint64(2), pl.LastSeq())

	read, err := pl.ReadFrom(0, 10)
	require.NoError(t, err)
	require.Len(t, read, 2)

	assert.Equal(t, uint64(1), read[0].SeqNum)
	assert.Equal(t, "Q1", read[0].Destination)
	assert.Equal(t, "user:1", read[0].Key)
	assert.Equal(t, "set", read[0].Op)
	assert.Equal(t, `{"key":"user:1","op":"set"}`, string(read[0].Record))
	assert.Equal(t, int64(1000), read[0].PushedAt)
	assert.Equal(t, uint64(1), read[0].NodeID)

	assert.Equal(t, "Q2", read[1].Destination)
	assert.Equal(t, "expired", read[1].Op)
}

func TestPublishLogReadWithLimit(t *testing.T) {
	pl, err := NewPublishLog(t.TempDir())
	require.NoError(t, err)
	defer pl.Close()

	require.NoError(t, pl.Append(newLogEvents(10, "Q")))

	read, err := pl.ReadFrom(0, 5)
	require.NoError(t, err)
	require.Len(t, read, 5)
	assert.Equal(t, uint64(5), read[4].SeqNum)

	read, err = pl.ReadFrom(5, 5)
	require.NoError(t, err)
	require.Len(t, read, 5)
	assert.Equal(t, uint64(6), read[0].SeqNum)

	read, err = pl.ReadFrom(10, 5)
	require.NoError(t, err)
	assert.Empty(t, read)

	// Non-positive limit falls back to the default
	read, err = pl.ReadFrom(0, 0)
	require.NoError(t, err)
	assert.Len(t, read, 10)
}

func TestPublishLogCursorOperations(t *testing.T) {
	pl, err := NewPublishLog(t.TempDir())
	require.NoError(t, err)
	defer pl.Close()

	cursor, err := pl.GetCursor("new-sink")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), cursor)

	require.NoError(t, pl.AdvanceCursor("new-sink", 42))

	cursor, err = pl.GetCursor("new-sink")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), cursor)
}

func TestPublishLogCursorPersistence(t *testing.T) {
	dir := t.TempDir()

	pl1, err := NewPublishLog(dir)
	require.NoError(t, err)
	require.NoError(t, pl1.AdvanceCursor("sink1", 100))
	require.NoError(t, pl1.AdvanceCursor("sink2", 50))
	require.NoError(t, pl1.Close())

	pl2, err := NewPublishLog(dir)
	require.NoError(t, err)
	defer pl2.Close()

	cursor1, err := pl2.GetCursor("sink1")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), cursor1)

	cursor2, err := pl2.GetCursor("sink2")
	require.NoError(t, err)
	assert.Equal(t, uint64(50), cursor2)
}

func TestPublishLogSequenceNumberPersistence(t *testing.T) {
	dir := t.TempDir()

	pl1, err := NewPublishLog(dir)
	require.NoError(t, err)

	events := newLogEvents(3, "Q")
	require.NoError(t, pl1.Append(events))
	assert.Equal(t, uint64(3), events[2].SeqNum)
	require.NoError(t, pl1.Close())

	pl2, err := NewPublishLog(dir)
	require.NoError(t, err)
	defer pl2.Close()

	assert.Equal(t, uint64(3), pl2.LastSeq())

	more := newLogEvents(1, "Q")
	require.NoError(t, pl2.Append(more))
	assert.Equal(t, uint64(4), more[0].SeqNum)
}

func TestPublishLogEmptyAppend(t *testing.T) {
	pl, err := NewPublishLog(t.TempDir())
	require.NoError(t, err)
	defer pl.Close()

	require.NoError(t, pl.Append(nil))
	assert.Equal(t, uint64(0), pl.LastSeq())
}

func TestPublishLogReadFromEmptyLog(t *testing.T) {
	pl, err := NewPublishLog(t.TempDir())
	require.NoError(t, err)
	defer pl.Close()

	events, err := pl.ReadFrom(0, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestPublishLogCleanup(t *testing.T) {
	pl, err := NewPublishLog(t.TempDir())
	require.NoError(t, err)
	defer pl.Close()

	require.NoError(t, pl.Append(newLogEvents(200, "Q")))

	require.NoError(t, pl.AdvanceCursor("sink1", 150))
	require.NoError(t, pl.AdvanceCursor("sink2", 128))

	pl.cleanup()

	// Entries below the lowest cursor are gone
	read, err := pl.ReadFrom(0, 200)
	require.NoError(t, err)
	require.NotEmpty(t, read)
	assert.Equal(t, uint64(128), read[0].SeqNum)
	assert.Equal(t, uint64(200), read[len(read)-1].SeqNum)
}

func TestPublishLogMultipleSinks(t *testing.T) {
	pl, err := NewPublishLog(t.TempDir())
	require.NoError(t, err)
	defer pl.Close()

	require.NoError(t, pl.Append(newLogEvents(50, "Q")))

	require.NoError(t, pl.AdvanceCursor("fast", 40))
	require.NoError(t, pl.AdvanceCursor("slow", 10))

	fast, err := pl.GetCursor("fast")
	require.NoError(t, err)
	slow, err := pl.GetCursor("slow")
	require.NoError(t, err)

	fastEvents, err := pl.ReadFrom(fast, 100)
	require.NoError(t, err)
	assert.Len(t, fastEvents, 10)

	slowEvents, err := pl.ReadFrom(slow, 100)
	require.NoError(t, err)
	assert.Len(t, slowEvents, 40)
}

func TestPublishLogConcurrentAppends(t *testing.T) {
	pl, err := NewPublishLog(t.TempDir())
	require.NoError(t, err)
	defer pl.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				assert.NoError(t, pl.Append(newLogEvents(1, fmt.Sprintf("Q%d", id))))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, uint64(200), pl.LastSeq())

	read, err := pl.ReadFrom(0, 500)
	require.NoError(t, err)
	require.Len(t, read, 200)
	for i, ev := range read {
		assert.Equal(t, uint64(i+1), ev.SeqNum)
	}
}

func TestPublishLogClosed(t *testing.T) {
	pl, err := NewPublishLog(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, pl.Close())

	assert.ErrorIs(t, pl.Close(), ErrLogClosed)
	assert.ErrorIs(t, pl.Append(newLogEvents(1, "Q")), ErrLogClosed)
	_, err = pl.ReadFrom(0, 1)
	assert.ErrorIs(t, err, ErrLogClosed)
	_, err = pl.GetCursor("s")
	assert.ErrorIs(t, err, ErrLogClosed)
	assert.ErrorIs(t, pl.AdvanceCursor("s", 1), ErrLogClosed)
}

func TestFormatPubLogKey(t *testing.T) {
	assert.Equal(t, "/publog/0000000000000001", formatPubLogKey(1))
	assert.Equal(t, "/publog/00000000000000ff", formatPubLogKey(255))
	assert.Equal(t, "/publog/ffffffffffffffff", formatPubLogKey(^uint64(0)))

	// Zero padding keeps byte order equal to numeric order
	assert.Less(t, formatPubLogKey(9), formatPubLogKey(10))
}

func TestPrefixUpperBound(t *testing.T) {
	tests := []struct {
		prefix   []byte
		expected []byte
	}{
		{[]byte("/publog/"), []byte("/publog0")},
		{[]byte("/a"), []byte("/b")},
		{[]byte{0x00}, []byte{0x01}},
		{[]byte{0xff}, nil},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, prefixUpperBound(tt.prefix), "prefix=%v", tt.prefix)
	}
}

func BenchmarkPublishLogAppend(b *testing.B) {
	pl, err := NewPublishLog(b.TempDir())
	require.NoError(b, err)
	defer pl.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = pl.Append(newLogEvents(1, "Q"))
	}
}
