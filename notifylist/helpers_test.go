package notifylist

import (
	"fmt"
	"sync"

	"github.com/maxpert/notifylist/notify"
)

type pushCall struct {
	destination string
	record      string
}

// memQueue records pushes and fails for destinations listed in failFor
type memQueue struct {
	mu      sync.Mutex
	calls   []pushCall
	failFor map[string]bool
}

func newMemQueue() *memQueue {
	return &memQueue{failFor: make(map[string]bool)}
}

func (q *memQueue) Push(destination string, record []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.failFor[destination] {
		return fmt.Errorf("WRONGTYPE %s holds the wrong kind of value", destination)
	}
	q.calls = append(q.calls, pushCall{destination: destination, record: string(record)})
	return nil
}

func (q *memQueue) pushes() []pushCall {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]pushCall, len(q.calls))
	copy(out, q.calls)
	return out
}

func (q *memQueue) list(destination string) []string {
	var out []string
	for _, c := range q.pushes() {
		if c.destination == destination {
			out = append(out, c.record)
		}
	}
	return out
}

// countingSource wraps a Hub and counts Subscribe calls, optionally failing them
type countingSource struct {
	hub       *notify.Hub
	mu        sync.Mutex
	calls     int
	failTimes int
}

func newCountingSource() *countingSource {
	return &countingSource{hub: notify.NewHub()}
}

func (s *countingSource) Subscribe(classes notify.Class, handler notify.Handler) (func(), error) {
	s.mu.Lock()
	s.calls++
	if s.failTimes > 0 {
		s.failTimes--
		s.mu.Unlock()
		return nil, fmt.Errorf("notifications disabled")
	}
	s.mu.Unlock()
	return s.hub.Subscribe(classes, handler)
}

func (s *countingSource) subscribeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type mirrorCall struct {
	destination, key, op, record string
}

type recordingMirror struct {
	mu    sync.Mutex
	calls []mirrorCall
	err   error
}

func (m *recordingMirror) Mirror(destination, key, op string, record []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, mirrorCall{destination, key, op, string(record)})
	return m.err
}
