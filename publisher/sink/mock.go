package sink

import "sync"

// MockSink records published messages for tests
type MockSink struct {
	Messages   []MockMessage
	PublishErr error // Returned by every Publish while set
	FailTimes  int   // Publish fails this many times before succeeding
	Attempts   int
	mu         sync.Mutex
}

// MockMessage represents a published message for testing
type MockMessage struct {
	Topic string
	Key   string
	Value []byte
}

// errMockTransient is returned while FailTimes is positive
type errMockTransient struct{}

func (errMockTransient) Error() string { return "mock sink: transient failure" }

// Publish records a message for later inspection in tests
func (m *MockSink) Publish(topic, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Attempts++
	if m.PublishErr != nil {
		return m.PublishErr
	}
	if m.FailTimes > 0 {
		m.FailTimes--
		return errMockTransient{}
	}

	m.Messages = append(m.Messages, MockMessage{
		Topic: topic,
		Key:   key,
		Value: append([]byte(nil), value...),
	})

	return nil
}

// Snapshot returns a copy of the recorded messages
func (m *MockSink) Snapshot() []MockMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockMessage, len(m.Messages))
	copy(out, m.Messages)
	return out
}

// Close is a no-op for MockSink
func (m *MockSink) Close() error {
	return nil
}

// Reset clears all recorded messages
func (m *MockSink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = nil
	m.Attempts = 0
}
