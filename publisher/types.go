package publisher

// Event is one dispatch record mirrored to external brokers
type Event struct {
	SeqNum      uint64 `msgpack:"seq"`  // Monotonic sequence
	Destination string `msgpack:"dst"`  // Destination list the record was pushed to
	Key         string `msgpack:"key"`  // Key that changed
	Op          string `msgpack:"op"`   // set, expire or expired
	Record      []byte `msgpack:"rec"`  // Exact bytes pushed to the destination list
	PushedAt    int64  `msgpack:"ts"`   // Push time (unix ms)
	NodeID      uint64 `msgpack:"node"` // Originating node
}

// Sink represents a broker that receives mirrored records (e.g., Kafka, NATS)
type Sink interface {
	// Publish sends a message to the sink
	Publish(topic string, key string, value []byte) error
	// Close releases any resources held by the sink
	Close() error
}

// Transformer converts an event to the payload published to a sink
type Transformer interface {
	Transform(event Event) ([]byte, error)
}

// Filter determines whether an event should be published
type Filter interface {
	// Match returns true if records for destination should be published
	Match(destination string) bool
}
