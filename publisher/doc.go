// Package publisher mirrors dispatch records to external brokers.
//
// Every record the dispatcher pushes successfully is handed to Registry.Mirror,
// which appends it to a Pebble-backed PublishLog. One Worker per configured sink
// tails the log, filters by destination, transforms the event and publishes it
// with exponential backoff. Each sink tracks its progress with a persisted
// cursor, so it resumes where it stopped after a restart.
//
// Key prefixes:
//
//	/publog/{seq:016x}       -> msgpack(Event)
//	/pubcursor/{sinkName}    -> uint64 (cursor)
//	/pubseq                  -> uint64 (last sequence)
//
// Topics are {topic_prefix}.{destination}. Messages are keyed by the changed
// key, so a Kafka partition sees every record for one key in push order.
//
// Delivery is at-least-once: the cursor advances only after a publish succeeds.
//
// # Cleanup
//
// Every 128 sequence numbers the log deletes entries below the lowest cursor
// across all sinks.
package publisher
