package transformer

import (
	"encoding/json"
	"fmt"

	"github.com/maxpert/notifylist/publisher"
)

func init() {
	publisher.RegisterTransformer("envelope", func() publisher.Transformer {
		return &EnvelopeTransformer{}
	})
}

// Envelope wraps a dispatch record with its routing metadata.
// Record holds the pushed bytes as a string because keys are not escaped
// and the record is not guaranteed to be valid JSON.
type Envelope struct {
	Seq         uint64 `json:"seq"`
	Destination string `json:"destination"`
	Key         string `json:"key"`
	Op          string `json:"op"`
	TsMs        int64  `json:"ts_ms"`
	NodeID      uint64 `json:"node_id"`
	Record      string `json:"record"`
}

// EnvelopeTransformer publishes events as JSON envelopes
type EnvelopeTransformer struct{}

// Transform marshals event into an Envelope
func (t *EnvelopeTransformer) Transform(event publisher.Event) ([]byte, error) {
	data, err := json.Marshal(Envelope{
		Seq:         event.SeqNum,
		Destination: event.Destination,
		Key:         event.Key,
		Op:          event.Op,
		TsMs:        event.PushedAt,
		NodeID:      event.NodeID,
		Record:      string(event.Record),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return data, nil
}
