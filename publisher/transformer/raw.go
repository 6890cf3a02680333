// Package transformer holds the payload formats a publisher sink can emit.
package transformer

import "github.com/maxpert/notifylist/publisher"

func init() {
	publisher.RegisterTransformer("raw", func() publisher.Transformer {
		return &RawTransformer{}
	})
}

// RawTransformer publishes the dispatch record exactly as it was pushed
type RawTransformer struct{}

// Transform returns a copy of the record bytes
func (t *RawTransformer) Transform(event publisher.Event) ([]byte, error) {
	return append([]byte(nil), event.Record...), nil
}
