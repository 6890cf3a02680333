package transformer_test

import (
	"fmt"

	"github.com/maxpert/notifylist/publisher"
	"github.com/maxpert/notifylist/publisher/transformer"
)

func ExampleEnvelopeTransformer() {
	event := publisher.Event{
		SeqNum:      1,
		Destination: "orders",
		Key:         "order:42",
		Op:          "expired",
		Record:      []byte(`{"key":"order:42","op":"expired"}`),
		PushedAt:    1700000000000,
		NodeID:      1,
	}

	data, err := (&transformer.EnvelopeTransformer{}).Transform(event)
	if err != nil {
		panic(err)
	}
	fmt.Println(string(data))
	// Output: {"seq":1,"destination":"orders","key":"order:42","op":"expired","ts_ms":1700000000000,"node_id":1,"record":"{\"key\":\"order:42\",\"op\":\"expired\"}"}
}
