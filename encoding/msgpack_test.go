package encoding

import (
	"sync"
	"testing"
)

type sample struct {
	Kind     uint8    `msgpack:"k"`
	Value    []byte   `msgpack:"v,omitempty"`
	List     [][]byte `msgpack:"l,omitempty"`
	ExpireAt int64    `msgpack:"x,omitempty"`
}

func TestMarshalUnmarshal_Struct(t *testing.T) {
	in := sample{
		Kind:     1,
		List:     [][]byte{[]byte(`{"key":"a","op":"set"}`), []byte("second")},
		ExpireAt: 1700000000000,
	}

	data, err := Marshal(&in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var out sample
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if out.Kind != in.Kind || out.ExpireAt != in.ExpireAt {
		t.Errorf("expected %+v, got %+v", in, out)
	}
	if len(out.List) != 2 || string(out.List[0]) != `{"key":"a","op":"set"}` || string(out.List[1]) != "second" {
		t.Errorf("list mismatch: %q", out.List)
	}
	if out.Value != nil {
		t.Errorf("expected omitted value to decode as nil, got %q", out.Value)
	}
}

func TestUnmarshal_InterfaceKeepsStrings(t *testing.T) {
	data, err := Marshal(map[string]interface{}{"key": "user:1"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var out map[string]interface{}
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if _, ok := out["key"].(string); !ok {
		t.Errorf("expected string, got %T", out["key"])
	}
}

func TestUnmarshal_Corrupted(t *testing.T) {
	var out sample
	if err := Unmarshal([]byte{0xc1}, &out); err == nil {
		t.Error("expected error for invalid msgpack data")
	}
}

func TestMarshal_Concurrent(t *testing.T) {
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				in := sample{Kind: uint8(id), ExpireAt: int64(j)}
				data, err := Marshal(&in)
				if err != nil {
					t.Errorf("Marshal failed: %v", err)
					return
				}
				var out sample
				if err := Unmarshal(data, &out); err != nil {
					t.Errorf("Unmarshal failed: %v", err)
					return
				}
				if out.Kind != uint8(id) || out.ExpireAt != int64(j) {
					t.Errorf("round trip mismatch: %+v", out)
					return
				}
			}
		}(i)
	}

	wg.Wait()
}
