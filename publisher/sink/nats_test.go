package sink

import "testing"

func TestSanitizeStreamName(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"notifylist.orders", "notifylist_orders"},
		{"orders", "orders"},
		{"a.b.c", "a_b_c"},
		{"q:1 x", "q:1_x"},
		{"a*b>c/d", "a_b_c_d"},
	}

	for _, tt := range tests {
		if got := sanitizeStreamName(tt.topic); got != tt.want {
			t.Errorf("sanitizeStreamName(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}
