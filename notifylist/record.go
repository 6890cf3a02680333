package notifylist

const (
	recordKeyOpen = `{"key":"`
	recordOpField = `","op":"`
	recordClose   = `"}`
	recordFrame   = len(recordKeyOpen) + len(recordOpField) + len(recordClose)
)

// Format builds the dispatch record pushed for one match:
//
//	{"key":"<key>","op":"<op>"}
//
// key and op are copied verbatim. Consumers parse this exact shape, so quotes or
// control characters inside a key are not escaped and yield invalid JSON.
func Format(key, op string) []byte {
	buf := make([]byte, 0, recordFrame+len(key)+len(op))
	buf = append(buf, recordKeyOpen...)
	buf = append(buf, key...)
	buf = append(buf, recordOpField...)
	buf = append(buf, op...)
	buf = append(buf, recordClose...)
	return buf
}
