package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Limits taken from Redis defaults
const (
	maxMultiBulkLength = 1024 * 1024
	maxBulkLength      = 512 * 1024 * 1024
	maxInlineLength    = 64 * 1024
)

// ProtocolError is a malformed request. The connection is closed after replying.
type ProtocolError struct {
	msg string
}

func (e *ProtocolError) Error() string {
	return "Protocol error: " + e.msg
}

func protocolErrorf(format string, args ...interface{}) error {
	return &ProtocolError{msg: fmt.Sprintf(format, args...)}
}

// Reader parses client requests: RESP multi-bulk arrays or inline commands.
type Reader struct {
	br *bufio.Reader
}

// NewReader wraps r
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// ReadCommand returns the next command with its arguments. Empty inline lines are skipped.
func (r *Reader) ReadCommand() ([]string, error) {
	for {
		b, err := r.br.Peek(1)
		if err != nil {
			return nil, err
		}

		if b[0] == '*' {
			return r.readMultiBulk()
		}

		args, err := r.readInline()
		if err != nil {
			return nil, err
		}
		if len(args) > 0 {
			return args, nil
		}
	}
}

func (r *Reader) readLine() (string, error) {
	line, err := r.br.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	if len(line) > maxInlineLength {
		return "", protocolErrorf("too big inline request")
	}
	return strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r"), nil
}

func (r *Reader) readInline() ([]string, error) {
	line, err := r.readLine()
	if err != nil {
		return nil, err
	}
	return strings.Fields(line), nil
}

func (r *Reader) readMultiBulk() ([]string, error) {
	line, err := r.readLine()
	if err != nil {
		return nil, err
	}

	n, err := strconv.Atoi(line[1:])
	if err != nil || n > maxMultiBulkLength {
		return nil, protocolErrorf("invalid multibulk length")
	}
	if n <= 0 {
		return []string{}, nil
	}

	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		line, err := r.readLine()
		if err != nil {
			return nil, err
		}
		if len(line) == 0 || line[0] != '$' {
			return nil, protocolErrorf("expected '$', got '%s'", firstChar(line))
		}

		size, err := strconv.Atoi(line[1:])
		if err != nil || size < 0 || size > maxBulkLength {
			return nil, protocolErrorf("invalid bulk length")
		}

		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r.br, buf); err != nil {
			return nil, err
		}
		if buf[size] != '\r' || buf[size+1] != '\n' {
			return nil, protocolErrorf("bulk string not terminated by CRLF")
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func firstChar(s string) string {
	if s == "" {
		return ""
	}
	return s[:1]
}

// Writer encodes RESP replies. Call Flush to send them.
type Writer struct {
	bw *bufio.Writer
}

// NewWriter wraps w
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

func (w *Writer) WriteSimple(s string) {
	w.bw.WriteByte('+')
	w.bw.WriteString(s)
	w.bw.WriteString("\r\n")
}

// WriteError writes msg as an error reply. msg should start with an error code such as ERR.
func (w *Writer) WriteError(msg string) {
	w.bw.WriteByte('-')
	w.bw.WriteString(strings.NewReplacer("\r", " ", "\n", " ").Replace(msg))
	w.bw.WriteString("\r\n")
}

func (w *Writer) WriteInt(n int64) {
	w.bw.WriteByte(':')
	w.bw.WriteString(strconv.FormatInt(n, 10))
	w.bw.WriteString("\r\n")
}

func (w *Writer) WriteBulk(b []byte) {
	w.bw.WriteByte('$')
	w.bw.WriteString(strconv.Itoa(len(b)))
	w.bw.WriteString("\r\n")
	w.bw.Write(b)
	w.bw.WriteString("\r\n")
}

func (w *Writer) WriteNull() {
	w.bw.WriteString("$-1\r\n")
}

func (w *Writer) WriteArray(items [][]byte) {
	w.bw.WriteByte('*')
	w.bw.WriteString(strconv.Itoa(len(items)))
	w.bw.WriteString("\r\n")
	for _, item := range items {
		w.WriteBulk(item)
	}
}

func (w *Writer) Flush() error {
	return w.bw.Flush()
}
