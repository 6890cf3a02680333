package server

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_MultiBulk(t *testing.T) {
	r := NewReader(strings.NewReader("*3\r\n$3\r\nSET\r\n$6\r\nuser:1\r\n$5\r\na b\r\n\r\n"))

	args, err := r.ReadCommand()
	require.NoError(t, err)
	assert.Equal(t, []string{"SET", "user:1", "a b\r\n"}, args)

	_, err = r.ReadCommand()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_Inline(t *testing.T) {
	r := NewReader(strings.NewReader("PING\r\n\r\nnotifylist.set  user:*   events\n"))

	args, err := r.ReadCommand()
	require.NoError(t, err)
	assert.Equal(t, []string{"PING"}, args)

	args, err = r.ReadCommand()
	require.NoError(t, err)
	assert.Equal(t, []string{"notifylist.set", "user:*", "events"}, args)
}

func TestReader_Pipelined(t *testing.T) {
	r := NewReader(strings.NewReader("*1\r\n$4\r\nPING\r\n*2\r\n$3\r\nGET\r\n$1\r\nk\r\n"))

	first, err := r.ReadCommand()
	require.NoError(t, err)
	second, err := r.ReadCommand()
	require.NoError(t, err)

	assert.Equal(t, []string{"PING"}, first)
	assert.Equal(t, []string{"GET", "k"}, second)
}

func TestReader_ProtocolErrors(t *testing.T) {
	for _, input := range []string{
		"*x\r\n",
		"*1\r\n:4\r\n",
		"*1\r\n$-4\r\n",
		"*1\r\n$4\r\nPINGxx",
	} {
		_, err := NewReader(strings.NewReader(input)).ReadCommand()
		var perr *ProtocolError
		assert.True(t, errors.As(err, &perr), "input %q: %v", input, err)
	}
}

func TestReader_TruncatedInput(t *testing.T) {
	_, err := NewReader(strings.NewReader("*2\r\n$3\r\nGET\r\n")).ReadCommand()
	assert.Error(t, err)

	_, err = NewReader(strings.NewReader("PING")).ReadCommand()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	w.WriteSimple("OK")
	w.WriteError("ERR bad\r\nthing")
	w.WriteInt(-2)
	w.WriteBulk([]byte("hi"))
	w.WriteNull()
	w.WriteArray([][]byte{[]byte("a"), []byte("")})
	require.NoError(t, w.Flush())

	assert.Equal(t, "+OK\r\n-ERR bad  thing\r\n:-2\r\n$2\r\nhi\r\n$-1\r\n*2\r\n$1\r\na\r\n$0\r\n\r\n", buf.String())
}
