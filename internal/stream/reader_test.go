package stream

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkedReader hands out data in fixed-size reads, ignoring SSE framing.
type chunkedReader struct {
	data []byte
	size int
	err  error
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := r.size
	if n > len(r.data) {
		n = len(r.data)
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

func readAll(t *testing.T, r io.Reader) []Event {
	t.Helper()
	reader := NewReader(r)
	var events []Event
	for {
		ev, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return events
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
}

func TestReader_Blocks(t *testing.T) {
	raw := "event: message\ndata: {\"content\":\"0:\\\"a\\\"\"}\n\n" +
		": keep-alive\n\n" +
		"event: error\r\ndata: {\"error\":\"boom\"}\r\n\r\n"

	events := readAll(t, strings.NewReader(raw))

	require.Len(t, events, 3)
	assert.Equal(t, EventMessage, events[0].Type)
	assert.Equal(t, `{"content":"0:\"a\""}`, string(events[0].Data))
	assert.Equal(t, "", events[1].Type)
	assert.Equal(t, EventError, events[2].Type)
	assert.Equal(t, `{"error":"boom"}`, string(events[2].Data))
}

func TestReader_FragmentedReads(t *testing.T) {
	raw := "event: message\ndata: {\"content\":\"x\"}\n\nevent: message\ndata: {\"content\":\"y\"}\n\n"

	for _, size := range []int{1, 2, 3, 7, 16, 1024} {
		events := readAll(t, &chunkedReader{data: []byte(raw), size: size})
		require.Len(t, events, 2, "read size %d", size)
		assert.Equal(t, `{"content":"y"}`, string(events[1].Data))
	}
}

func TestReader_OneByteReader(t *testing.T) {
	raw := "event: message\ndata: {\"content\":\"z\"}\n\n"

	events := readAll(t, iotest.OneByteReader(strings.NewReader(raw)))

	require.Len(t, events, 1)
	assert.Equal(t, `{"content":"z"}`, string(events[0].Data))
}

func TestReader_TrailingBlockWithoutBlankLine(t *testing.T) {
	events := readAll(t, strings.NewReader("event: message\ndata: {\"content\":\"tail\"}"))

	require.Len(t, events, 1)
	assert.Equal(t, `{"content":"tail"}`, string(events[0].Data))
}

func TestReader_MultiLineData(t *testing.T) {
	events := readAll(t, strings.NewReader("event: message\ndata: a\ndata: b\n\n"))

	require.Len(t, events, 1)
	assert.Equal(t, "a\nb", string(events[0].Data))
}

func TestReader_TransportError(t *testing.T) {
	r := &chunkedReader{data: []byte("event: message\ndata: {\"con"), size: 4, err: io.ErrUnexpectedEOF}
	reader := NewReader(r)

	_, err := reader.Next()

	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
