// Package stream consumes the relayed SSE chat stream and rebuilds the
// in-flight assistant message from it.
package stream

import (
	"bufio"
	"bytes"
	"io"
)

// Event types carried by the chat stream.
const (
	EventMessage = "message"
	EventError   = "error"
)

// Event is one blank-line delimited SSE block.
type Event struct {
	Type string
	Data []byte
}

// Reader parses SSE blocks from a byte stream. Network reads may split or
// merge blocks arbitrarily; Reader only yields complete blocks.
type Reader struct {
	r *bufio.Reader
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next block. It returns io.EOF once the stream ended
// cleanly; a trailing block without its blank line is still returned first.
// Any other error is a transport failure.
func (s *Reader) Next() (Event, error) {
	var ev Event
	var data [][]byte
	started := false

	for {
		line, err := s.r.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return Event{}, err
		}
		eof := err == io.EOF

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			if started {
				ev.Data = bytes.Join(data, []byte("\n"))
				return ev, nil
			}
			if eof {
				return Event{}, io.EOF
			}
			continue
		}

		started = true
		switch {
		case bytes.HasPrefix(line, []byte("event:")):
			ev.Type = string(bytes.TrimSpace(line[len("event:"):]))
		case bytes.HasPrefix(line, []byte("data:")):
			value := line[len("data:"):]
			if len(value) > 0 && value[0] == ' ' {
				value = value[1:]
			}
			data = append(data, append([]byte(nil), value...))
		}
		// id:, retry: and ":" comments are ignored

		if eof {
			ev.Data = bytes.Join(data, []byte("\n"))
			return ev, nil
		}
	}
}
