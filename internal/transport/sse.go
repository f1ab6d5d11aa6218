package transport

import (
	"bufio"
	"io"
	"strings"

	"github.com/lizzyg/llmbridge/internal/core"
)

// DoneEvent is the event type reported for an OpenAI-style "data: [DONE]" line.
const DoneEvent = "[DONE]"

// SSEReader parses a text/event-stream body. Lines are read without a size
// limit since inline image payloads can be several megabytes.
type SSEReader struct {
	r *bufio.Reader
}

var _ core.EventReader = (*SSEReader)(nil)

func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next event, or io.EOF when the body ends.
func (s *SSEReader) Next() (core.Event, error) {
	var ev core.Event
	var data []string
	hasData := false

	for {
		line, err := s.r.ReadString('\n')
		if err != nil && err != io.EOF {
			return core.Event{}, err
		}
		eof := err == io.EOF
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if hasData {
				ev.Data = strings.Join(data, "\n")
				return ev, nil
			}
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "event:"):
			ev.Type = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "id:"):
			ev.ID = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		case strings.HasPrefix(line, "data:"):
			d := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
			if d == DoneEvent {
				return core.Event{ID: ev.ID, Type: DoneEvent, Data: DoneEvent}, nil
			}
			data = append(data, d)
			hasData = true
		}

		if eof {
			if hasData {
				ev.Data = strings.Join(data, "\n")
				return ev, nil
			}
			return core.Event{}, io.EOF
		}
	}
}
