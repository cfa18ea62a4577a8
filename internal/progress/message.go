package progress

import (
	"encoding/json"
	"strings"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Done is the sentinel body that ends the stream of a correlation id.
const Done = "[DONE]"

// Message is one progress line. It is delivered to subscribers verbatim.
type Message struct {
	Level     Level  `json:"level"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// IsDone reports whether m is the end-of-stream sentinel.
func (m Message) IsDone() bool {
	return strings.HasPrefix(m.Message, Done)
}

// JSON returns the wire form used by the log stream endpoints.
func (m Message) JSON() []byte {
	data, _ := json.Marshal(m)
	return data
}
