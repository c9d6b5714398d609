package domain

import (
	"encoding/json"
	"strings"
)

// LogBuffer accumulates log lines. It is append-only and is serialised as a single JSON string.
// A LogBuffer is not safe for concurrent use; the owner of the enclosing tree serialises access.
type LogBuffer struct {
	data []byte
}

// NewLogBuffer returns a buffer holding text verbatim.
func NewLogBuffer(text string) LogBuffer {
	return LogBuffer{data: []byte(text)}
}

// Append adds line followed by a newline.
func (l *LogBuffer) Append(line string) {
	l.data = append(l.data, line...)
	l.data = append(l.data, '\n')
}

// String returns the accumulated text.
func (l LogBuffer) String() string {
	return string(l.data)
}

// Len returns the size of the accumulated text in bytes.
func (l LogBuffer) Len() int {
	return len(l.data)
}

// Lines returns the accumulated lines without their terminating newlines.
func (l LogBuffer) Lines() []string {
	text := strings.TrimSuffix(string(l.data), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// Contains reports whether the buffer holds substr.
func (l LogBuffer) Contains(substr string) bool {
	return strings.Contains(string(l.data), substr)
}

func (l LogBuffer) clone() LogBuffer {
	if l.data == nil {
		return LogBuffer{}
	}
	return LogBuffer{data: append([]byte(nil), l.data...)}
}

// MarshalJSON encodes the buffer as a JSON string.
func (l LogBuffer) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(l.data))
}

// UnmarshalJSON decodes a JSON string into the buffer.
func (l *LogBuffer) UnmarshalJSON(b []byte) error {
	var text string
	if err := json.Unmarshal(b, &text); err != nil {
		return err
	}
	if text == "" {
		l.data = nil
		return nil
	}
	l.data = []byte(text)
	return nil
}
