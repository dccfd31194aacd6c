package stream

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/raiich/roomstream/lib/errors"
)

// Reserved values of Event.Type. Neither carries user-visible content.
const (
	TypeHeartbeat  = "heartbeat"
	TypeConnection = "connection"
)

var ErrMalformedFrame = errors.New("malformed frame")

// Token is an opaque producer token that may arrive as a JSON string or number.
// Numbers keep their literal text.
type Token string

func (t *Token) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*t = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Token(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return errors.Newf("token must be a string or number: %s", data)
		}
		*t = Token(n.String())
		return nil
	}
}

func (t Token) String() string {
	return string(t)
}

// Event is one decoded frame of a room stream.
type Event struct {
	// Identifier is the producer's id, or a local millisecond timestamp when the frame has none.
	Identifier Token
	Text       *string
	Timestamp  Token
	IsFinal    bool
	Type       string
	// Raw is the frame payload as received.
	Raw json.RawMessage
}

// IsControl reports whether the event is a heartbeat or connection acknowledgement.
func (e *Event) IsControl() bool {
	return e.Type == TypeHeartbeat || e.Type == TypeConnection
}

// TextValue returns the text or "" when the frame carried none.
func (e *Event) TextValue() string {
	if e.Text == nil {
		return ""
	}
	return *e.Text
}

type wireEvent struct {
	ID         Token   `json:"id"`
	Identifier Token   `json:"identifier"`
	Text       *string `json:"text"`
	Timestamp  Token   `json:"timestamp"`
	IsFinal    bool    `json:"isFinal"`
	Type       string  `json:"type"`
}

// DecodeEvent parses a frame payload. The payload must be a JSON object.
// now supplies the fallback identifier.
func DecodeEvent(data []byte, now time.Time) (*Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.Wrapf(ErrMalformedFrame, "payload is not a JSON object")
	}
	var w wireEvent
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return nil, errors.Wrapf(ErrMalformedFrame, "%v", err)
	}
	id := w.Identifier
	if id == "" {
		id = w.ID
	}
	if id == "" {
		id = Token(strconv.FormatInt(now.UnixMilli(), 10))
	}
	return &Event{
		Identifier: id,
		Text:       w.Text,
		Timestamp:  w.Timestamp,
		IsFinal:    w.IsFinal,
		Type:       w.Type,
		Raw:        append(json.RawMessage(nil), trimmed...),
	}, nil
}
