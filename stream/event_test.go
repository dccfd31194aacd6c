package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	tests := []struct {
		name     string
		payload  string
		wantID   Token
		wantText string
		wantTS   Token
		final    bool
		typ      string
	}{
		{
			name:     "content with string id",
			payload:  `{"id":"m-1","text":"hello","timestamp":"2024-01-01T00:00:00Z","isFinal":true}`,
			wantID:   "m-1",
			wantText: "hello",
			wantTS:   "2024-01-01T00:00:00Z",
			final:    true,
		},
		{
			name:     "numeric id and timestamp keep literal text",
			payload:  `{"id":1718000000000,"text":"draft","timestamp":1718000000001}`,
			wantID:   "1718000000000",
			wantText: "draft",
			wantTS:   "1718000000001",
		},
		{
			name:     "identifier wins over id",
			payload:  `{"identifier":"a","id":"b","text":"x"}`,
			wantID:   "a",
			wantText: "x",
		},
		{
			name:    "heartbeat falls back to local identifier",
			payload: `{"type":"heartbeat"}`,
			wantID:  "1700000000123",
			typ:     TypeHeartbeat,
		},
		{
			name:    "null id falls back",
			payload: ` {"id":null,"type":"connection"} `,
			wantID:  "1700000000123",
			typ:     TypeConnection,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeEvent([]byte(tt.payload), now)
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, ev.Identifier)
			assert.Equal(t, tt.wantText, ev.TextValue())
			assert.Equal(t, tt.wantTS, ev.Timestamp)
			assert.Equal(t, tt.final, ev.IsFinal)
			assert.Equal(t, tt.typ, ev.Type)
			assert.JSONEq(t, tt.payload, string(ev.Raw))
		})
	}
}

func TestDecodeEvent_Malformed(t *testing.T) {
	for _, payload := range []string{
		"",
		"not json",
		"[1,2]",
		"null",
		"42",
		`{"text":`,
		`{"id":{"nested":true}}`,
		`{"isFinal":"yes"}`,
	} {
		t.Run(payload, func(t *testing.T) {
			ev, err := DecodeEvent([]byte(payload), time.Now())
			assert.Nil(t, ev)
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestEvent_IsControl(t *testing.T) {
	assert.True(t, (&Event{Type: TypeHeartbeat}).IsControl())
	assert.True(t, (&Event{Type: TypeConnection}).IsControl())
	assert.False(t, (&Event{Type: "message"}).IsControl())
	assert.False(t, (&Event{}).IsControl())
}

func TestStreamURL(t *testing.T) {
	assert.Equal(t, "http://localhost:3000/chat/room1/stream", StreamURL("http://localhost:3000", "room1"))
	assert.Equal(t, "http://localhost:3000/chat/room1/stream", StreamURL("http://localhost:3000/", "room1"))
	assert.Equal(t, "http://h/api/chat/a%2Fb/stream", StreamURL("http://h/api", "a/b"))
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "disconnected", Status(0).String())
	assert.Equal(t, "connected", Connected.String())
}
