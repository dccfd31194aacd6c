package stream

import (
	"context"
)

// Frame is one unit of data delivered by a Transport.
type Frame struct {
	// Name is the transport-level event name; empty for plain messages.
	Name string
	Data []byte
}

// Handler receives the callbacks of one opened connection, from a goroutine owned
// by the transport. OnOpen is called at most once and before any OnFrame; OnError
// is called at most once and ends the connection.
type Handler interface {
	OnOpen()
	OnFrame(frame *Frame)
	OnError(err error)
}

// Transport opens server-push connections.
// Open returns without waiting for the connection; an error means the connection
// could not even be attempted (for example a malformed URL).
type Transport interface {
	Open(ctx context.Context, rawURL string, handler Handler) (Conn, error)
}

// Conn is an opened connection. Close is idempotent and suppresses later Handler
// callbacks; a callback already racing with Close may still arrive, so receivers
// discard callbacks of connections they have closed.
type Conn interface {
	Close() error
}
