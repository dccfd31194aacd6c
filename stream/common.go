package stream

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/raiich/roomstream/lib/task"
)

// Status is the connection status a subscription reports.
// There is no connecting state: it reflects only the last open or error.
type Status int

const (
	Disconnected Status = iota
	Connected
)

func (s Status) String() string {
	switch s {
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

type Dispatcher interface {
	Context() context.Context
	InvokeFunc(ctx context.Context, f func())
	AfterFunc(duration time.Duration, f func()) task.Timer
	Launch() error
	Stop() error
}

// StreamURL returns the stream location of room under endpoint: <endpoint>/chat/<room>/stream.
func StreamURL(endpoint, room string) string {
	return strings.TrimRight(endpoint, "/") + "/chat/" + url.PathEscape(room) + "/stream"
}
