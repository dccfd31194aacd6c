package room

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/raiich/roomstream/lib/task"
)

type DispatcherType int

const (
	DispatcherTypeAsync DispatcherType = iota
	DispatcherTypeMutex
)

func (t DispatcherType) String() string {
	switch t {
	case DispatcherTypeMutex:
		return "mutex"
	default:
		return "async"
	}
}

// ParseDispatcherType accepts "async" and "mutex". Empty means async.
func ParseDispatcherType(s string) (DispatcherType, error) {
	switch strings.ToLower(s) {
	case "", "async":
		return DispatcherTypeAsync, nil
	case "mutex":
		return DispatcherTypeMutex, nil
	default:
		return 0, fmt.Errorf("unknown dispatcher type: %q", s)
	}
}

type Dispatcher interface {
	Context() context.Context
	AfterFunc(duration time.Duration, f func()) task.Timer
	InvokeFunc(ctx context.Context, f func())
	InvokeSync(ctx context.Context, f func()) error
	Launch() error
	Stop() error
	StopByError(reason error) error
}

type Settings struct {
	Context        context.Context
	DispatcherType DispatcherType
	// Clock drives reconnect timers. Nil means wall time.
	Clock task.Clock
}

// Dispatcher builds a dispatcher for one subscription. The caller launches and stops it.
func (s *Settings) Dispatcher() Dispatcher {
	ctx := s.Context
	if ctx == nil {
		ctx = context.Background()
	}
	var opts []task.DispatcherOption
	if s.Clock != nil {
		opts = append(opts, task.WithClock(s.Clock))
	}
	switch s.DispatcherType {
	case DispatcherTypeAsync:
		return task.NewAsyncDispatcher(ctx, opts...)
	case DispatcherTypeMutex:
		return task.NewMutexDispatcher(ctx, opts...)
	default:
		return task.NewAsyncDispatcher(ctx, opts...)
	}
}
