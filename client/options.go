package client

import (
	"log/slog"
	"time"

	"github.com/raiich/roomstream/internal/log"
	"github.com/raiich/roomstream/lib/task"
	"github.com/raiich/roomstream/stream"
	"github.com/raiich/roomstream/stream/sse"
)

type Option interface {
	apply(settings *settings)
}

type optionFunc func(settings *settings)

func (f optionFunc) apply(settings *settings) {
	f(settings)
}

type settings struct {
	transport      stream.Transport
	dispatcher     stream.Dispatcher
	clock          task.Clock
	backoff        Backoff
	listener       func(Snapshot)
	transitionHook func(Transition)
	logger         *slog.Logger
	now            func() time.Time
}

func newSettings(opts ...Option) *settings {
	s := &settings{
		clock:   task.SystemClock{},
		backoff: DefaultBackoff(),
		logger:  log.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	if s.transport == nil {
		s.transport = sse.NewTransport(sse.WithLogger(s.logger))
	}
	return s
}

// WithTransport replaces the default server-sent events transport.
func WithTransport(t stream.Transport) Option {
	return optionFunc(func(s *settings) {
		s.transport = t
	})
}

// WithDispatcher runs the subscription on d instead of a private AsyncDispatcher.
// The caller keeps ownership of d: it must be launched and is not stopped by Dispose.
func WithDispatcher(d stream.Dispatcher) Option {
	return optionFunc(func(s *settings) {
		s.dispatcher = d
	})
}

// WithClock sets the clock of the private dispatcher. Ignored with WithDispatcher.
func WithClock(c task.Clock) Option {
	return optionFunc(func(s *settings) {
		s.clock = c
	})
}

func WithBackoff(b Backoff) Option {
	return optionFunc(func(s *settings) {
		s.backoff = b
	})
}

// WithListener registers f to receive the snapshot after every change.
// f runs on the dispatcher, in the order the transport delivered the changes.
func WithListener(f func(Snapshot)) Option {
	return optionFunc(func(s *settings) {
		s.listener = f
	})
}

// WithTransitionHook registers f to receive every state machine transition.
func WithTransitionHook(f func(Transition)) Option {
	return optionFunc(func(s *settings) {
		s.transitionHook = f
	})
}

func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(s *settings) {
		s.logger = logger
	})
}

// WithNow sets the time source for fallback event identifiers.
func WithNow(now func() time.Time) Option {
	return optionFunc(func(s *settings) {
		s.now = now
	})
}
