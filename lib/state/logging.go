package state

import (
	"context"
	"log/slog"
	"time"

	"github.com/raiich/roomstream/internal/log"
)

// LoggingCurrentState is a CurrentState that logs every transition and every
// armed timer, and reports transitions to OnTransition when it is set.
type LoggingCurrentState[S State] struct {
	base         CurrentState[S]
	Logger       *slog.Logger
	Context      context.Context
	OnTransition func(from, to S)
}

func (m *LoggingCurrentState[S]) Get() S {
	return m.base.Get()
}

func (m *LoggingCurrentState[S]) Set(next S) {
	from := m.base.Get()
	m.logger().DebugContext(m.context(), "state transition", "from", name(from), "to", name(next))
	m.base.Set(next)
	if m.OnTransition != nil {
		m.OnTransition(from, next)
	}
}

func (m *LoggingCurrentState[S]) StopTimer() bool {
	return m.base.StopTimer()
}

func (m *LoggingCurrentState[S]) TimerPending() bool {
	return m.base.TimerPending()
}

func (m *LoggingCurrentState[S]) AfterFunc(dispatcher Dispatcher, d time.Duration, f func()) error {
	m.logger().DebugContext(m.context(), "state AfterFunc", "state", name(m.base.Get()), "duration", d)
	return m.base.AfterFunc(dispatcher, d, f)
}

func (m *LoggingCurrentState[S]) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return log.Default()
}

func (m *LoggingCurrentState[S]) context() context.Context {
	if m.Context != nil {
		return m.Context
	}
	return context.Background()
}

func name(s State) string {
	if s == nil {
		return "<nil>"
	}
	return s.String()
}
