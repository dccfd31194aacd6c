// Package client subscribes to the live event stream of a room and keeps it
// alive across transport failures.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raiich/roomstream/internal/log"
	liblog "github.com/raiich/roomstream/lib/log"
	"github.com/raiich/roomstream/lib/state"
	"github.com/raiich/roomstream/lib/task"
	"github.com/raiich/roomstream/stream"
)

// TerminalErrorMessage is reported once every reconnect attempt has failed.
const TerminalErrorMessage = "Connection failed. Please refresh the page."

// ReconnectingMessage is reported while reconnect attempt n is pending.
func ReconnectingMessage(n int) string {
	return fmt.Sprintf("Reconnecting... (attempt %d)", n)
}

// Snapshot is the observable state of a Subscription.
type Snapshot struct {
	Room   string
	Status stream.Status
	// LatestEvent is the last decoded event, control events included. Nil until one arrives.
	LatestEvent *stream.Event
	// ErrorMessage is empty while healthy.
	ErrorMessage string
}

// Transition describes one state machine step of a Subscription.
type Transition struct {
	Room string
	From string
	To   string
	// Attempt is the reconnect attempt counter after the step.
	Attempt int
	// Delay is set when To is "backoff".
	Delay time.Duration
	// Err is the failure that caused a "backoff" or "exhausted" step.
	Err error
}

type attempt struct {
	seq  uint64
	conn stream.Conn
}

// Subscription is the live stream of one room.
// The getters may be called from any goroutine.
type Subscription struct {
	room     string
	url      string
	settings *settings
	logger   *slog.Logger
	logCtx   context.Context

	dispatcher     stream.Dispatcher
	ownsDispatcher bool
	lifetime       context.Context
	cancel         context.CancelFunc

	// owned by the dispatcher
	state    state.LoggingCurrentState[subscriptionState]
	attempts int
	seq      uint64
	current  *attempt

	disposed atomic.Bool
	done     chan struct{}

	mu       sync.RWMutex
	snapshot Snapshot
}

// Subscribe opens the stream of room at <endpoint>/chat/<room>/stream.
// An empty room yields an idle Subscription that never connects.
// The Subscription must be released with Dispose or Close.
func Subscribe(room, endpoint string, opts ...Option) *Subscription {
	settings := newSettings(opts...)
	s := &Subscription{
		room:     room,
		settings: settings,
		logger:   settings.logger,
		logCtx:   liblog.WithAttrs(context.Background(), slog.String("room", room)),
		done:     make(chan struct{}),
		snapshot: Snapshot{Room: room, Status: stream.Disconnected},
	}
	s.state.Logger = s.logger
	s.state.Context = s.logCtx
	s.state.Set(&idleState{ignoreState{sub: s}})
	s.state.OnTransition = s.onTransition

	if room == "" {
		s.logger.DebugContext(s.logCtx, "no room, staying idle")
		return s
	}
	s.url = stream.StreamURL(endpoint, room)
	s.lifetime, s.cancel = context.WithCancel(context.Background())

	if settings.dispatcher != nil {
		s.dispatcher = settings.dispatcher
	} else {
		d := task.NewAsyncDispatcher(context.Background(), task.WithClock(settings.clock))
		go func() {
			log.OnError(d.Launch())
		}()
		s.dispatcher = d
		s.ownsDispatcher = true
	}

	ctx, cancel := context.WithTimeout(s.dispatcher.Context(), invokeTimeout)
	defer cancel()
	s.dispatcher.InvokeFunc(ctx, s.connect)
	return s
}

func (s *Subscription) Room() string {
	return s.room
}

func (s *Subscription) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

func (s *Subscription) LatestEvent() *stream.Event {
	return s.Snapshot().LatestEvent
}

func (s *Subscription) Status() stream.Status {
	return s.Snapshot().Status
}

func (s *Subscription) ErrorMessage() string {
	return s.Snapshot().ErrorMessage
}

// Dispose stops the subscription without waiting for teardown.
// After it returns the observables never change again. It is idempotent.
// With a MutexDispatcher it must not be called from a listener.
func (s *Subscription) Dispose() {
	s.mu.Lock()
	first := s.disposed.CompareAndSwap(false, true)
	s.mu.Unlock()
	if !first {
		return
	}
	if s.dispatcher == nil {
		close(s.done)
		return
	}
	if s.dispatcher.Context().Err() != nil {
		// nothing runs on a stopped dispatcher any more
		s.teardown()
		return
	}
	ctx, cancel := context.WithTimeout(s.dispatcher.Context(), invokeTimeout)
	defer cancel()
	s.dispatcher.InvokeFunc(ctx, s.teardown)
}

// Close disposes the subscription and waits until its connection is released.
func (s *Subscription) Close(ctx context.Context) error {
	s.Dispose()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// Done is closed once teardown has finished.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) connect() {
	if s.disposed.Load() {
		return
	}
	s.closeConn()
	s.seq++
	a := &attempt{seq: s.seq}
	s.current = a
	s.state.Set(&connectingState{ignoreState{sub: s}})
	s.logger.DebugContext(s.logCtx, "opening stream", "url", s.url, "attempt", a.seq)

	conn, err := s.settings.transport.Open(s.lifetime, s.url, &attemptHandler{sub: s, attempt: a})
	if err != nil {
		s.current = nil
		s.logger.ErrorContext(s.logCtx, "failed to open stream", "url", s.url, "error", err)
		s.state.Set(&exhaustedState{ignoreState: ignoreState{sub: s}, cause: err})
		s.publish(func(snap *Snapshot) {
			snap.Status = stream.Disconnected
			snap.ErrorMessage = err.Error()
		})
		return
	}
	a.conn = conn
}

func (s *Subscription) opened() {
	s.logger.InfoContext(s.logCtx, "connected", "previous_attempts", s.attempts)
	s.attempts = 0
	s.state.Set(&connectedState{ignoreState{sub: s}})
	s.publish(func(snap *Snapshot) {
		snap.Status = stream.Connected
		snap.ErrorMessage = ""
	})
}

func (s *Subscription) receive(frame *stream.Frame) {
	ev, err := stream.DecodeEvent(frame.Data, s.settings.now())
	if err != nil {
		s.logger.WarnContext(s.logCtx, "dropping malformed frame", "error", err, "size", len(frame.Data))
		return
	}
	if ev.Type == stream.TypeHeartbeat {
		s.logger.DebugContext(s.logCtx, "heartbeat")
	}
	s.publish(func(snap *Snapshot) {
		snap.LatestEvent = ev
	})
}

func (s *Subscription) fail(cause error) {
	s.closeConn()
	backoff := s.settings.backoff
	if s.attempts >= backoff.MaxAttempts {
		s.logger.ErrorContext(s.logCtx, "giving up reconnecting", "attempts", s.attempts, "error", cause)
		s.state.Set(&exhaustedState{ignoreState: ignoreState{sub: s}, cause: cause})
		s.publish(func(snap *Snapshot) {
			snap.Status = stream.Disconnected
			snap.ErrorMessage = TerminalErrorMessage
		})
		return
	}

	s.attempts++
	delay := backoff.Delay(s.attempts)
	s.logger.WarnContext(s.logCtx, "stream failed, reconnecting",
		"error", cause, "attempt", s.attempts, "max_attempts", backoff.MaxAttempts, "delay", delay)
	s.state.Set(&backoffState{ignoreState: ignoreState{sub: s}, attempt: s.attempts, delay: delay, cause: cause})
	log.OnError(s.state.AfterFunc(s.dispatcher, delay, s.connect))
	n := s.attempts
	s.publish(func(snap *Snapshot) {
		snap.Status = stream.Disconnected
		snap.ErrorMessage = ReconnectingMessage(n)
	})
}

func (s *Subscription) closeConn() {
	if s.current == nil {
		return
	}
	if s.current.conn != nil {
		log.OnError(s.current.conn.Close())
	}
	s.current = nil
}

// publish applies update unless the subscription is disposed and notifies the listener.
func (s *Subscription) publish(update func(snap *Snapshot)) {
	s.mu.Lock()
	if s.disposed.Load() {
		s.mu.Unlock()
		return
	}
	update(&s.snapshot)
	snap := s.snapshot
	s.mu.Unlock()

	if s.settings.listener != nil {
		s.settings.listener(snap)
	}
}

func (s *Subscription) teardown() {
	s.state.Set(&disposedState{ignoreState{sub: s}})
	s.closeConn()
	s.cancel()
	if s.ownsDispatcher {
		log.OnError(s.dispatcher.Stop())
	}
	s.logger.DebugContext(s.logCtx, "subscription disposed")
	close(s.done)
}

func (s *Subscription) onTransition(from, to subscriptionState) {
	if s.settings.transitionHook == nil {
		return
	}
	tr := Transition{
		Room:    s.room,
		From:    from.String(),
		To:      to.String(),
		Attempt: s.attempts,
	}
	switch st := to.(type) {
	case *backoffState:
		tr.Delay = st.delay
		tr.Err = st.cause
	case *exhaustedState:
		tr.Err = st.cause
	}
	s.settings.transitionHook(tr)
}
