package client

import (
	"time"

	"github.com/raiich/roomstream/stream"
)

type subscriptionState interface {
	String() string
	onOpen()
	onFrame(frame *stream.Frame)
	onError(err error)
}

// ignoreState drops every callback. Only the connection states override it.
type ignoreState struct {
	sub *Subscription
}

func (s *ignoreState) onOpen() {
	s.sub.logger.DebugContext(s.sub.logCtx, "ignoring open", "state", s.sub.state.Get().String())
}

func (s *ignoreState) onFrame(*stream.Frame) {
	s.sub.logger.DebugContext(s.sub.logCtx, "ignoring frame", "state", s.sub.state.Get().String())
}

func (s *ignoreState) onError(err error) {
	s.sub.logger.DebugContext(s.sub.logCtx, "ignoring error", "state", s.sub.state.Get().String(), "error", err)
}

type idleState struct {
	ignoreState
}

func (s *idleState) String() string { return "idle" }

// connectingState waits for the first open of an attempt.
type connectingState struct {
	ignoreState
}

func (s *connectingState) String() string { return "connecting" }

func (s *connectingState) onOpen() {
	s.sub.opened()
}

func (s *connectingState) onError(err error) {
	s.sub.fail(err)
}

type connectedState struct {
	ignoreState
}

func (s *connectedState) String() string { return "connected" }

func (s *connectedState) onFrame(frame *stream.Frame) {
	s.sub.receive(frame)
}

func (s *connectedState) onError(err error) {
	s.sub.fail(err)
}

// backoffState waits for the retry timer of attempt.
type backoffState struct {
	ignoreState
	attempt int
	delay   time.Duration
	cause   error
}

func (s *backoffState) String() string { return "backoff" }

// exhaustedState is terminal: reconnects are exhausted or the transport refused the stream.
type exhaustedState struct {
	ignoreState
	cause error
}

func (s *exhaustedState) String() string { return "exhausted" }

type disposedState struct {
	ignoreState
}

func (s *disposedState) String() string { return "disposed" }
