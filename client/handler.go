package client

import (
	"context"
	"time"

	"github.com/raiich/roomstream/stream"
)

const invokeTimeout = 5 * time.Second

// attemptHandler moves the callbacks of one connection attempt onto the dispatcher.
// Callbacks of an attempt that is no longer current are dropped there.
type attemptHandler struct {
	sub     *Subscription
	attempt *attempt
}

func (h *attemptHandler) invokeFunc(callback string, f func(st subscriptionState)) {
	s := h.sub
	ctx, cancel := context.WithTimeout(s.dispatcher.Context(), invokeTimeout)
	defer cancel()
	s.dispatcher.InvokeFunc(ctx, func() {
		if s.disposed.Load() || s.current != h.attempt {
			s.logger.DebugContext(s.logCtx, "dropping stale callback", "callback", callback, "attempt", h.attempt.seq)
			return
		}
		f(s.state.Get())
	})
}

func (h *attemptHandler) OnOpen() {
	h.invokeFunc("open", func(st subscriptionState) {
		h.sub.logger.DebugContext(h.sub.logCtx, "stream opened", "attempt", h.attempt.seq)
		st.onOpen()
	})
}

func (h *attemptHandler) OnFrame(frame *stream.Frame) {
	h.invokeFunc("frame", func(st subscriptionState) {
		st.onFrame(frame)
	})
}

func (h *attemptHandler) OnError(err error) {
	h.invokeFunc("error", func(st subscriptionState) {
		h.sub.logger.DebugContext(h.sub.logCtx, "stream error", "attempt", h.attempt.seq, "error", err)
		st.onError(err)
	})
}
