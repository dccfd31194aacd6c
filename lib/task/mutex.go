package task

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MutexDispatcher executes Task in the goroutine of the caller while holding a sync.Mutex.
// Tasks are serialized but not queued: InvokeFunc returns after f has run.
// f must not call InvokeFunc or InvokeSync of the same dispatcher.
type MutexDispatcher struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelCauseFunc
	clock  Clock
}

func (d *MutexDispatcher) Context() context.Context {
	return d.ctx
}

// InvokeFunc executes f in same goroutine of caller, using sync.Mutex.
// A stopped dispatcher drops f.
func (d *MutexDispatcher) InvokeFunc(_ context.Context, f func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx.Err() != nil {
		return
	}
	f()
}

func (d *MutexDispatcher) InvokeSync(ctx context.Context, f func()) error {
	if err := context.Cause(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx.Err() != nil {
		return context.Cause(d.ctx)
	}
	f()
	return nil
}

// AfterFunc executes f in the clock goroutine after specified duration, using sync.Mutex.
func (d *MutexDispatcher) AfterFunc(duration time.Duration, f func()) Timer {
	timer := &mutexTimer{
		dispatcher: d,
	}
	timer.timer = d.clock.AfterFunc(duration, func() {
		timer.tryFire(f)
	})
	return timer
}

// Launch blocks until the dispatcher is stopped.
func (d *MutexDispatcher) Launch() error {
	<-d.ctx.Done()
	return nil
}

func (d *MutexDispatcher) Stop() error {
	d.cancel(ErrClosedQueue)
	return nil
}

func (d *MutexDispatcher) StopByError(reason error) error {
	d.cancel(reason)
	return nil
}

func NewMutexDispatcher(parent context.Context, opts ...DispatcherOption) *MutexDispatcher {
	settings := newDispatcherSettings(opts...)
	ctx, cancel := context.WithCancelCause(parent)
	return &MutexDispatcher{
		ctx:    ctx,
		cancel: cancel,
		clock:  settings.clock,
	}
}

type mutexTimer struct {
	dispatcher *MutexDispatcher
	finished   atomic.Bool
	timer      Stopper
}

// tryFire executes Task if mutexTimer.Stop is not called.
// Stop does not take the dispatcher mutex, so it can be called from inside a dispatched Task.
func (t *mutexTimer) tryFire(task Task) {
	t.dispatcher.InvokeFunc(t.dispatcher.ctx, func() {
		if t.finished.CompareAndSwap(false, true) {
			task.Exec()
		}
	})
}

func (t *mutexTimer) Stop() bool {
	if t.finished.CompareAndSwap(false, true) {
		_ = t.timer.Stop()
		return true
	}
	return false
}
