package task

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/raiich/roomstream/lib/errors"
)

const (
	defaultEnqueueTimeout = 8 * time.Second
	defaultTaskQueueSize  = 256
)

// AsyncDispatcher executes Task sequentially in Run loop.
type AsyncDispatcher struct {
	queue   Queue[Task]
	clock   Clock
	started atomic.Bool
}

func (d *AsyncDispatcher) Context() context.Context {
	return d.queue.ctx
}

func (d *AsyncDispatcher) Launch() error {
	return d.Run()
}

// Run execute Task in Run loop.
// Call Stop or StopByError to exit Run.
func (d *AsyncDispatcher) Run() error {
	if !d.started.CompareAndSwap(false, true) { // avoid multiple start
		return fmt.Errorf("dispatcher already started")
	}

	defer func() { _ = d.StopByError(fmt.Errorf("dispatcher is finished")) }()
	for {
		task, err := d.queue.Dequeue()
		if err != nil {
			if errors.Is(err, ErrClosedQueue) {
				// ErrClosedQueue is ok
				return nil
			}
			return err
		}
		task.Exec()
	}
}

// Stop is used to stop AsyncDispatcher immediately.
// Tasks still in the queue are discarded; enqueue a Task that calls Stop to drain them first.
func (d *AsyncDispatcher) Stop() error {
	return d.queue.Close()
}

// StopByError is used to stop AsyncDispatcher immediately with error.
// You can get error reason in Run method return value.
func (d *AsyncDispatcher) StopByError(reason error) error {
	return d.queue.closeByErr(reason)
}

// AfterFunc enqueues f to TaskQueue after specified duration.
func (d *AsyncDispatcher) AfterFunc(duration time.Duration, f func()) Timer {
	timer := &taskTimer{}
	timer.timer = d.clock.AfterFunc(duration, func() {
		ctx, cancel := context.WithTimeout(d.queue.ctx, defaultEnqueueTimeout)
		defer cancel()

		// enqueue task to execute f in same goroutine with Run loop
		d.InvokeFunc(ctx, func() {
			timer.tryFire(f)
		})
	})
	return timer
}

// InvokeFunc enqueues f to TaskQueue.
// A dispatcher that is already stopped drops f.
func (d *AsyncDispatcher) InvokeFunc(ctx context.Context, f func()) {
	if err := d.queue.Enqueue(ctx, f); err != nil {
		_ = d.StopByError(err)
	}
}

// InvokeSync enqueues f and waits until it has run.
// It must not be called from the Run loop itself.
func (d *AsyncDispatcher) InvokeSync(ctx context.Context, f func()) error {
	done := make(chan struct{})
	if err := d.queue.Enqueue(ctx, func() {
		defer close(done)
		f()
	}); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-d.queue.ctx.Done():
		select {
		case <-done:
			return nil
		default:
			return context.Cause(d.queue.ctx)
		}
	case <-done:
		return nil
	}
}

func NewAsyncDispatcher(parent context.Context, opts ...DispatcherOption) *AsyncDispatcher {
	settings := newDispatcherSettings(opts...)
	ctx, cancel := context.WithCancelCause(parent)
	return &AsyncDispatcher{
		queue: Queue[Task]{
			queue:  make(chan Task, settings.queueSize),
			ctx:    ctx,
			cancel: cancel,
		},
		clock: settings.clock,
	}
}

type DispatcherOption interface {
	apply(settings *dispatcherSettings)
}

type dispatcherOptionFunc func(settings *dispatcherSettings)

func (f dispatcherOptionFunc) apply(settings *dispatcherSettings) {
	f(settings)
}

type dispatcherSettings struct {
	clock     Clock
	queueSize int
}

func newDispatcherSettings(opts ...DispatcherOption) *dispatcherSettings {
	settings := &dispatcherSettings{
		clock:     SystemClock{},
		queueSize: defaultTaskQueueSize,
	}
	for _, opt := range opts {
		opt.apply(settings)
	}
	return settings
}

// WithClock replaces the wall clock used by AfterFunc.
func WithClock(clock Clock) DispatcherOption {
	return dispatcherOptionFunc(func(settings *dispatcherSettings) {
		settings.clock = clock
	})
}

// WithQueueSize sets the capacity of the AsyncDispatcher task queue.
func WithQueueSize(size int) DispatcherOption {
	return dispatcherOptionFunc(func(settings *dispatcherSettings) {
		settings.queueSize = size
	})
}
