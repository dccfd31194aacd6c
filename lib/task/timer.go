package task

import (
	"sync/atomic"
)

type Task func()

func (t Task) Exec() {
	t()
}

type Timer interface {
	Stop() bool
}

type taskTimer struct {
	finished atomic.Bool
	timer    Stopper
}

// tryFire executes Task if taskTimer.Stop is not called.
// If taskTimer.Stop is called immediately before the clock fires, Task will not be executed.
func (t *taskTimer) tryFire(task Task) {
	// finished is set before task runs, so Stop called inside task reports false.
	if t.finished.CompareAndSwap(false, true) {
		task.Exec()
	}
}

func (t *taskTimer) Stop() bool {
	if t.finished.CompareAndSwap(false, true) {
		_ = t.timer.Stop()
		return true
	}
	return false
}
