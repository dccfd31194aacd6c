package state

import (
	"fmt"
	"time"

	"github.com/raiich/roomstream/lib/task"
)

type State interface {
	fmt.Stringer
}

// CurrentState holds the active state and at most one timer owned by it.
// Set stops the timer, so a timer never fires into a state other than the one that armed it.
// Not safe for concurrent use; call it from a single dispatcher.
type CurrentState[S State] struct {
	current S
	timer   task.Timer
}

func (m *CurrentState[S]) Get() S {
	return m.current
}

func (m *CurrentState[S]) Set(next S) {
	m.StopTimer()
	m.current = next
}

// StopTimer cancels the pending timer, if any, and reports whether one was pending.
func (m *CurrentState[S]) StopTimer() bool {
	if m.timer == nil {
		return false
	}
	stopped := m.timer.Stop()
	m.timer = nil
	return stopped
}

func (m *CurrentState[S]) TimerPending() bool {
	return m.timer != nil
}

func (m *CurrentState[S]) AfterFunc(dispatcher Dispatcher, d time.Duration, f func()) error {
	if m.timer != nil {
		return fmt.Errorf("timer already set")
	}
	m.timer = dispatcher.AfterFunc(d, func() {
		m.timer = nil
		f()
	})
	return nil
}

type Dispatcher interface {
	AfterFunc(duration time.Duration, f func()) task.Timer
}
