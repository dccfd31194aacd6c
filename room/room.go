// Package room follows the stream of whichever room is currently selected.
package room

import (
	"context"
	"slices"
	"sync"

	"github.com/raiich/roomstream/client"
	"github.com/raiich/roomstream/internal/log"
	"github.com/raiich/roomstream/lib/errors"
)

type ID string

// Follower keeps one subscription open for the selected room.
// Selecting another room releases the previous subscription before the next one connects,
// so nothing from the previous room is ever reported under the new one.
type Follower struct {
	Endpoint string
	Options  []client.Option
	Settings *Settings
	// OnSnapshot receives every change of the followed room, on its dispatcher.
	OnSnapshot func(client.Snapshot)

	mu         sync.Mutex
	generation uint64
	current    *client.Subscription
	dispatcher Dispatcher
}

// Follow switches to room id. An empty id only releases the current room.
func (f *Follower) Follow(ctx context.Context, id ID) error {
	f.mu.Lock()
	f.generation++
	gen := f.generation
	prev, prevDispatcher := f.current, f.dispatcher
	f.current, f.dispatcher = nil, nil
	f.mu.Unlock()

	if prev != nil {
		if err := prev.Close(ctx); err != nil {
			return errors.Wrapf(err, "failed to release room %v", prev.Room())
		}
		log.OnError(prevDispatcher.Stop())
	}
	if id == "" {
		return nil
	}

	dispatcher := f.settings().Dispatcher()
	go func() {
		log.OnError(dispatcher.Launch())
	}()
	opts := append(slices.Clone(f.Options),
		client.WithDispatcher(dispatcher),
		client.WithListener(func(s client.Snapshot) {
			f.notify(gen, s)
		}),
	)
	sub := client.Subscribe(string(id), f.Endpoint, opts...)

	f.mu.Lock()
	if f.generation != gen {
		// overtaken by a concurrent Follow or Close
		f.mu.Unlock()
		sub.Dispose()
		log.OnError(dispatcher.Stop())
		return nil
	}
	f.current, f.dispatcher = sub, dispatcher
	f.mu.Unlock()
	return nil
}

// Room returns the followed room, or "" when idle.
func (f *Follower) Room() ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return ""
	}
	return ID(f.current.Room())
}

// Snapshot returns the state of the followed room. Idle followers report a disconnected empty room.
func (f *Follower) Snapshot() client.Snapshot {
	f.mu.Lock()
	sub := f.current
	f.mu.Unlock()
	if sub == nil {
		return client.Snapshot{}
	}
	return sub.Snapshot()
}

func (f *Follower) Close(ctx context.Context) error {
	return f.Follow(ctx, "")
}

func (f *Follower) notify(gen uint64, s client.Snapshot) {
	if f.OnSnapshot == nil {
		return
	}
	f.mu.Lock()
	stale := f.generation != gen
	f.mu.Unlock()
	if stale {
		log.Debug("dropping snapshot of previous room", "room", s.Room)
		return
	}
	f.OnSnapshot(s)
}

func (f *Follower) settings() *Settings {
	if f.Settings != nil {
		return f.Settings
	}
	return &Settings{}
}
