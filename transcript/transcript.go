// Package transcript turns the latest-event cell of a subscription into message history.
package transcript

import (
	"strings"
	"sync"

	"github.com/raiich/roomstream/stream"
)

const defaultLimit = 200

type Message struct {
	Identifier stream.Token
	Text       string
	Timestamp  stream.Token
}

type key struct {
	identifier stream.Token
	timestamp  stream.Token
}

func (m Message) key() key {
	return key{identifier: m.Identifier, timestamp: m.Timestamp}
}

// Transcript keeps committed messages, newest last, and the current draft.
// Control events are ignored. Safe for concurrent use.
type Transcript struct {
	mu       sync.Mutex
	limit    int
	messages []Message
	seen     map[key]struct{}
	draft    *Message
}

func New(opts ...Option) *Transcript {
	t := &Transcript{
		limit: defaultLimit,
		seen:  map[key]struct{}{},
	}
	for _, opt := range opts {
		opt.apply(t)
	}
	return t
}

type Option interface {
	apply(t *Transcript)
}

type optionFunc func(t *Transcript)

func (f optionFunc) apply(t *Transcript) {
	f(t)
}

// WithLimit bounds the history. Oldest messages are evicted first.
func WithLimit(n int) Option {
	return optionFunc(func(t *Transcript) {
		if n > 0 {
			t.limit = n
		}
	})
}

// Apply folds ev into the transcript and reports whether anything changed.
// The same event may be applied any number of times.
func (t *Transcript) Apply(ev *stream.Event) bool {
	if ev == nil || ev.IsControl() || ev.Text == nil {
		return false
	}
	m := Message{
		Identifier: ev.Identifier,
		Text:       *ev.Text,
		Timestamp:  ev.Timestamp,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !ev.IsFinal {
		if t.draft != nil && *t.draft == m {
			return false
		}
		t.draft = &m
		return true
	}

	if strings.TrimSpace(m.Text) == "" {
		return false
	}
	if _, ok := t.seen[m.key()]; ok {
		return false
	}
	t.messages = append(t.messages, m)
	t.seen[m.key()] = struct{}{}
	for len(t.messages) > t.limit {
		delete(t.seen, t.messages[0].key())
		t.messages = t.messages[1:]
	}
	t.draft = nil
	return true
}

func (t *Transcript) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Message(nil), t.messages...)
}

// Draft returns the in-progress message, if any.
func (t *Transcript) Draft() (Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.draft == nil {
		return Message{}, false
	}
	return *t.draft, true
}

func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = nil
	t.seen = map[key]struct{}{}
	t.draft = nil
}
