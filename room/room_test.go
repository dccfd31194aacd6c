package room

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raiich/roomstream/client"
	"github.com/raiich/roomstream/internal/streamtest"
	"github.com/raiich/roomstream/lib/must"
	"github.com/raiich/roomstream/lib/task"
	"github.com/raiich/roomstream/stream"
)

type fakeTransport struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (t *fakeTransport) Open(_ context.Context, rawURL string, handler stream.Handler) (stream.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := &fakeConn{url: rawURL, handler: handler}
	t.conns = append(t.conns, c)
	return c, nil
}

func (t *fakeTransport) conn(i int) *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[i]
}

type fakeConn struct {
	url     string
	handler stream.Handler
	closed  bool
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func newFollower(t *testing.T) (*Follower, *fakeTransport, *task.ManualClock, *[]client.Snapshot) {
	transport := &fakeTransport{}
	clock := &task.ManualClock{}
	var snapshots []client.Snapshot
	f := &Follower{
		Endpoint: "http://stream.test",
		Options:  []client.Option{client.WithTransport(transport)},
		Settings: &Settings{DispatcherType: DispatcherTypeMutex, Clock: clock},
		OnSnapshot: func(s client.Snapshot) {
			snapshots = append(snapshots, s)
		},
	}
	t.Cleanup(func() {
		assert.NoError(t, f.Close(context.Background()))
	})
	return f, transport, clock, &snapshots
}

func TestFollower_SwitchReleasesPreviousRoom(t *testing.T) {
	ctx := context.Background()
	f, transport, clock, snapshots := newFollower(t)

	require.NoError(t, f.Follow(ctx, "a"))
	a := transport.conn(0)
	assert.Equal(t, "http://stream.test/chat/a/stream", a.url)
	a.handler.OnOpen()
	a.handler.OnFrame(&stream.Frame{Data: []byte(`{"text":"from a"}`)})
	a.handler.OnError(errors.New("reset"))
	require.Len(t, clock.Pending(), 1)
	assert.Equal(t, client.ReconnectingMessage(1), f.Snapshot().ErrorMessage)

	require.NoError(t, f.Follow(ctx, "b"))
	assert.True(t, a.closed)
	assert.Empty(t, clock.Pending(), "reconnect of a still pending")
	assert.Equal(t, ID("b"), f.Room())

	b := transport.conn(1)
	assert.Equal(t, "http://stream.test/chat/b/stream", b.url)
	notified := len(*snapshots)

	a.handler.OnOpen()
	a.handler.OnFrame(&stream.Frame{Data: []byte(`{"text":"late from a"}`)})
	clock.Advance(time.Minute)

	snap := f.Snapshot()
	assert.Equal(t, "b", snap.Room)
	assert.Nil(t, snap.LatestEvent)
	assert.Equal(t, stream.Disconnected, snap.Status)
	assert.Empty(t, snap.ErrorMessage)
	assert.Len(t, *snapshots, notified)

	b.handler.OnOpen()
	b.handler.OnFrame(&stream.Frame{Data: []byte(`{"text":"from b"}`)})
	last := (*snapshots)[len(*snapshots)-1]
	assert.Equal(t, "b", last.Room)
	assert.Equal(t, "from b", last.LatestEvent.TextValue())
	for _, s := range (*snapshots)[notified:] {
		assert.Equal(t, "b", s.Room)
	}
}

func TestFollower_EmptyRoomIsIdle(t *testing.T) {
	ctx := context.Background()
	f, transport, _, _ := newFollower(t)

	require.NoError(t, f.Follow(ctx, ""))
	assert.Empty(t, transport.conns)
	assert.Equal(t, ID(""), f.Room())
	assert.Equal(t, client.Snapshot{}, f.Snapshot())

	require.NoError(t, f.Follow(ctx, "a"))
	require.NoError(t, f.Follow(ctx, ""))
	assert.True(t, transport.conn(0).closed)
	assert.Equal(t, client.Snapshot{}, f.Snapshot())
}

func TestFollower_ServerSentEvents(t *testing.T) {
	server := streamtest.NewServer(t)
	ctx := context.Background()

	var mu sync.Mutex
	var rooms []string
	f := &Follower{
		Endpoint: server.Endpoint(),
		OnSnapshot: func(s client.Snapshot) {
			mu.Lock()
			defer mu.Unlock()
			rooms = append(rooms, s.Room)
		},
	}
	defer func() {
		assert.NoError(t, f.Close(ctx))
	}()

	require.NoError(t, f.Follow(ctx, "a"))
	require.Eventually(t, func() bool {
		return f.Snapshot().Status == stream.Connected
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, f.Follow(ctx, "b"))
	mu.Lock()
	switched := len(rooms)
	mu.Unlock()
	require.Eventually(t, func() bool {
		return f.Snapshot().Status == stream.Connected && server.Active("a") == 0
	}, 5*time.Second, 10*time.Millisecond)

	server.Send("b", `{"text":"hello b"}`)
	require.Eventually(t, func() bool {
		ev := f.Snapshot().LatestEvent
		return ev != nil && ev.TextValue() == "hello b"
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, r := range rooms[switched:] {
		assert.Equal(t, "b", r)
	}
}

func TestParseDispatcherType(t *testing.T) {
	tests := []struct {
		in      string
		want    DispatcherType
		wantErr bool
	}{
		{in: "", want: DispatcherTypeAsync},
		{in: "async", want: DispatcherTypeAsync},
		{in: "MUTEX", want: DispatcherTypeMutex},
		{in: "actor", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDispatcherType(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, got, must.Must(ParseDispatcherType(got.String())))
	}
}

func TestSettings_Dispatcher(t *testing.T) {
	d := (&Settings{DispatcherType: DispatcherTypeMutex}).Dispatcher()
	_, ok := d.(*task.MutexDispatcher)
	assert.True(t, ok)
	assert.NoError(t, d.Stop())

	d = (&Settings{}).Dispatcher()
	_, ok = d.(*task.AsyncDispatcher)
	assert.True(t, ok)
	assert.NoError(t, d.Stop())
}
