package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raiich/roomstream/internal/streamtest"
	"github.com/raiich/roomstream/stream"
)

type recorder struct {
	mu     sync.Mutex
	opened int
	frames []*stream.Frame
	errs   []error
}

func (r *recorder) OnOpen() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened++
}

func (r *recorder) OnFrame(frame *stream.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame)
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) snapshot() (int, []string, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var data []string
	for _, f := range r.frames {
		data = append(data, string(f.Data))
	}
	return r.opened, data, append([]error(nil), r.errs...)
}

const waitFor = 5 * time.Second
const tick = 10 * time.Millisecond

func TestTransport_DeliversFrames(t *testing.T) {
	srv := streamtest.NewServer(t)
	rec := &recorder{}
	conn, err := NewTransport().Open(context.Background(), stream.StreamURL(srv.Endpoint(), "room1"), rec)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.Eventually(t, func() bool { return srv.Active("room1") == 1 }, waitFor, tick)
	srv.Send("room1", `{"type":"heartbeat"}`)
	srv.SendRaw("room1", ": keepalive comment\n\n")
	srv.SendRaw("room1", "event: presence\ndata: {\"who\":\"x\"}\n\n")
	srv.SendRaw("room1", "data: {\"text\":\ndata: \"multi\"}\n\n")
	srv.SendRaw("room1", "event: message\ndata: {\"text\":\"named message\"}\n\n")

	require.Eventually(t, func() bool {
		_, frames, _ := rec.snapshot()
		return len(frames) == 3
	}, waitFor, tick)
	opened, frames, errs := rec.snapshot()
	assert.Equal(t, 1, opened)
	assert.Equal(t, []string{
		`{"type":"heartbeat"}`,
		"{\"text\":\n\"multi\"}",
		`{"text":"named message"}`,
	}, frames)
	assert.Empty(t, errs)
}

func TestTransport_ServerCloseIsError(t *testing.T) {
	srv := streamtest.NewServer(t)
	rec := &recorder{}
	conn, err := NewTransport().Open(context.Background(), stream.StreamURL(srv.Endpoint(), "room1"), rec)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.Eventually(t, func() bool { return srv.Active("room1") == 1 }, waitFor, tick)
	srv.Drop("room1")

	require.Eventually(t, func() bool {
		_, _, errs := rec.snapshot()
		return len(errs) == 1
	}, waitFor, tick)
	_, _, errs := rec.snapshot()
	assert.ErrorIs(t, errs[0], ErrStreamEnded)
}

func TestTransport_UnexpectedStatus(t *testing.T) {
	srv := streamtest.NewServer(t)
	srv.RejectNext(http.StatusServiceUnavailable)
	rec := &recorder{}
	_, err := NewTransport().Open(context.Background(), stream.StreamURL(srv.Endpoint(), "room1"), rec)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, _, errs := rec.snapshot()
		return len(errs) == 1
	}, waitFor, tick)
	opened, _, errs := rec.snapshot()
	assert.Zero(t, opened)
	assert.ErrorIs(t, errs[0], ErrUnexpectedStatus)
}

func TestTransport_NotEventStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	rec := &recorder{}
	transport := NewTransport(WithHeaders(map[string]string{"Authorization": "secret"}))
	_, err := transport.Open(context.Background(), srv.URL+"/chat/r/stream", rec)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, _, errs := rec.snapshot()
		return len(errs) == 1
	}, waitFor, tick)
	_, _, errs := rec.snapshot()
	assert.ErrorIs(t, errs[0], ErrNotEventStream)
}

func TestTransport_CloseSuppressesCallbacks(t *testing.T) {
	srv := streamtest.NewServer(t)
	rec := &recorder{}
	conn, err := NewTransport().Open(context.Background(), stream.StreamURL(srv.Endpoint(), "room1"), rec)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return srv.Active("room1") == 1 }, waitFor, tick)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return srv.Active("room1") == 0 }, waitFor, tick)

	_, frames, errs := rec.snapshot()
	assert.Empty(t, frames)
	assert.Empty(t, errs)
}

func TestTransport_InvalidURL(t *testing.T) {
	for _, raw := range []string{
		"://missing-scheme",
		"ftp://host/chat/r/stream",
		"http:///chat/r/stream",
	} {
		t.Run(raw, func(t *testing.T) {
			conn, err := NewTransport().Open(context.Background(), raw, &recorder{})
			assert.Error(t, err)
			assert.Nil(t, conn)
		})
	}
}
