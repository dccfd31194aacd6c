// Package sse is the server-sent events Transport for room streams.
package sse

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/raiich/roomstream/internal/log"
	"github.com/raiich/roomstream/lib/errors"
	"github.com/raiich/roomstream/stream"
)

var (
	ErrUnexpectedStatus = errors.New("unexpected response status")
	ErrNotEventStream   = errors.New("response is not an event stream")
	ErrStreamEnded      = errors.New("event stream ended")
)

const mediaType = "text/event-stream"

type Transport struct {
	settings *settings
}

func NewTransport(opts ...Option) *Transport {
	return &Transport{
		settings: newSettings(opts...),
	}
}

func (t *Transport) Open(ctx context.Context, rawURL string, handler stream.Handler) (stream.Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid stream url %q", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Newf("unsupported stream url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.Newf("stream url %q has no host", rawURL)
	}

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		cancel()
		return nil, errors.Wrapf(err, "failed to create request")
	}
	req.Header.Set("Accept", mediaType)
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range t.settings.headers {
		req.Header.Set(k, v)
	}

	c := &conn{
		cancel:  cancel,
		handler: handler,
		logger:  t.settings.logger.With("url", u.Redacted()),
	}
	go c.run(t.settings.client, req)
	return c, nil
}

type conn struct {
	cancel  context.CancelFunc
	handler stream.Handler
	logger  *slog.Logger
	closed  atomic.Bool
}

// Close cancels the request without waiting for the reader goroutine.
func (c *conn) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.cancel()
	}
	return nil
}

// deliver runs f unless the connection is closed.
func (c *conn) deliver(f func()) bool {
	if c.closed.Load() {
		return false
	}
	f()
	return true
}

func (c *conn) run(client *http.Client, req *http.Request) {
	defer c.cancel()

	resp, err := client.Do(req)
	if err != nil {
		c.fail(errors.Wrapf(err, "stream request failed"))
		return
	}
	defer func() {
		log.OnError(drainClose(resp.Body))
	}()

	if resp.StatusCode != http.StatusOK {
		c.fail(errors.Wrapf(ErrUnexpectedStatus, "%s", resp.Status))
		return
	}
	if mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err != nil || mt != mediaType {
		c.fail(errors.Wrapf(ErrNotEventStream, "content type %q", resp.Header.Get("Content-Type")))
		return
	}
	if !c.deliver(c.handler.OnOpen) {
		return
	}

	dec := ssestream.NewDecoder(resp)
	for dec.Next() {
		ev := dec.Event()
		if ev.Type != "" && ev.Type != "message" {
			c.logger.Debug("ignoring named event", "event", ev.Type)
			continue
		}
		data := bytes.TrimSuffix(ev.Data, []byte("\n"))
		if len(data) == 0 {
			continue
		}
		frame := &stream.Frame{
			Name: ev.Type,
			Data: append([]byte(nil), data...),
		}
		if !c.deliver(func() { c.handler.OnFrame(frame) }) {
			return
		}
	}
	if err := dec.Err(); err != nil {
		c.fail(errors.Wrapf(err, "failed to read event stream"))
		return
	}
	c.fail(ErrStreamEnded)
}

func (c *conn) fail(err error) {
	if !c.deliver(func() { c.handler.OnError(err) }) {
		c.logger.Debug("connection closed", "error", err)
	}
}

func drainClose(body io.ReadCloser) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	return body.Close()
}
