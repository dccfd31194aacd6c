// Package tcp is a Transport speaking length-delimited protobuf packets over TCP.
package tcp

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/raiich/roomstream/internal/log"
	"github.com/raiich/roomstream/lib/errors"
	"github.com/raiich/roomstream/stream"
)

var (
	ErrHandshakeRejected = errors.New("handshake rejected")
	ErrConnectionClosed  = errors.New("connection closed by server")
)

// ParamPath carries the URL path of the stream in the client handshake.
const ParamPath = "path"

type Transport struct {
	settings *clientSettings
}

func NewTransport(opts ...ClientOption) *Transport {
	return &Transport{
		settings: newClientSettings(opts...),
	}
}

// Open dials tcp://host:port/<path>. The path selects the room stream on the server.
func (t *Transport) Open(ctx context.Context, rawURL string, handler stream.Handler) (stream.Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid stream url %q", rawURL)
	}
	if u.Scheme != "tcp" {
		return nil, errors.Newf("unsupported stream url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.Newf("stream url %q has no host", rawURL)
	}

	params := map[string][]byte{ParamPath: []byte(u.EscapedPath())}
	for k, v := range t.settings.ExtraParams {
		params[k] = v
	}
	ctx, cancel := context.WithCancel(ctx)
	c := &client{
		cancel:  cancel,
		handler: handler,
		logger:  t.settings.Logger.With("addr", u.Host),
	}
	go c.launch(ctx, u.Host, &ClientHandshake{
		ProtocolVersion: protocolVersion,
		ExtraParams:     params,
	}, t.settings)
	return c, nil
}

type client struct {
	cancel  context.CancelFunc
	handler stream.Handler
	logger  *slog.Logger
	closed  atomic.Bool
}

func (c *client) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.cancel()
	}
	return nil
}

func (c *client) deliver(f func()) bool {
	if c.closed.Load() {
		return false
	}
	f()
	return true
}

func (c *client) fail(err error) {
	if !c.deliver(func() { c.handler.OnError(err) }) {
		c.logger.Debug("connection closed", "error", err)
	}
}

func (c *client) launch(ctx context.Context, addr string, handshake *ClientHandshake, settings *clientSettings) {
	defer c.cancel()

	dialer := net.Dialer{Timeout: settings.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.fail(errors.Wrapf(err, "failed to dial"))
		return
	}
	stop := context.AfterFunc(ctx, func() {
		// unblocks the reader when the connection is closed locally
		log.OnError(conn.Close())
	})
	defer func() {
		if stop() {
			log.OnError(conn.Close())
		}
	}()

	if err := writeFormatVersion(conn); err != nil {
		c.fail(err)
		return
	}
	if err := writeMessage(conn, fieldHandshake, handshake); err != nil {
		c.fail(err)
		return
	}

	r := bufio.NewReader(conn)
	if err := readFormatVersion(r); err != nil {
		c.fail(err)
		return
	}
	sh := &ServerHandshake{}
	if err := readMessage(r, fieldHandshake, sh); err != nil {
		c.fail(errors.Wrapf(err, "failed to read server handshake"))
		return
	}
	if sh.Status != HandshakeStatusOK {
		c.fail(errors.Wrapf(ErrHandshakeRejected, "status %v", sh.Status))
		return
	}
	if !c.deliver(c.handler.OnOpen) {
		return
	}
	c.fail(c.readLoop(r))
}

// readLoop delivers frames until the stream fails or the server closes it.
// It always returns a non-nil error.
func (c *client) readLoop(r connReader) error {
	for {
		num, b, err := readField(r)
		if err != nil {
			return err
		}
		switch num {
		case fieldPacket:
			m := &Packet{}
			if err := m.unmarshal(b); err != nil {
				return errors.Wrapf(err, "failed to unmarshal message: %T", m)
			}
			for _, payload := range m.Payload {
				frame := &stream.Frame{Data: payload}
				if !c.deliver(func() { c.handler.OnFrame(frame) }) {
					return context.Canceled
				}
			}
		case fieldConnectionClose:
			m := &ConnectionClose{}
			if err := m.unmarshal(b); err != nil {
				return errors.Wrapf(err, "failed to unmarshal message: %T", m)
			}
			return errors.Wrapf(ErrConnectionClosed, "reason %v", m.Reason)
		default:
			return errors.Wrapf(ErrUnexpectedField, "%v", num)
		}
	}
}

type ClientOption interface {
	apply(settings *clientSettings)
}

type clientOptionFunc func(settings *clientSettings)

func (f clientOptionFunc) apply(settings *clientSettings) {
	f(settings)
}

type clientSettings struct {
	ExtraParams map[string][]byte
	DialTimeout time.Duration
	Logger      *slog.Logger
}

func newClientSettings(opts ...ClientOption) *clientSettings {
	settings := &clientSettings{
		DialTimeout: 10 * time.Second,
		Logger:      log.Default(),
	}
	for _, opt := range opts {
		opt.apply(settings)
	}
	return settings
}

// WithExtraParams adds handshake params, for example credentials.
func WithExtraParams(extraParams map[string][]byte) ClientOption {
	return clientOptionFunc(func(settings *clientSettings) {
		settings.ExtraParams = extraParams
	})
}

func WithDialTimeout(d time.Duration) ClientOption {
	return clientOptionFunc(func(settings *clientSettings) {
		settings.DialTimeout = d
	})
}

func WithLogger(logger *slog.Logger) ClientOption {
	return clientOptionFunc(func(settings *clientSettings) {
		settings.Logger = logger
	})
}
