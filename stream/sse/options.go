package sse

import (
	"log/slog"
	"net/http"

	"github.com/raiich/roomstream/internal/log"
)

type Option interface {
	apply(settings *settings)
}

type optionFunc func(settings *settings)

func (f optionFunc) apply(settings *settings) {
	f(settings)
}

type settings struct {
	client  *http.Client
	headers map[string]string
	logger  *slog.Logger
}

func newSettings(opts ...Option) *settings {
	s := &settings{
		// no client timeout: a quiet stream is a healthy stream
		client:  &http.Client{},
		headers: map[string]string{},
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	return s
}

// WithHTTPClient sets the client used for stream requests. Its Timeout should be zero.
func WithHTTPClient(c *http.Client) Option {
	return optionFunc(func(s *settings) {
		s.client = c
	})
}

// WithHeaders adds headers to every stream request.
func WithHeaders(headers map[string]string) Option {
	return optionFunc(func(s *settings) {
		for k, v := range headers {
			s.headers[k] = v
		}
	})
}

func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(s *settings) {
		s.logger = logger
	})
}
