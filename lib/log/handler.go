package log

import (
	"context"
	"log/slog"
)

// Handler appends the attributes carried by a context created with WithAttrs.
type Handler struct {
	slog.Handler
}

func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	type hasAttrs interface {
		Attrs() []slog.Attr
	}
	if attrCtx, ok := ctx.(hasAttrs); ok {
		record.AddAttrs(attrCtx.Attrs()...)
	}
	return h.Handler.Handle(ctx, record)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{Handler: h.Handler.WithGroup(name)}
}

type attrContext struct {
	context.Context
	attrs []slog.Attr
}

func (c *attrContext) Attrs() []slog.Attr {
	return c.attrs
}

// WithAttrs returns a child of parent whose log records carry attrs in addition
// to any attributes already attached to parent.
func WithAttrs(parent context.Context, attrs ...slog.Attr) context.Context {
	if prev, ok := parent.(*attrContext); ok {
		merged := make([]slog.Attr, 0, len(prev.attrs)+len(attrs))
		merged = append(merged, prev.attrs...)
		merged = append(merged, attrs...)
		return &attrContext{Context: prev.Context, attrs: merged}
	}
	return &attrContext{Context: parent, attrs: attrs}
}
