package logging

import (
	"context"
	"log/slog"
)

// RunIDKey is the attribute that ties a log record to a run.
const RunIDKey = "run_id"

type runIDKey struct{}

func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func RunIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok && id != ""
}

// RunIDHandler adds run_id to records logged with a context carrying one.
type RunIDHandler struct {
	slog.Handler
}

func NewRunIDHandler(h slog.Handler) *RunIDHandler {
	return &RunIDHandler{Handler: h}
}

func (h *RunIDHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := RunIDFromContext(ctx); ok {
		r = r.Clone()
		r.AddAttrs(slog.String(RunIDKey, id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *RunIDHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &RunIDHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *RunIDHandler) WithGroup(name string) slog.Handler {
	return &RunIDHandler{Handler: h.Handler.WithGroup(name)}
}
