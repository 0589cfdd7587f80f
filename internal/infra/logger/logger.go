// Package logger builds the process-wide slog logger from configuration.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/SUOKE2024/suoke-life-sub002/internal/domain"
	"github.com/SUOKE2024/suoke-life-sub002/internal/infra/config"
)

// ServiceName is attached to every record as the "service" attribute.
const ServiceName = "suoke-agents"

// New creates a configured *slog.Logger.
// The returned closer function should be deferred to flush/close file handles.
func New(cfg config.LoggerConfig) (*slog.Logger, func() error, error) {
	writer, closer, err := openOutput(cfg.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output: %w", err)
	}
	return slog.New(newHandler(writer, cfg)).With("service", ServiceName), closer, nil
}

func newHandler(w io.Writer, cfg config.LoggerConfig) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		// JSON consumers get durations as milliseconds rather than nanoseconds.
		opts.ReplaceAttr = durationMillis
		h = slog.NewJSONHandler(w, opts)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	return &taskHandler{next: h}
}

func durationMillis(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindDuration {
		return slog.Float64(a.Key+"_ms", float64(a.Value.Duration())/float64(time.Millisecond))
	}
	return a
}

// taskHandler tags records with the task id carried by the context and
// with the machine-readable code of any logged error.
type taskHandler struct {
	next   slog.Handler
	hasTID bool // a task_id attr was already bound with With
}

func (h *taskHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.next.Enabled(ctx, l)
}

func (h *taskHandler) Handle(ctx context.Context, r slog.Record) error {
	var extra []slog.Attr
	var code domain.ErrorCode
	hasTID, hasCode := h.hasTID, false
	r.Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case "task_id":
			hasTID = true
		case "error_code":
			hasCode = true
		case "error", "err":
			if err, ok := a.Value.Any().(error); ok {
				code = domain.ErrorCodeOf(err)
			}
		}
		return true
	})
	if !hasCode && code != "" && code != domain.CodeUnknown {
		extra = append(extra, slog.String("error_code", string(code)))
	}
	if !hasTID {
		if id := domain.TaskIDFromContext(ctx); id != "" {
			extra = append(extra, slog.String("task_id", id))
		}
	}
	if len(extra) > 0 {
		r = r.Clone()
		r.AddAttrs(extra...)
	}
	return h.next.Handle(ctx, r)
}

func (h *taskHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hasTID := h.hasTID
	for _, a := range attrs {
		if a.Key == "task_id" {
			hasTID = true
		}
	}
	return &taskHandler{next: h.next.WithAttrs(attrs), hasTID: hasTID}
}

func (h *taskHandler) WithGroup(name string) slog.Handler {
	return &taskHandler{next: h.next.WithGroup(name), hasTID: h.hasTID}
}

// parseLevel converts a string level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openOutput returns an io.Writer for the specified output target.
func openOutput(output string) (io.Writer, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(output) {
	case "stdout":
		return os.Stdout, noop, nil
	case "stderr", "":
		return os.Stderr, noop, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	}
}
