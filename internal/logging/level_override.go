package logging

import (
	"context"
	"log/slog"
	"strings"

	"wikiseed/internal/config"
)

// levelOverrideHandler enforces a per-logger minimum level while delegating
// output to the wrapped handler. A wrapped handler configured above the
// override level still drops the record.
type levelOverrideHandler struct {
	next  slog.Handler
	level slog.Level
}

func newLevelOverrideHandler(next slog.Handler, level slog.Level) slog.Handler {
	if next == nil {
		return discardHandler{}
	}
	return &levelOverrideHandler{next: next, level: level}
}

func (h *levelOverrideHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level < h.level {
		return false
	}
	return h.next.Enabled(ctx, level)
}

func (h *levelOverrideHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < h.level {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h *levelOverrideHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelOverrideHandler{
		next:  h.next.WithAttrs(attrs),
		level: h.level,
	}
}

func (h *levelOverrideHandler) WithGroup(name string) slog.Handler {
	return &levelOverrideHandler{
		next:  h.next.WithGroup(name),
		level: h.level,
	}
}

func (h *levelOverrideHandler) CloneWithLevel(level slog.Level) slog.Handler {
	return &levelOverrideHandler{
		next:  h.next,
		level: level,
	}
}

// WithLevelOverride returns a logger that enforces the provided minimum level
// while preserving existing attributes and handler wiring.
func WithLevelOverride(logger *slog.Logger, level slog.Level) *slog.Logger {
	if logger == nil {
		return slog.New(newLevelOverrideHandler(nil, level))
	}
	if cloner, ok := logger.Handler().(interface{ CloneWithLevel(slog.Level) slog.Handler }); ok {
		return slog.New(cloner.CloneWithLevel(level))
	}
	return slog.New(newLevelOverrideHandler(logger.Handler(), level))
}

// ForKind returns the logger a worker lane for kind should use: tagged with
// the kind and, when logging.kind_overrides names it, filtered to that level.
func ForKind(logger *slog.Logger, cfg *config.Config, kind string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	logger = logger.With(String(FieldKind, kind))
	if cfg == nil {
		return logger
	}
	if level, ok := cfg.Logging.KindOverrides[strings.ToLower(kind)]; ok {
		return WithLevelOverride(logger, ParseLevel(level))
	}
	return logger
}
