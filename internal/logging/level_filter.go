package logging

import (
	"context"
	"log/slog"
)

// LevelFilter drops records below a minimum level before they reach
// the wrapped handler. Used to keep the error log file free of info
// noise regardless of the handler's own level.
type LevelFilter struct {
	handler slog.Handler
	min     slog.Level
}

// NewLevelFilter wraps a handler with a minimum level.
func NewLevelFilter(handler slog.Handler, min slog.Level) *LevelFilter {
	return &LevelFilter{handler: handler, min: min}
}

func (f *LevelFilter) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= f.min && f.handler.Enabled(ctx, level)
}

func (f *LevelFilter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level < f.min {
		return nil
	}
	return f.handler.Handle(ctx, r)
}

func (f *LevelFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewLevelFilter(f.handler.WithAttrs(attrs), f.min)
}

func (f *LevelFilter) WithGroup(name string) slog.Handler {
	return NewLevelFilter(f.handler.WithGroup(name), f.min)
}
