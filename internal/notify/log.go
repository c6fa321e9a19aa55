package notify

import (
	"context"
	"log/slog"
)

// Log writes notifications to a logger. It is the last resort of a [Group]
// and never fails.
type Log struct {
	log *slog.Logger
}

var _ Notifier = (*Log)(nil)

// NewLog returns a Log notifier. A nil logger selects slog.Default().
func NewLog(l *slog.Logger) *Log {
	if l == nil {
		l = slog.Default()
	}
	return &Log{log: l}
}

// Name implements [Notifier].
func (l *Log) Name() string { return "log" }

// Notify implements [Notifier].
func (l *Log) Notify(ctx context.Context, msg Message) error {
	l.log.InfoContext(ctx, "notification", "text", msg.Text, "image_bytes", len(msg.Image.Data))
	return nil
}
