package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/ringwatch/internal/observe"
	"github.com/MrWong99/ringwatch/internal/resilience"
)

// Group tries its notifiers in order until one delivers. Each notifier sits
// behind its own circuit breaker so a dead channel is skipped quickly.
type Group struct {
	fg      *resilience.FallbackGroup[Notifier]
	metrics *observe.Metrics
	log     *slog.Logger
}

var _ Notifier = (*Group)(nil)

// GroupOption configures a [Group].
type GroupOption func(*Group)

// WithMetrics records delivery latency per notifier.
func WithMetrics(m *observe.Metrics) GroupOption {
	return func(g *Group) { g.metrics = m }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) GroupOption {
	return func(g *Group) { g.log = l }
}

// NewGroup returns a Group over notifiers, primary first. cb is the breaker
// template applied to every notifier.
func NewGroup(cb resilience.CircuitBreakerConfig, notifiers []Notifier, opts ...GroupOption) *Group {
	g := &Group{
		fg:  resilience.NewFallbackGroup[Notifier](cb),
		log: slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	for _, n := range notifiers {
		g.fg.Add(n.Name(), n)
	}
	return g
}

// Name implements [Notifier].
func (g *Group) Name() string { return "group" }

// Names returns the notifier names in fallback order.
func (g *Group) Names() []string { return g.fg.Names() }

// Breaker returns the breaker guarding the named notifier, or nil.
func (g *Group) Breaker(name string) *resilience.CircuitBreaker { return g.fg.Breaker(name) }

// Notify implements [Notifier]. The returned error wraps
// [resilience.ErrAllFailed] when no notifier delivered.
func (g *Group) Notify(ctx context.Context, msg Message) error {
	return g.fg.Execute(ctx, func(ctx context.Context, name string, n Notifier) error {
		start := time.Now()
		err := n.Notify(ctx, msg)
		status := "ok"
		if err != nil {
			status = "error"
		}
		if g.metrics != nil {
			g.metrics.RecordNotify(ctx, name, status, time.Since(start).Seconds())
		}
		if err == nil {
			g.log.Debug("notification delivered", "notifier", name, "duration", time.Since(start))
		}
		return err
	})
}
