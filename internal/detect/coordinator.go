package detect

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/ringwatch/internal/observe"
	"github.com/MrWong99/ringwatch/pkg/audio"
)

// DefaultThrottle is the minimum spacing between two fired events.
const DefaultThrottle = 10 * time.Second

// CoordinatorOption configures a [Coordinator].
type CoordinatorOption func(*Coordinator)

// WithThrottle sets the minimum spacing between fired events.
func WithThrottle(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.throttle.Store(int64(d)) }
}

// WithClock replaces time.Now for throttle decisions and event timestamps.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// WithMetrics records block and detection metrics to m.
func WithMetrics(m *observe.Metrics) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

// WithMode sets the mode label used in events, logs and metrics.
func WithMode(mode string) CoordinatorOption {
	return func(c *Coordinator) { c.mode = mode }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.log = l }
}

// Coordinator feeds blocks to a [Detector] and fires at most one event per
// throttle window to the registered [Handler].
//
// Process and Run must be called from a single goroutine. SetHandler,
// SetThrottle, Subscribe and LastFired are safe to call from any goroutine.
type Coordinator struct {
	det     Detector
	mode    string
	now     func() time.Time
	metrics *observe.Metrics
	log     *slog.Logger

	throttle atomic.Int64
	handler  atomic.Pointer[Handler]

	mu        sync.RWMutex
	observers []Observer

	// lastFired is the UnixNano of the last fired event; 0 means never.
	lastFired atomic.Int64
}

// NewCoordinator wraps d.
func NewCoordinator(d Detector, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		det:  d,
		now:  time.Now,
		log:  slog.Default(),
		mode: "unknown",
	}
	c.throttle.Store(int64(DefaultThrottle))
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetHandler registers h as the single event handler, replacing any previous
// one. A nil h unregisters; blocks are then skipped without analysis.
func (c *Coordinator) SetHandler(h Handler) {
	if h == nil {
		c.handler.Store(nil)
		return
	}
	c.handler.Store(&h)
}

// Subscribe adds o to the diagnostic observers.
func (c *Coordinator) Subscribe(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// SetThrottle changes the throttle window. The next match is measured against
// the new duration.
func (c *Coordinator) SetThrottle(d time.Duration) {
	c.throttle.Store(int64(d))
}

// Throttle returns the current throttle window.
func (c *Coordinator) Throttle() time.Duration {
	return time.Duration(c.throttle.Load())
}

// Mode returns the mode label.
func (c *Coordinator) Mode() string { return c.mode }

// LastFired returns when the last event fired, or the zero time.
func (c *Coordinator) LastFired() time.Time {
	ns := c.lastFired.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Process runs the detector on block and fires the handler on a match that
// is outside the throttle window. It reports whether an event fired. Without
// a registered handler the block is not analysed.
func (c *Coordinator) Process(ctx context.Context, block audio.Block) bool {
	h := c.handler.Load()
	if h == nil {
		return false
	}

	start := time.Now()
	res := c.det.Detect(block)
	if c.metrics != nil {
		c.metrics.RecordBlock(ctx, c.mode, time.Since(start).Seconds())
		if res.Scored {
			c.metrics.Similarity.Record(ctx, res.Similarity,
				metric.WithAttributes(observe.Attr("mode", c.mode)))
		}
	}
	c.notifyObservers(ctx, block, res)

	if !res.Matched {
		return false
	}

	now := c.now()
	last := c.LastFired()
	if !last.IsZero() && now.Sub(last) < c.Throttle() {
		c.log.Debug("detection throttled",
			"mode", c.mode,
			"since_last", now.Sub(last),
			"throttle", c.Throttle(),
		)
		if c.metrics != nil {
			c.metrics.RecordDetection(ctx, c.mode, false)
		}
		return false
	}

	c.lastFired.Store(now.UnixNano())
	ev := NewEvent(c.mode, now, res)
	c.log.Info("detection fired",
		"id", ev.ID,
		"mode", c.mode,
		"similarity", res.Similarity,
		"targets", res.Targets,
	)
	if c.metrics != nil {
		c.metrics.RecordDetection(ctx, c.mode, true)
	}
	(*h)(ctx, ev)
	return true
}

func (c *Coordinator) notifyObservers(ctx context.Context, block audio.Block, res Result) {
	c.mu.RLock()
	obs := c.observers
	c.mu.RUnlock()
	for _, o := range obs {
		o.Observe(ctx, block, res)
	}
}

// Run starts src and processes its blocks until ctx is cancelled or the
// source closes its channel. The source is stopped before Run returns.
// Cancellation is observed between blocks, so within one block period.
func (c *Coordinator) Run(ctx context.Context, src audio.Source) error {
	if err := src.Start(ctx); err != nil {
		return fmt.Errorf("detect: start audio source: %w", err)
	}
	defer func() {
		if err := src.Stop(); err != nil {
			c.log.Warn("failed to stop audio source", "err", err)
		}
	}()

	c.log.Info("detection loop started", "mode", c.mode, "throttle", c.Throttle())
	blocks := src.Blocks()
	for {
		select {
		case <-ctx.Done():
			c.log.Info("detection loop stopped", "mode", c.mode)
			return nil
		case b, ok := <-blocks:
			if !ok {
				c.log.Info("audio source closed", "mode", c.mode)
				return nil
			}
			c.Process(ctx, b)
		}
	}
}
