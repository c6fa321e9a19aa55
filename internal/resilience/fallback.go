package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] fails or has
// an open circuit breaker.
var ErrAllFailed = errors.New("all entries failed")

// fallbackEntry pairs a value with its dedicated circuit breaker.
type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup tries its entries in registration order until one succeeds.
// Entries whose breaker is open are skipped.
//
// Entries must be added before the group is shared between goroutines.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     CircuitBreakerConfig
}

// NewFallbackGroup creates an empty [FallbackGroup]. cfg is the template for
// each entry's breaker; its Name is replaced by the entry name.
func NewFallbackGroup[T any](cfg CircuitBreakerConfig) *FallbackGroup[T] {
	return &FallbackGroup[T]{cfg: cfg}
}

// Add appends an entry. The first entry added is the primary.
func (fg *FallbackGroup[T]) Add(name string, v T) {
	cbCfg := fg.cfg
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   v,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Len returns the number of entries.
func (fg *FallbackGroup[T]) Len() int { return len(fg.entries) }

// Names returns the entry names in order.
func (fg *FallbackGroup[T]) Names() []string {
	names := make([]string, len(fg.entries))
	for i, e := range fg.entries {
		names[i] = e.name
	}
	return names
}

// Breaker returns the breaker guarding the named entry, or nil.
func (fg *FallbackGroup[T]) Breaker(name string) *CircuitBreaker {
	for _, e := range fg.entries {
		if e.name == name {
			return e.breaker
		}
	}
	return nil
}

// Execute calls fn with each entry until one returns nil. It stops early if
// ctx is cancelled. When every entry fails the returned error wraps
// [ErrAllFailed] and the joined per-entry errors.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(ctx context.Context, name string, v T) error) error {
	if len(fg.entries) == 0 {
		return fmt.Errorf("%w: no entries", ErrAllFailed)
	}
	var errs []error
	for i := range fg.entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry := &fg.entries[i]
		err := entry.breaker.Execute(func() error {
			return fn(ctx, entry.name, entry.value)
		})
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", entry.name, err))
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping entry (circuit open)", "entry", entry.name)
			continue
		}
		slog.Warn("entry failed, trying next", "entry", entry.name, "err", err)
	}
	return fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
