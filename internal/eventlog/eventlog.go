// Package eventlog keeps a history of fired detections and what became of
// them. [MemStore] holds the most recent entries in memory; [PostgresStore]
// persists them in PostgreSQL.
package eventlog

import (
	"context"

	"github.com/MrWong99/ringwatch/internal/detect"
)

// DefaultLimit is the number of entries returned by Recent when the caller
// passes a non-positive limit.
const DefaultLimit = 50

// Entry is one logged detection.
type Entry struct {
	detect.Event

	// Notified reports that at least one notifier delivered the message.
	Notified bool `json:"notified"`

	// NotifyError holds the delivery error text when Notified is false.
	NotifyError string `json:"notify_error,omitempty"`

	// Snapshot reports that a camera image was attached.
	Snapshot bool `json:"snapshot"`
}

// Store records entries and lists the most recent ones. Implementations are
// safe for concurrent use.
type Store interface {
	// Record appends e to the log.
	Record(ctx context.Context, e Entry) error

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases resources held by the store.
	Close()
}
