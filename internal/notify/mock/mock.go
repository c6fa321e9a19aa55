// Package mock provides a recording [notify.Notifier] for unit tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/ringwatch/internal/notify"
)

// Notifier is a mock implementation of [notify.Notifier]. It is safe for
// concurrent use.
type Notifier struct {
	mu sync.Mutex

	// NameResult is returned by [Notifier.Name]. Default: "mock".
	NameResult string

	// NotifyError is returned by [Notifier.Notify].
	NotifyError error

	// Messages records every message passed to Notify, including failed ones.
	Messages []notify.Message
}

// Name implements [notify.Notifier].
func (n *Notifier) Name() string {
	if n.NameResult == "" {
		return "mock"
	}
	return n.NameResult
}

// Notify implements [notify.Notifier].
func (n *Notifier) Notify(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Messages = append(n.Messages, msg)
	return n.NotifyError
}

// CallCount returns how many times Notify was called.
func (n *Notifier) CallCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Messages)
}

// Last returns the most recent message, or the zero Message.
func (n *Notifier) Last() notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.Messages) == 0 {
		return notify.Message{}
	}
	return n.Messages[len(n.Messages)-1]
}
