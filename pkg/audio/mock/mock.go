// Package mock provides a scripted [audio.Source] for unit tests.
//
// Typical usage:
//
//	src := mock.NewSource(blocks...)
//	go coordinator.Run(ctx, src)
//
// The source delivers its scripted blocks in order after Start and closes the
// channel once they are exhausted (or when Stop is called). It is safe for
// concurrent use and records every method call.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/ringwatch/pkg/audio"
)

// Source is a mock implementation of [audio.Source].
type Source struct {
	mu sync.Mutex

	// StartError is returned by [Source.Start]. When non-nil no blocks are
	// delivered.
	StartError error

	// StopError is returned by [Source.Stop].
	StopError error

	// HoldOpen keeps the channel open after the scripted blocks are delivered
	// until Stop is called or the Start context is cancelled.
	HoldOpen bool

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	blocks  []audio.Block
	ch      chan audio.Block
	stop    chan struct{}
	stopped bool
}

// NewSource returns a Source that will deliver blocks in order.
func NewSource(blocks ...audio.Block) *Source {
	return &Source{
		blocks: blocks,
		ch:     make(chan audio.Block),
		stop:   make(chan struct{}),
	}
}

// Start implements [audio.Source].
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	s.CallCountStart++
	if s.StartError != nil {
		err := s.StartError
		s.mu.Unlock()
		return err
	}
	blocks := s.blocks
	hold := s.HoldOpen
	s.mu.Unlock()

	go func() {
		defer close(s.ch)
		for _, b := range blocks {
			select {
			case s.ch <- b:
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
		if hold {
			select {
			case <-s.stop:
			case <-ctx.Done():
			}
		}
	}()
	return nil
}

// Blocks implements [audio.Source].
func (s *Source) Blocks() <-chan audio.Block { return s.ch }

// Stop implements [audio.Source].
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStop++
	if !s.stopped {
		s.stopped = true
		close(s.stop)
	}
	return s.StopError
}

// Stopped reports whether Stop has been called.
func (s *Source) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
