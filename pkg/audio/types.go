// Package audio defines the audio primitives shared by the capture layer and
// the detectors: fixed-size mono sample blocks, the [Source] contract, a
// bounded drop-oldest [Queue], the rolling [Ring] buffer, PCM conversion
// helpers, and reference clip loading.
package audio

import "context"

// Block is one fixed-size chunk of mono samples in approximately [-1, 1].
// Consumers must not retain a Block beyond the call it was passed to; copy
// the samples if they are needed later.
type Block []float32

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Source supplies blocks of chunk_size samples at roughly
// sample_rate/chunk_size blocks per second.
//
// Implementations must be safe to Stop from a goroutine other than the one
// reading Blocks.
type Source interface {
	// Start begins capture. Blocks are delivered on the channel returned by
	// Blocks until ctx is cancelled or Stop is called, after which the channel
	// is closed.
	Start(ctx context.Context) error

	// Blocks returns the delivery channel. It is valid before Start.
	Blocks() <-chan Block

	// Stop ends capture and releases the device. Calling Stop more than once
	// is a no-op.
	Stop() error
}
