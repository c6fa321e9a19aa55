// Package detect turns a stream of audio blocks into detection events.
//
// A [Detector] inspects one block at a time and reports whether the ring
// pattern it looks for is present. The [Coordinator] wraps a detector with a
// throttle so that a single ring produces a single [Event], and hands that
// event to the registered [Handler]. Two detectors exist: the frequency
// detector in package frequency and the DTW pattern detector in package
// pattern.
//
// Detectors and the coordinator are driven by exactly one capture goroutine
// and hold no locks on the hot path.
package detect

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/ringwatch/internal/detect/spectral"
	"github.com/MrWong99/ringwatch/pkg/audio"
)

// Detection modes.
const (
	ModeFrequency = "frequency"
	ModePattern   = "pattern"
)

// Detector analyses audio blocks. Implementations keep per-stream state and
// must only be called from one goroutine.
type Detector interface {
	// Detect processes one block. Silent or empty blocks never match.
	Detect(block audio.Block) Result
}

// Result is the outcome of one [Detector.Detect] call.
type Result struct {
	// Matched reports that the detector recognised the ring in this block.
	Matched bool `json:"matched"`

	// Scored reports that Similarity holds a freshly computed DTW score.
	Scored bool `json:"scored,omitempty"`

	// Similarity is the DTW score of the last match attempt (pattern mode).
	Similarity float64 `json:"similarity,omitempty"`

	// Peaks are the dominant frequencies of the block (frequency mode).
	Peaks []spectral.Peak `json:"peaks,omitempty"`

	// Targets lists the target frequencies that completed the sequence.
	Targets []float64 `json:"targets,omitempty"`

	// Paused reports that the time gate suppressed processing.
	Paused bool `json:"paused,omitempty"`
}

// Event is a fired detection.
type Event struct {
	ID         uuid.UUID `json:"id"`
	At         time.Time `json:"at"`
	Mode       string    `json:"mode"`
	Similarity float64   `json:"similarity,omitempty"`
	Targets    []float64 `json:"targets,omitempty"`
}

// NewEvent builds an Event with a fresh random ID from a matching result.
func NewEvent(mode string, at time.Time, res Result) Event {
	return Event{
		ID:         uuid.New(),
		At:         at,
		Mode:       mode,
		Similarity: res.Similarity,
		Targets:    res.Targets,
	}
}

// Handler receives fired events. It runs on the capture goroutine and must
// return quickly; slow work belongs on another goroutine.
type Handler func(ctx context.Context, ev Event)

// Observer receives every processed block's result for diagnostics.
// Observers cannot influence whether an event fires.
type Observer interface {
	Observe(ctx context.Context, block audio.Block, res Result)
}

// ObserverFunc adapts a function to [Observer].
type ObserverFunc func(ctx context.Context, block audio.Block, res Result)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, block audio.Block, res Result) {
	f(ctx, block, res)
}
