// Package mock provides a scripted [detect.Detector] for unit tests.
//
// Example:
//
//	det := &mock.Detector{Results: []detect.Result{{}, {Matched: true}}}
//	coord := detect.NewCoordinator(det)
package mock

import (
	"sync"

	"github.com/MrWong99/ringwatch/internal/detect"
	"github.com/MrWong99/ringwatch/pkg/audio"
)

// Detector is a mock implementation of [detect.Detector]. It is safe for
// concurrent use.
type Detector struct {
	mu sync.Mutex

	// Results are returned by successive Detect calls. Once exhausted,
	// Detect returns Default.
	Results []detect.Result

	// Default is returned after Results is exhausted.
	Default detect.Result

	// DetectFunc, when set, overrides Results and Default.
	DetectFunc func(block audio.Block) detect.Result

	// Blocks records the length of every block passed to Detect.
	Blocks []int
}

// Detect implements [detect.Detector].
func (d *Detector) Detect(block audio.Block) detect.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Blocks = append(d.Blocks, len(block))
	if d.DetectFunc != nil {
		return d.DetectFunc(block)
	}
	if len(d.Results) > 0 {
		r := d.Results[0]
		d.Results = d.Results[1:]
		return r
	}
	return d.Default
}

// CallCount returns how many times Detect was called.
func (d *Detector) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Blocks)
}
