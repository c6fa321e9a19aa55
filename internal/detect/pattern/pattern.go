// Package pattern detects a ring by comparing live audio with a recorded
// reference clip.
//
// The [Detector] keeps a rolling buffer as long as the reference (plus an
// optional margin). Every ProcessingInterval blocks it extracts MFCC features
// from the buffer and scores them against the reference features with DTW; a
// score at or below SimilarityThreshold is a match. While the time gate is
// closed the buffer keeps filling but nothing is scored, so detection resumes
// with a full buffer the moment the window ends.
package pattern

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/MrWong99/ringwatch/internal/detect"
	"github.com/MrWong99/ringwatch/internal/detect/dtw"
	"github.com/MrWong99/ringwatch/internal/detect/mfcc"
	"github.com/MrWong99/ringwatch/pkg/audio"
)

// ErrEmptyReference is returned by [New] when the reference clip is empty or
// silent.
var ErrEmptyReference = errors.New("pattern: reference clip is empty or silent")

// Config holds the detector parameters.
type Config struct {
	SampleRate int

	// Margin extends the rolling buffer beyond the reference length.
	Margin time.Duration

	// SimilarityThreshold is the highest DTW score that counts as a match.
	SimilarityThreshold float64

	// ProcessingInterval scores one of every N blocks. Zero selects 1.
	ProcessingInterval int

	// WindowRatio is the Sakoe-Chiba band ratio. Zero selects
	// [dtw.DefaultWindowRatio].
	WindowRatio float64

	// Downsample keeps every k-th feature frame. Zero selects 1.
	Downsample int

	// Gate suppresses scoring during a daily window.
	Gate detect.TimeGate
}

// Validate reports every problem with c.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate))
	}
	if c.Margin < 0 {
		errs = append(errs, fmt.Errorf("margin must not be negative, got %v", c.Margin))
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("similarity_threshold must be in [0, 1], got %v", c.SimilarityThreshold))
	}
	if c.ProcessingInterval < 0 {
		errs = append(errs, fmt.Errorf("processing_interval must not be negative, got %d", c.ProcessingInterval))
	}
	if c.WindowRatio < 0 || c.WindowRatio > 1 {
		errs = append(errs, fmt.Errorf("window_constraint_ratio must be in [0, 1], got %v", c.WindowRatio))
	}
	if c.Downsample < 0 {
		errs = append(errs, fmt.Errorf("downsample_factor must not be negative, got %d", c.Downsample))
	}
	if err := c.Gate.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Option configures a [Detector].
type Option func(*Detector)

// WithClock replaces time.Now for time gate decisions.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) { d.log = l }
}

// Detector implements [detect.Detector] with DTW matching against a
// reference clip. Detect must be called from one goroutine; SetGate may be
// called from any.
type Detector struct {
	cfg       Config
	extractor *mfcc.Extractor
	matcher   *dtw.Matcher
	reference mfcc.Sequence
	ring      *audio.Ring
	scratch   []float32
	blocks    int
	gate      atomic.Pointer[detect.TimeGate]
	now       func() time.Time
	log       *slog.Logger
}

var _ detect.Detector = (*Detector)(nil)

// New extracts the reference features and sizes the rolling buffer to
// ceil((len(reference)/SampleRate + Margin) * SampleRate) samples.
// An empty or silent reference yields [ErrEmptyReference].
func New(reference []float32, cfg Config, opts ...Option) (*Detector, error) {
	if cfg.ProcessingInterval == 0 {
		cfg.ProcessingInterval = 1
	}
	if cfg.Downsample == 0 {
		cfg.Downsample = 1
	}
	if cfg.WindowRatio == 0 {
		cfg.WindowRatio = dtw.DefaultWindowRatio
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pattern: invalid configuration: %w", err)
	}

	d := &Detector{
		cfg: cfg,
		now: time.Now,
		log: slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	d.extractor = mfcc.NewExtractor(cfg.SampleRate, mfcc.WithDownsample(cfg.Downsample))
	d.matcher = dtw.New(dtw.WithWindowRatio(cfg.WindowRatio), dtw.WithLogger(d.log))
	d.reference = d.extractor.Extract(reference)
	if d.reference.Len() == 0 {
		return nil, ErrEmptyReference
	}
	gate := cfg.Gate
	d.gate.Store(&gate)

	d.ring = audio.NewRing(BufferSize(len(reference), cfg.SampleRate, cfg.Margin))
	d.log.Info("pattern detector ready",
		"reference_seconds", float64(len(reference))/float64(cfg.SampleRate),
		"reference_frames", d.reference.Len(),
		"buffer_samples", d.ring.Cap(),
		"time_gate", gate.String(),
	)
	return d, nil
}

// BufferSize returns ceil((refSamples/sampleRate + margin) * sampleRate).
func BufferSize(refSamples, sampleRate int, margin time.Duration) int {
	seconds := float64(refSamples)/float64(sampleRate) + margin.Seconds()
	// Round to 1e-6 samples first so float noise does not add a sample.
	return int(math.Ceil(math.Round(seconds*float64(sampleRate)*1e6) / 1e6))
}

// Reference returns the reference feature sequence. It must not be modified.
func (d *Detector) Reference() mfcc.Sequence { return d.reference }

// BufferCap returns the rolling buffer capacity in samples.
func (d *Detector) BufferCap() int { return d.ring.Cap() }

// BufferLen returns the number of buffered samples.
func (d *Detector) BufferLen() int { return d.ring.Len() }

// Gate returns the active time gate.
func (d *Detector) Gate() detect.TimeGate { return *d.gate.Load() }

// SetGate replaces the time gate.
func (d *Detector) SetGate(g detect.TimeGate) {
	d.gate.Store(&g)
	d.log.Info("time gate updated", "time_gate", g.String())
}

// Detect implements [detect.Detector].
func (d *Detector) Detect(block audio.Block) detect.Result {
	d.ring.Append(block)
	if d.gate.Load().Paused(d.now()) {
		return detect.Result{Paused: true}
	}

	d.blocks++
	if d.blocks%d.cfg.ProcessingInterval != 0 || !d.ring.Full() {
		return detect.Result{}
	}

	d.scratch = d.ring.Snapshot(d.scratch)
	candidate := d.extractor.Extract(d.scratch)
	sim := d.matcher.Similarity(candidate, d.reference)
	matched := sim <= d.cfg.SimilarityThreshold
	if matched {
		d.log.Debug("pattern matched", "similarity", sim, "threshold", d.cfg.SimilarityThreshold)
	}
	return detect.Result{Matched: matched, Scored: true, Similarity: sim}
}
