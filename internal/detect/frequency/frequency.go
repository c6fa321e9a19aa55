// Package frequency detects a ring by its tones.
//
// The [Detector] looks for sustained energy at configured target frequencies
// (and their low harmonics) across consecutive blocks. In ordered mode the
// targets must appear one after another within a per-step timeout, which
// matches the two or three tone chime of most intercoms; in unordered mode any
// sustained target is enough.
//
// A partial sequence is abandoned only by the state timeout. Blocks without
// any target energy leave the sequence where it is.
package frequency

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/MrWong99/ringwatch/internal/detect"
	"github.com/MrWong99/ringwatch/internal/detect/spectral"
	"github.com/MrWong99/ringwatch/pkg/audio"
)

// ErrConfig is wrapped by every configuration error returned from [New].
var ErrConfig = errors.New("frequency: invalid configuration")

// Config holds the detector parameters.
type Config struct {
	SampleRate int
	ChunkSize  int

	// Targets are the frequencies in Hz, in expected order.
	Targets []float64

	// Ordered requires the targets to appear in sequence.
	Ordered bool

	// Tolerance is the match tolerance in Hz. Zero selects
	// [spectral.DefaultTolerance].
	Tolerance float64

	// Harmonics is how many multiples of each target count as a hit
	// (1 = fundamental only). Zero selects 3. A multiple that lies within
	// Tolerance of another target is not counted for the lower target.
	Harmonics int

	// Threshold is the minimum peak amplitude relative to the loudest peak
	// of the block, in (0, 1].
	Threshold float64

	// Duration is how long a target must be present to count as sustained.
	Duration time.Duration

	// StateTimeout abandons a partial ordered sequence. Zero selects
	// [DefaultStateTimeout].
	StateTimeout time.Duration

	// NumPeaks is how many spectral peaks are inspected per block. Zero
	// selects [spectral.DefaultPeaks].
	NumPeaks int
}

// DefaultStateTimeout is the StateTimeout used when none is configured.
const DefaultStateTimeout = 5 * time.Second

func (c *Config) applyDefaults() {
	if c.Tolerance == 0 {
		c.Tolerance = spectral.DefaultTolerance
	}
	if c.Harmonics == 0 {
		c.Harmonics = 3
	}
	if c.NumPeaks == 0 {
		c.NumPeaks = spectral.DefaultPeaks
	}
	if c.StateTimeout == 0 {
		c.StateTimeout = DefaultStateTimeout
	}
}

// Validate reports every problem with c.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize))
	}
	if len(c.Targets) == 0 {
		errs = append(errs, errors.New("at least one target frequency is required"))
	}
	for i, f := range c.Targets {
		if f <= 0 {
			errs = append(errs, fmt.Errorf("target %d: frequency must be positive, got %v", i, f))
		}
	}
	if c.Threshold <= 0 || c.Threshold > 1 {
		errs = append(errs, fmt.Errorf("detection_threshold must be in (0, 1], got %v", c.Threshold))
	}
	if c.Duration < 0 {
		errs = append(errs, fmt.Errorf("detection_duration must not be negative, got %v", c.Duration))
	}
	if c.StateTimeout < 0 {
		errs = append(errs, fmt.Errorf("state_timeout must not be negative, got %v", c.StateTimeout))
	}
	if c.Tolerance < 0 || c.Harmonics < 0 || c.NumPeaks < 0 {
		errs = append(errs, errors.New("tolerance, harmonics and num_peaks must not be negative"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrConfig, errors.Join(errs...))
}

// Option configures a [Detector].
type Option func(*Detector)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) { d.log = l }
}

// Detector implements [detect.Detector] for tone sequences. It is not safe
// for concurrent use.
type Detector struct {
	cfg      Config
	analyzer *spectral.Analyzer
	now      func() time.Time
	log      *slog.Logger

	// harmonics[i] lists the frequencies that count as target i.
	harmonics [][]float64

	// hits[i] holds the times target i was seen within the last Duration.
	hits       [][]time.Time
	state      State
	transition time.Time
}

var _ detect.Detector = (*Detector)(nil)

// New validates cfg and returns a Detector in state Waiting(0).
func New(cfg Config, opts ...Option) (*Detector, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Targets = slices.Clone(cfg.Targets)

	d := &Detector{
		cfg:      cfg,
		analyzer: spectral.NewAnalyzer(cfg.SampleRate),
		now:      time.Now,
		log:      slog.Default(),
		hits:     make([][]time.Time, len(cfg.Targets)),
	}
	d.harmonics = harmonicSets(cfg.Targets, cfg.Harmonics, cfg.Tolerance)
	for _, o := range opts {
		o(d)
	}
	d.transition = d.now()
	return d, nil
}

// MinDetections is the number of detecting blocks within Duration required
// for a sustained detection: max(1, ceil(Duration * SampleRate / ChunkSize)).
func (d *Detector) MinDetections() int {
	return MinDetections(d.cfg.Duration, d.cfg.SampleRate, d.cfg.ChunkSize)
}

// MinDetections computes max(1, ceil(duration * sampleRate / chunkSize)).
func MinDetections(duration time.Duration, sampleRate, chunkSize int) int {
	if chunkSize <= 0 {
		return 1
	}
	// Round the block count to 1e-9 so that float noise does not add a block.
	blocks := duration.Seconds() * float64(sampleRate) / float64(chunkSize)
	n := int(math.Ceil(math.Round(blocks*1e9) / 1e9))
	return max(1, n)
}

// State returns the current sequencing state.
func (d *Detector) State() State { return d.state }

// Reset abandons any partial sequence and clears the detection records.
func (d *Detector) Reset() {
	d.state = d.state.reset()
	d.transition = d.now()
	for i := range d.hits {
		d.hits[i] = d.hits[i][:0]
	}
}

// Detect implements [detect.Detector].
func (d *Detector) Detect(block audio.Block) detect.Result {
	now := d.now()

	if next := d.state.timeout(); next != d.state && now.Sub(d.transition) > d.cfg.StateTimeout {
		d.log.Debug("tone sequence timed out", "state", d.state, "after", now.Sub(d.transition))
		d.state = next
		d.transition = now
	}

	peaks := d.analyzer.DominantFrequencies(block, d.cfg.NumPeaks)
	res := detect.Result{Peaks: peaks}
	if len(peaks) == 0 {
		return res
	}

	threshold := d.cfg.Threshold * peaks[0].Amplitude
	minHits := d.MinDetections()
	cutoff := now.Add(-d.cfg.Duration)

	sustained := make([]bool, len(d.cfg.Targets))
	for i := range d.cfg.Targets {
		if d.present(peaks, i, threshold) {
			d.hits[i] = append(d.hits[i], now)
		}
		d.hits[i] = prune(d.hits[i], cutoff)
		sustained[i] = len(d.hits[i]) >= minHits
	}

	if d.advance(sustained, now) {
		res.Matched = true
		res.Targets = slices.Clone(d.cfg.Targets)
		d.log.Debug("tone sequence completed", "targets", d.cfg.Targets)
		d.state = d.state.reset()
		d.transition = now
	}
	return res
}

// advance applies this block's sustained detections to the state machine and
// reports whether the sequence completed.
func (d *Detector) advance(sustained []bool, now time.Time) bool {
	if !d.cfg.Ordered {
		for i, ok := range sustained {
			if ok {
				d.log.Debug("tone sustained", "hz", d.cfg.Targets[i])
				d.state = Completed
				return true
			}
		}
		return false
	}

	expected := d.state.Index()
	if expected < 0 || !sustained[expected] {
		return false
	}
	d.state = d.state.advance(len(d.cfg.Targets))
	d.transition = now
	d.log.Debug("tone sequence advanced",
		"hz", d.cfg.Targets[expected],
		"step", expected+1,
		"of", len(d.cfg.Targets),
	)
	return d.state.IsCompleted()
}

// harmonicSets returns, per target, the fundamental and those of its first
// n multiples that do not fall within tolerance of another target. Without
// the exclusion a tone at 880 Hz would stand in for a 440 Hz target.
func harmonicSets(targets []float64, n int, tolerance float64) [][]float64 {
	sets := make([][]float64, len(targets))
	for i, target := range targets {
		sets[i] = []float64{target}
	harmonic:
		for k := 2; k <= n; k++ {
			h := target * float64(k)
			for j, other := range targets {
				if j != i && spectral.IsMatch(h, other, tolerance) {
					continue harmonic
				}
			}
			sets[i] = append(sets[i], h)
		}
	}
	return sets
}

// present reports whether target i or one of its counted harmonics is among
// the peaks at or above threshold. Each target counts at most once per block.
func (d *Detector) present(peaks []spectral.Peak, i int, threshold float64) bool {
	for _, p := range peaks {
		if p.Amplitude < threshold {
			continue
		}
		for _, h := range d.harmonics[i] {
			if spectral.IsMatch(p.Frequency, h, d.cfg.Tolerance) {
				return true
			}
		}
	}
	return false
}

// prune drops timestamps before cutoff. ts is ordered oldest first.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}
