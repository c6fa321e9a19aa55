// Package spectral ranks the dominant frequencies of an audio block.
//
// The [Analyzer] applies a Hann window, takes a real FFT
// (gonum.org/v1/gonum/dsp/fourier) and reports the strongest bins of the
// non-negative half of the spectrum, loudest first. Callers rely on that
// ordering: index 0 of the result is always the loudest peak.
package spectral

import (
	"cmp"
	"math"
	"math/cmplx"
	"slices"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// DefaultTolerance is the frequency match tolerance in Hz used when the
	// configuration does not override it.
	DefaultTolerance = 50.0

	// DefaultPeaks is the number of peaks returned when a caller passes a
	// non-positive count.
	DefaultPeaks = 10
)

// Peak is one spectral bin reported by [Analyzer.DominantFrequencies].
type Peak struct {
	// Frequency is the bin centre frequency in Hz.
	Frequency float64 `json:"hz"`

	// Amplitude is the bin magnitude of the windowed spectrum. Always > 0.
	Amplitude float64 `json:"amplitude"`
}

// plan caches the FFT and window for one block length.
type plan struct {
	fft    *fourier.FFT
	window []float64
	buf    []float64
	coeff  []complex128
}

// Analyzer computes windowed magnitude spectra. FFT plans are cached per
// block length. An Analyzer is not safe for concurrent use; give every
// capture loop its own.
type Analyzer struct {
	sampleRate int
	plans      map[int]*plan
}

// NewAnalyzer returns an Analyzer for audio sampled at sampleRate Hz.
func NewAnalyzer(sampleRate int) *Analyzer {
	return &Analyzer{sampleRate: sampleRate, plans: make(map[int]*plan)}
}

// SampleRate returns the sample rate the analyzer was built for.
func (a *Analyzer) SampleRate() int { return a.sampleRate }

// Spectrum returns the magnitude of bins [0, N/2) of the Hann-windowed block.
// Blocks shorter than two samples yield nil. The returned slice is freshly
// allocated.
func (a *Analyzer) Spectrum(block []float32) []float64 {
	n := len(block)
	if n < 2 {
		return nil
	}
	p := a.plan(n)
	for i, s := range block {
		p.buf[i] = float64(s) * p.window[i]
	}
	p.coeff = p.fft.Coefficients(p.coeff, p.buf)

	mags := make([]float64, n/2)
	for i := range mags {
		mags[i] = cmplx.Abs(p.coeff[i])
	}
	return mags
}

// BinFrequency returns the centre frequency of bin i for a block of n samples.
func (a *Analyzer) BinFrequency(i, n int) float64 {
	return float64(i) * float64(a.sampleRate) / float64(n)
}

// DominantFrequencies returns up to numPeaks of the strongest bins, sorted by
// amplitude descending. Zero-magnitude bins are never reported, so a silent or
// empty block yields an empty result. numPeaks <= 0 selects [DefaultPeaks].
func (a *Analyzer) DominantFrequencies(block []float32, numPeaks int) []Peak {
	if numPeaks <= 0 {
		numPeaks = DefaultPeaks
	}
	mags := a.Spectrum(block)
	if len(mags) == 0 {
		return nil
	}

	idx := make([]int, 0, len(mags))
	for i, m := range mags {
		if m > 0 {
			idx = append(idx, i)
		}
	}
	// Ties resolve to the lower bin so results are deterministic.
	slices.SortStableFunc(idx, func(x, y int) int {
		return cmp.Compare(mags[y], mags[x])
	})
	if len(idx) > numPeaks {
		idx = idx[:numPeaks]
	}

	peaks := make([]Peak, len(idx))
	for k, i := range idx {
		peaks[k] = Peak{Frequency: a.BinFrequency(i, len(block)), Amplitude: mags[i]}
	}
	return peaks
}

// IsMatch reports whether detected lies within tolerance Hz of target.
func IsMatch(detected, target, tolerance float64) bool {
	return math.Abs(detected-target) <= tolerance
}

func (a *Analyzer) plan(n int) *plan {
	if p, ok := a.plans[n]; ok {
		return p
	}
	p := &plan{
		fft:    fourier.NewFFT(n),
		window: HannWindow(n),
		buf:    make([]float64, n),
	}
	a.plans[n] = p
	return p
}

// HannWindow returns the symmetric Hann window w[i] = 0.5*(1-cos(2πi/(n-1))).
// A window of length 1 is the single value 1.
func HannWindow(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}
