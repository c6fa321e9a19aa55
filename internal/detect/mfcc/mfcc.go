// Package mfcc extracts normalised cepstral feature sequences from audio.
//
// An [Extractor] turns a clip into one 13-dimensional vector per analysis
// frame (frame axis first): Hann-windowed power spectra are mapped onto an HTK
// mel filterbank, converted to decibels with an 80 dB dynamic range and
// decorrelated with an orthonormal DCT-II. Each dimension is then normalised
// to zero mean and unit variance across the sequence so that sequences can be
// compared with dynamic time warping regardless of loudness.
package mfcc

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"

	"github.com/MrWong99/ringwatch/internal/detect/spectral"
)

// Epsilon floors the per-dimension standard deviation during normalisation.
// A constant dimension therefore normalises to zeros instead of NaN.
const Epsilon = 1e-8

const (
	defaultCoefficients = 13
	defaultHop          = 512
	defaultFFTSize      = 2048
	defaultMelBands     = 40

	// topDB is the dynamic range kept below the loudest mel band of a clip.
	topDB = 80.0

	// powerFloor keeps log10 finite for empty bands.
	powerFloor = 1e-10
)

// Sequence is a feature sequence indexed [frame][coefficient].
type Sequence [][]float64

// Len returns the number of frames.
func (s Sequence) Len() int { return len(s) }

// Dim returns the number of coefficients per frame, or 0 for an empty
// sequence.
func (s Sequence) Dim() int {
	if len(s) == 0 {
		return 0
	}
	return len(s[0])
}

// Option configures an [Extractor].
type Option func(*Extractor)

// WithCoefficients sets the number of cepstral coefficients kept per frame.
func WithCoefficients(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.coefficients = n
		}
	}
}

// WithHopLength sets the distance in samples between frame starts.
func WithHopLength(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.hop = n
		}
	}
}

// WithFFTSize sets the frame length and FFT size in samples.
func WithFFTSize(n int) Option {
	return func(e *Extractor) {
		if n > 1 {
			e.nfft = n
		}
	}
}

// WithMelBands sets the number of mel filterbank bands.
func WithMelBands(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.melBands = n
		}
	}
}

// WithDownsample keeps only every k-th frame.
func WithDownsample(k int) Option {
	return func(e *Extractor) {
		if k > 0 {
			e.downsample = k
		}
	}
}

// Extractor computes feature sequences. It holds scratch buffers and is not
// safe for concurrent use.
type Extractor struct {
	sampleRate   int
	coefficients int
	hop          int
	nfft         int
	melBands     int
	downsample   int

	fft    *fourier.FFT
	window []float64
	mel    [][]float64
	dct    [][]float64

	frame []float64
	coeff []complex128
	power []float64
}

// NewExtractor returns an Extractor for audio sampled at sampleRate Hz.
func NewExtractor(sampleRate int, opts ...Option) *Extractor {
	e := &Extractor{
		sampleRate:   sampleRate,
		coefficients: defaultCoefficients,
		hop:          defaultHop,
		nfft:         defaultFFTSize,
		melBands:     defaultMelBands,
		downsample:   1,
	}
	for _, o := range opts {
		o(e)
	}
	if e.coefficients > e.melBands {
		e.coefficients = e.melBands
	}

	e.fft = fourier.NewFFT(e.nfft)
	e.window = spectral.HannWindow(e.nfft)
	e.mel = melFilterbank(e.nfft, e.melBands, e.sampleRate)
	e.dct = dctMatrix(e.coefficients, e.melBands)
	e.frame = make([]float64, e.nfft)
	e.power = make([]float64, e.nfft/2+1)
	return e
}

// Coefficients returns the number of coefficients per frame.
func (e *Extractor) Coefficients() int { return e.coefficients }

// Frames returns how many frames Extract produces for n samples before
// downsampling.
func (e *Extractor) Frames(n int) int {
	if n <= 0 {
		return 0
	}
	if n < e.nfft {
		return 1
	}
	return 1 + (n-e.nfft)/e.hop
}

// Extract computes the normalised feature sequence of samples. Empty or
// silent input yields an empty sequence. Identical input always yields
// bit-identical output.
func (e *Extractor) Extract(samples []float32) Sequence {
	var peak float64
	for _, s := range samples {
		if a := math.Abs(float64(s)); a > peak {
			peak = a
		}
	}
	if peak == 0 || math.IsNaN(peak) || math.IsInf(peak, 0) {
		return nil
	}

	nFrames := e.Frames(len(samples))
	logMel := make([][]float64, nFrames)
	maxDB := math.Inf(-1)
	for f := range logMel {
		start := f * e.hop
		for i := range e.frame {
			e.frame[i] = 0
			if j := start + i; j < len(samples) {
				e.frame[i] = float64(samples[j]) / peak * e.window[i]
			}
		}
		e.coeff = e.fft.Coefficients(e.coeff, e.frame)
		for k := range e.power {
			re, im := real(e.coeff[k]), imag(e.coeff[k])
			e.power[k] = re*re + im*im
		}

		bands := make([]float64, e.melBands)
		for b, filter := range e.mel {
			p := floats.Dot(filter, e.power)
			bands[b] = 10 * math.Log10(math.Max(p, powerFloor))
		}
		if m := floats.Max(bands); m > maxDB {
			maxDB = m
		}
		logMel[f] = bands
	}

	floor := maxDB - topDB
	seq := make(Sequence, 0, (nFrames+e.downsample-1)/e.downsample)
	for f := 0; f < nFrames; f += e.downsample {
		bands := logMel[f]
		for b, v := range bands {
			if v < floor {
				bands[b] = floor
			}
		}
		vec := make([]float64, e.coefficients)
		for c, basis := range e.dct {
			vec[c] = floats.Dot(basis, bands)
		}
		seq = append(seq, vec)
	}

	Normalize(seq)
	return seq
}

// Normalize scales every dimension of seq in place to zero mean and unit
// population variance. The standard deviation is floored at [Epsilon].
func Normalize(seq Sequence) {
	n := len(seq)
	if n == 0 {
		return
	}
	for d := range seq[0] {
		var mean float64
		for _, v := range seq {
			mean += v[d]
		}
		mean /= float64(n)

		var variance float64
		for _, v := range seq {
			diff := v[d] - mean
			variance += diff * diff
		}
		std := math.Max(math.Sqrt(variance/float64(n)), Epsilon)

		for _, v := range seq {
			v[d] = (v[d] - mean) / std
		}
	}
}

// melFilterbank builds triangular HTK mel filters over the nfft/2+1 power
// bins, spanning 0 Hz to Nyquist.
func melFilterbank(nfft, bands, sampleRate int) [][]float64 {
	hzToMel := func(hz float64) float64 { return 2595 * math.Log10(1+hz/700) }
	melToHz := func(mel float64) float64 { return 700 * (math.Pow(10, mel/2595) - 1) }

	bins := nfft/2 + 1
	nyquist := float64(sampleRate) / 2
	maxMel := hzToMel(nyquist)

	edges := make([]float64, bands+2)
	for i := range edges {
		edges[i] = melToHz(maxMel * float64(i) / float64(bands+1))
	}

	filters := make([][]float64, bands)
	for m := range filters {
		filters[m] = make([]float64, bins)
		lo, mid, hi := edges[m], edges[m+1], edges[m+2]
		for k := range filters[m] {
			hz := float64(k) * float64(sampleRate) / float64(nfft)
			w := math.Min((hz-lo)/(mid-lo), (hi-hz)/(hi-mid))
			if w > 0 {
				filters[m][k] = w
			}
		}
	}
	return filters
}

// dctMatrix returns the first n rows of the orthonormal DCT-II basis of size m.
func dctMatrix(n, m int) [][]float64 {
	basis := make([][]float64, n)
	for i := range basis {
		scale := math.Sqrt(2 / float64(m))
		if i == 0 {
			scale = math.Sqrt(1 / float64(m))
		}
		basis[i] = make([]float64, m)
		for j := range basis[i] {
			basis[i][j] = scale * math.Cos(math.Pi*float64(i)*float64(2*j+1)/float64(2*m))
		}
	}
	return basis
}
