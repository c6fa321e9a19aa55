package dtw_test

import (
	"bytes"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/MrWong99/ringwatch/internal/detect/dtw"
	"github.com/MrWong99/ringwatch/internal/detect/mfcc"
)

const sampleRate = 44100

// toneBurst returns one second of audio: a quarter second of silence followed
// by a sine at freq.
func toneBurst(freq float64) []float32 {
	out := make([]float32, sampleRate)
	for i := sampleRate / 4; i < len(out); i++ {
		out[i] = float32(0.7 * math.Sin(2*math.Pi*freq*float64(i)/sampleRate))
	}
	return out
}

func TestSimilarity_Self(t *testing.T) {
	t.Parallel()
	seq := mfcc.NewExtractor(sampleRate, mfcc.WithDownsample(2)).Extract(toneBurst(502))
	if seq.Len() == 0 {
		t.Fatal("empty feature sequence")
	}
	if got := dtw.New().Similarity(seq, seq); got != 0 {
		t.Errorf("Similarity(seq, seq) = %v, want exactly 0", got)
	}
}

func TestSimilarity_DistinctTones(t *testing.T) {
	t.Parallel()
	ex := mfcc.NewExtractor(sampleRate)
	low := ex.Extract(toneBurst(440))
	high := ex.Extract(toneBurst(2000))

	m := dtw.New()
	for name, got := range map[string]float64{
		"440 vs 2000": m.Similarity(low, high),
		"2000 vs 440": m.Similarity(high, low),
	} {
		if got <= 0.5 {
			t.Errorf("%s: similarity = %v, want > 0.5", name, got)
		}
		if got >= 1 {
			t.Errorf("%s: similarity = %v, want < 1", name, got)
		}
	}
}

func TestSimilarity_Empty(t *testing.T) {
	t.Parallel()
	seq := mfcc.Sequence{{1, 2}, {3, 4}}
	tests := []struct {
		name string
		a, b mfcc.Sequence
	}{
		{"both empty", nil, nil},
		{"first empty", nil, seq},
		{"second empty", seq, mfcc.Sequence{}},
	}
	for _, tc := range tests {
		if got := dtw.New().Similarity(tc.a, tc.b); got != 1 {
			t.Errorf("%s: Similarity = %v, want 1", tc.name, got)
		}
	}
}

func TestSimilarity_NonFinite(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	a := mfcc.Sequence{{0, math.NaN()}, {1, 1}}
	b := mfcc.Sequence{{0, 0}, {1, 1}}
	if got := dtw.New(dtw.WithLogger(log)).Similarity(a, b); got != 1 {
		t.Errorf("Similarity = %v, want 1", got)
	}
	if !strings.Contains(buf.String(), "non-finite") {
		t.Errorf("expected a warning, log output: %q", buf.String())
	}
}

func TestDistance_KnownAlignment(t *testing.T) {
	t.Parallel()
	// One-dimensional sequences; the optimal path repeats b's middle frame.
	a := mfcc.Sequence{{0}, {1}, {1}, {2}}
	b := mfcc.Sequence{{0}, {1}, {2}}
	if got := dtw.New().Distance(a, b); got != 0 {
		t.Errorf("Distance = %v, want 0", got)
	}

	c := mfcc.Sequence{{0}, {3}}
	d := mfcc.Sequence{{0}, {1}}
	if got := dtw.New().Distance(c, d); got != 2 {
		t.Errorf("Distance = %v, want 2", got)
	}
}

func TestDistance_BandWidensForLengthMismatch(t *testing.T) {
	t.Parallel()
	a := make(mfcc.Sequence, 40)
	for i := range a {
		a[i] = []float64{float64(i)}
	}
	b := mfcc.Sequence{{0}, {39}}

	m := dtw.New(dtw.WithWindowRatio(0.01))
	if w := m.Window(len(a), len(b)); w != 38 {
		t.Errorf("Window = %d, want 38", w)
	}
	if got := m.Distance(a, b); math.IsInf(got, 0) {
		t.Error("Distance = +Inf, end cell unreachable")
	}
}

func TestWindow(t *testing.T) {
	t.Parallel()
	tests := []struct {
		ratio float64
		n, m  int
		want  int
	}{
		{0.1, 42, 42, 4},
		{0.1, 5, 5, 1},
		{0.1, 45, 40, 5},
		{0.1, 100, 80, 20},
		{0.5, 10, 10, 5},
	}
	for _, tc := range tests {
		if got := dtw.New(dtw.WithWindowRatio(tc.ratio)).Window(tc.n, tc.m); got != tc.want {
			t.Errorf("Window(%d, %d) at ratio %v = %d, want %d", tc.n, tc.m, tc.ratio, got, tc.want)
		}
	}
}
