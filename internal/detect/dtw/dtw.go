// Package dtw scores the similarity of two feature sequences with
// band-constrained dynamic time warping.
//
// Scores lie in [0, 1]: 0 means the sequences are identical, values close to 1
// mean they are unrelated. Numerical failures never escape [Matcher.Similarity];
// they are logged and reported as maximal dissimilarity.
package dtw

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/MrWong99/ringwatch/internal/detect/mfcc"
)

// DefaultWindowRatio is the Sakoe-Chiba band half-width as a fraction of the
// longer sequence.
const DefaultWindowRatio = 0.1

// Matcher computes DTW similarity scores. A Matcher reuses its row buffers
// and is not safe for concurrent use.
type Matcher struct {
	ratio float64
	log   *slog.Logger

	prev, curr []float64
}

// Option configures a [Matcher].
type Option func(*Matcher)

// WithWindowRatio sets the band half-width ratio. Non-positive values keep
// the default.
func WithWindowRatio(r float64) Option {
	return func(m *Matcher) {
		if r > 0 {
			m.ratio = r
		}
	}
}

// WithLogger sets the logger used to report numerical failures.
func WithLogger(l *slog.Logger) Option {
	return func(m *Matcher) { m.log = l }
}

// New returns a Matcher.
func New(opts ...Option) *Matcher {
	m := &Matcher{ratio: DefaultWindowRatio, log: slog.Default()}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Window returns the band half-width used for sequences of length n and m:
// max(1, round(max(n, m) * ratio)), widened to |n-m| when that is larger so
// the final cell stays reachable. Distance costs O(max(n, m) * Window), so
// for sequences of very different length the cost grows with |n-m| rather
// than with the ratio alone.
func (m *Matcher) Window(n, mm int) int {
	w := max(1, int(math.Round(float64(max(n, mm))*m.ratio)))
	if d := abs(n - mm); d > w {
		w = d
	}
	return w
}

// Similarity returns 1 - exp(-d) where d is the band-constrained DTW cost of
// aligning a with b divided by len(a)+len(b). An empty input scores 1.
func (m *Matcher) Similarity(a, b mfcc.Sequence) (score float64) {
	if len(a) == 0 || len(b) == 0 {
		return 1
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Warn("dtw: recovered from panic", "err", fmt.Sprint(r), "len_a", len(a), "len_b", len(b))
			score = 1
		}
	}()

	dist := m.Distance(a, b)
	norm := dist / float64(len(a)+len(b))
	score = 1 - math.Exp(-norm)
	if math.IsNaN(score) || math.IsInf(score, 0) {
		m.log.Warn("dtw: non-finite similarity", "distance", dist, "len_a", len(a), "len_b", len(b))
		return 1
	}
	return score
}

// Distance returns the accumulated DTW alignment cost of a and b using the
// Euclidean distance between frames as local cost. Work is O(len(a)·w) and
// memory O(len(b)). Empty input yields +Inf.
func (m *Matcher) Distance(a, b mfcc.Sequence) float64 {
	n, mm := len(a), len(b)
	if n == 0 || mm == 0 {
		return math.Inf(1)
	}
	w := m.Window(n, mm)

	m.prev = resize(m.prev, mm+1)
	m.curr = resize(m.curr, mm+1)
	inf := math.Inf(1)
	for j := range m.prev {
		m.prev[j] = inf
	}
	m.prev[0] = 0

	for i := 1; i <= n; i++ {
		for j := range m.curr {
			m.curr[j] = inf
		}
		lo := max(1, i-w)
		hi := min(mm, i+w)
		for j := lo; j <= hi; j++ {
			best := min(m.prev[j], m.curr[j-1], m.prev[j-1])
			m.curr[j] = euclidean(a[i-1], b[j-1]) + best
		}
		m.prev, m.curr = m.curr, m.prev
	}
	return m.prev[mm]
}

func euclidean(x, y []float64) float64 {
	var sum float64
	for k := range min(len(x), len(y)) {
		d := x[k] - y[k]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func resize(s []float64, n int) []float64 {
	if cap(s) < n {
		return make([]float64, n)
	}
	return s[:n]
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
