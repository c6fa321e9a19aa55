package audio

// Ring is a fixed-capacity FIFO of samples. Appending past capacity evicts the
// oldest samples. It is not safe for concurrent use.
type Ring struct {
	buf  []float32
	head int // index of the oldest sample
	n    int
}

// NewRing returns an empty ring holding at most capacity samples (minimum 1).
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]float32, capacity)}
}

// Append adds samples, evicting the oldest ones once the ring is full.
func (r *Ring) Append(samples []float32) {
	c := len(r.buf)
	if len(samples) >= c {
		copy(r.buf, samples[len(samples)-c:])
		r.head = 0
		r.n = c
		return
	}
	for len(samples) > 0 {
		tail := (r.head + r.n) % c
		k := copy(r.buf[tail:], samples)
		if free := c - r.n; k > free {
			// Overwrote k-free of the oldest samples.
			r.head = (r.head + k - free) % c
			r.n = c
		} else {
			r.n += k
		}
		samples = samples[k:]
	}
}

// Len returns the number of buffered samples. It never exceeds [Ring.Cap].
func (r *Ring) Len() int { return r.n }

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Full reports whether the ring holds Cap samples.
func (r *Ring) Full() bool { return r.n == len(r.buf) }

// Snapshot copies the buffered samples, oldest first, into dst (grown as
// needed) and returns it.
func (r *Ring) Snapshot(dst []float32) []float32 {
	if cap(dst) < r.n {
		dst = make([]float32, r.n)
	}
	dst = dst[:r.n]
	first := min(r.n, len(r.buf)-r.head)
	copy(dst, r.buf[r.head:r.head+first])
	copy(dst[first:], r.buf[:r.n-first])
	return dst
}

// Reset empties the ring without releasing its storage.
func (r *Ring) Reset() {
	r.head = 0
	r.n = 0
}
