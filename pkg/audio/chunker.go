package audio

// Chunker regroups arbitrarily sized sample runs, as delivered by device
// callbacks, into fixed-size [Block]s. It is not safe for concurrent use.
type Chunker struct {
	size int
	buf  []float32
	emit func(Block)
}

// NewChunker returns a Chunker that calls emit with every complete block of
// size samples. Emitted blocks are freshly allocated and owned by emit.
func NewChunker(size int, emit func(Block)) *Chunker {
	if size < 1 {
		size = 1
	}
	return &Chunker{size: size, buf: make([]float32, 0, 2*size), emit: emit}
}

// Write appends samples and emits as many full blocks as are available.
func (c *Chunker) Write(samples []float32) {
	c.buf = append(c.buf, samples...)
	off := 0
	for len(c.buf)-off >= c.size {
		b := make(Block, c.size)
		copy(b, c.buf[off:off+c.size])
		off += c.size
		c.emit(b)
	}
	if off > 0 {
		n := copy(c.buf, c.buf[off:])
		c.buf = c.buf[:n]
	}
}

// Pending returns the number of buffered samples not yet emitted.
func (c *Chunker) Pending() int { return len(c.buf) }
