// Package stream pushes detections and live detector diagnostics to browser
// clients over websockets.
//
// Every client owns a small send buffer. A client that cannot keep up is
// disconnected instead of stalling the broadcaster, which runs on the audio
// capture goroutine.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/ringwatch/internal/detect"
	"github.com/MrWong99/ringwatch/internal/detect/spectral"
	"github.com/MrWong99/ringwatch/internal/observe"
	"github.com/MrWong99/ringwatch/pkg/audio"
)

const (
	// DefaultDiagnosticInterval is the minimum spacing of diagnostic frames.
	DefaultDiagnosticInterval = time.Second

	sendBuffer   = 16
	writeTimeout = 5 * time.Second
)

// Frame types.
const (
	TypeDetection  = "detection"
	TypeDiagnostic = "diagnostic"
)

// Frame is one JSON message sent to clients.
type Frame struct {
	Type       string        `json:"type"`
	Event      *detect.Event `json:"event,omitempty"`
	Diagnostic *Diagnostic   `json:"diagnostic,omitempty"`
}

// Diagnostic summarises one processed audio block.
type Diagnostic struct {
	At         time.Time       `json:"at"`
	Level      float32         `json:"level"`
	Peaks      []spectral.Peak `json:"peaks,omitempty"`
	Similarity float64         `json:"similarity,omitempty"`
	Scored     bool            `json:"scored,omitempty"`
	Paused     bool            `json:"paused,omitempty"`
}

type client struct {
	send chan Frame
}

// Hub tracks connected clients and broadcasts frames to them. It implements
// [http.Handler] for the websocket upgrade and [detect.Observer] for
// diagnostics.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool

	interval atomic.Int64
	lastDiag atomic.Int64

	origins []string
	now     func() time.Time
	metrics *observe.Metrics
	log     *slog.Logger
}

var (
	_ http.Handler    = (*Hub)(nil)
	_ detect.Observer = (*Hub)(nil)
)

// Option configures a [Hub].
type Option func(*Hub)

// WithDiagnosticInterval sets the minimum spacing of diagnostic frames.
// Zero or negative disables diagnostics.
func WithDiagnosticInterval(d time.Duration) Option {
	return func(h *Hub) { h.interval.Store(int64(d)) }
}

// WithOriginPatterns allows cross-origin websocket connections from hosts
// matching the given patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Hub) { h.origins = patterns }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

// WithMetrics tracks the connected client count.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.log = l }
}

// NewHub returns an empty Hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		clients: make(map[*client]struct{}),
		now:     time.Now,
		log:     slog.Default(),
	}
	h.interval.Store(int64(DefaultDiagnosticInterval))
	for _, o := range opts {
		o(h)
	}
	return h
}

// SetDiagnosticInterval changes the diagnostic spacing at runtime.
func (h *Hub) SetDiagnosticInterval(d time.Duration) { h.interval.Store(int64(d)) }

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a websocket and streams frames until the
// client disconnects, falls behind, or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c := &client{send: make(chan Frame, sendBuffer)}
	if !h.add(c) {
		http.Error(w, "stream closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.remove(c)
		h.log.Warn("stream: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	// Clients only listen; CloseRead handles control frames and cancels ctx
	// when the peer goes away.
	ctx := conn.CloseRead(r.Context())
	h.log.Debug("stream: client connected", "remote", r.RemoteAddr)

	for {
		select {
		case <-ctx.Done():
			h.remove(c)
			return
		case f, ok := <-c.send:
			if !ok {
				conn.Close(websocket.StatusPolicyViolation, "client too slow or hub closed")
				return
			}
			if err := h.write(ctx, conn, f); err != nil {
				h.remove(c)
				if !errors.Is(err, context.Canceled) {
					h.log.Debug("stream: write failed", "err", err)
				}
				return
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, f Frame) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, f)
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	if h.metrics != nil {
		h.metrics.StreamClients.Add(context.Background(), 1)
	}
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	if h.metrics != nil {
		h.metrics.StreamClients.Add(context.Background(), -1)
	}
}

// Broadcast queues f for every client. Clients whose buffer is full are
// disconnected. It never blocks.
func (h *Hub) Broadcast(f Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- f:
		default:
			h.log.Warn("stream: dropping slow client")
			h.dropLocked(c)
		}
	}
}

// PublishEvent broadcasts a detection frame.
func (h *Hub) PublishEvent(ev detect.Event) {
	h.Broadcast(Frame{Type: TypeDetection, Event: &ev})
}

// Observe implements [detect.Observer]. It broadcasts at most one diagnostic
// frame per interval and does nothing while no client is connected.
func (h *Hub) Observe(_ context.Context, block audio.Block, res detect.Result) {
	interval := h.interval.Load()
	if interval <= 0 || h.Clients() == 0 {
		return
	}
	now := h.now()
	last := h.lastDiag.Load()
	if now.UnixNano()-last < interval || !h.lastDiag.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	h.Broadcast(Frame{Type: TypeDiagnostic, Diagnostic: &Diagnostic{
		At:         now,
		Level:      audio.Peak(block),
		Peaks:      res.Peaks,
		Similarity: res.Similarity,
		Scored:     res.Scored,
		Paused:     res.Paused,
	}})
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.dropLocked(c)
	}
}
