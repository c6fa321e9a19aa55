// Package capture implements [audio.Source] on top of a miniaudio capture
// device. Device callbacks are regrouped into fixed-size mono blocks and
// handed to the detection loop through a bounded drop-oldest queue.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/ringwatch/pkg/audio"
)

// ErrDevice is wrapped by setup errors caused by a missing or unusable
// capture device.
var ErrDevice = errors.New("capture: audio device unavailable")

// Config configures a [Source].
type Config struct {
	// Device selects the capture device by case-insensitive name substring.
	// Empty selects the system default.
	Device string

	// SampleRate in Hz.
	SampleRate int

	// ChunkSize is the number of samples per delivered block.
	ChunkSize int

	// QueueSize bounds the number of blocks waiting for the detection loop.
	QueueSize int

	// OnDrop is called whenever the queue evicts a block.
	OnDrop func()
}

// Source captures mono float32 audio from a device.
type Source struct {
	cfg    Config
	log    *slog.Logger
	mctx   *malgo.AllocatedContext
	device *malgo.DeviceID
	queue  *audio.Queue

	mu      sync.Mutex
	dev     *malgo.Device
	running atomic.Bool
	stopped bool
}

// Option configures a [Source].
type Option func(*Source)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) { s.log = l }
}

// New initialises the audio backend and resolves the configured device.
// Errors wrap [ErrDevice].
func New(cfg Config, opts ...Option) (*Source, error) {
	if cfg.SampleRate <= 0 || cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: invalid format (sample_rate %d, chunk_size %d)", ErrDevice, cfg.SampleRate, cfg.ChunkSize)
	}
	s := &Source{cfg: cfg, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	s.queue = audio.NewQueue(cfg.QueueSize, cfg.OnDrop)

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: init backend: %w", ErrDevice, err)
	}
	s.mctx = mctx

	if cfg.Device != "" {
		infos, err := mctx.Devices(malgo.Capture)
		if err != nil {
			s.freeContext()
			return nil, fmt.Errorf("%w: enumerate devices: %w", ErrDevice, err)
		}
		names := make([]string, len(infos))
		for i, info := range infos {
			names[i] = info.Name()
		}
		idx := MatchDevice(names, cfg.Device)
		if idx < 0 {
			s.freeContext()
			return nil, fmt.Errorf("%w: no capture device matches %q (available: %s)",
				ErrDevice, cfg.Device, strings.Join(names, ", "))
		}
		id := infos[idx].ID
		s.device = &id
		s.log.Info("capture device selected", "device", names[idx])
	}
	return s, nil
}

// MatchDevice returns the index of the first name containing want
// (case-insensitive), or -1.
func MatchDevice(names []string, want string) int {
	want = strings.ToLower(want)
	for i, n := range names {
		if strings.Contains(strings.ToLower(n), want) {
			return i
		}
	}
	return -1
}

// Start implements [audio.Source]. Capture stops when ctx is cancelled.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("%w: source already stopped", ErrDevice)
	}
	if s.dev != nil {
		return nil
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.Capture.Format = malgo.FormatF32
	devCfg.Capture.Channels = 1
	devCfg.SampleRate = uint32(s.cfg.SampleRate)
	devCfg.Alsa.NoMMap = 1
	if s.device != nil {
		devCfg.Capture.DeviceID = s.device.Pointer()
	}

	chunker := audio.NewChunker(s.cfg.ChunkSize, func(b audio.Block) { s.queue.Push(b) })
	onData := func(_, in []byte, frames uint32) {
		if len(in) < int(frames)*4 {
			return
		}
		chunker.Write(audio.Float32LEToFloat32(in[:frames*4]))
	}

	dev, err := malgo.InitDevice(s.mctx.Context, devCfg, malgo.DeviceCallbacks{Data: onData})
	if err != nil {
		return fmt.Errorf("%w: init device: %w", ErrDevice, err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return fmt.Errorf("%w: start device: %w", ErrDevice, err)
	}
	s.dev = dev
	s.running.Store(true)
	s.log.Info("audio capture started",
		"sample_rate", s.cfg.SampleRate,
		"chunk_size", s.cfg.ChunkSize,
		"queue_size", s.cfg.QueueSize,
	)

	go func() {
		<-ctx.Done()
		_ = s.Stop()
	}()
	return nil
}

// Blocks implements [audio.Source].
func (s *Source) Blocks() <-chan audio.Block { return s.queue.C() }

// Running reports whether the device is capturing.
func (s *Source) Running() bool { return s.running.Load() }

// Dropped returns the number of blocks evicted by the queue.
func (s *Source) Dropped() int64 { return s.queue.Dropped() }

// Stop implements [audio.Source]. It waits for any in-flight device callback,
// closes the block channel and releases the backend.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	s.running.Store(false)
	if s.dev != nil {
		s.dev.Uninit()
		s.dev = nil
	}
	s.queue.Close()
	err := s.freeContext()
	s.log.Info("audio capture stopped", "dropped_blocks", s.queue.Dropped())
	return err
}

func (s *Source) freeContext() error {
	if s.mctx == nil {
		return nil
	}
	err := s.mctx.Uninit()
	s.mctx.Free()
	s.mctx = nil
	return err
}
