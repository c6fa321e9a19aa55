// Package app wires all ringwatch subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the capture loop, the notification dispatcher and
// the HTTP server, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithSource,
// WithDetector, WithNotifier, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/ringwatch/internal/camera"
	"github.com/MrWong99/ringwatch/internal/config"
	"github.com/MrWong99/ringwatch/internal/detect"
	"github.com/MrWong99/ringwatch/internal/detect/frequency"
	"github.com/MrWong99/ringwatch/internal/detect/pattern"
	"github.com/MrWong99/ringwatch/internal/eventlog"
	"github.com/MrWong99/ringwatch/internal/notify"
	"github.com/MrWong99/ringwatch/internal/observe"
	"github.com/MrWong99/ringwatch/internal/otp"
	"github.com/MrWong99/ringwatch/internal/resilience"
	"github.com/MrWong99/ringwatch/internal/stream"
	"github.com/MrWong99/ringwatch/internal/unlock"
	"github.com/MrWong99/ringwatch/pkg/audio"
	"github.com/MrWong99/ringwatch/pkg/audio/capture"
)

// dispatchQueue bounds the detection events waiting for notification.
const dispatchQueue = 16

// errSourceClosed is returned by Run when the audio source stops delivering
// blocks on its own.
var errSourceClosed = errors.New("app: audio source closed")

var errCaptureStopped = errors.New("capture not running")

// App owns all subsystem lifetimes.
type App struct {
	cfg     *config.Config
	log     *slog.Logger
	level   *slog.LevelVar
	metrics *observe.Metrics

	// Subsystems: initialised in New, torn down in Shutdown.
	source    audio.Source
	detector  detect.Detector
	gate      gateSetter
	coord     *detect.Coordinator
	otps      *otp.Store
	actuator  unlock.Actuator
	snapshots camera.Snapshotter
	notifier  notify.Notifier
	events    eventlog.Store
	hub       *stream.Hub

	metricsHandler http.Handler
	mux            *http.ServeMux
	server         *http.Server

	dispatch  chan detect.Event
	message   atomic.Pointer[string]
	lastEvent atomic.Pointer[detect.Event]

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// gateSetter is implemented by detectors with a hot-reloadable time gate.
type gateSetter interface {
	SetGate(detect.TimeGate)
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSource injects an audio source instead of opening the capture device.
func WithSource(s audio.Source) Option {
	return func(a *App) { a.source = s }
}

// WithDetector injects a detector instead of building one from config.
func WithDetector(d detect.Detector) Option {
	return func(a *App) { a.detector = d }
}

// WithActuator injects the door actuator.
func WithActuator(act unlock.Actuator) Option {
	return func(a *App) { a.actuator = act }
}

// WithSnapshotter injects the camera.
func WithSnapshotter(s camera.Snapshotter) Option {
	return func(a *App) { a.snapshots = s }
}

// WithNotifier injects the notifier instead of the configured fallback group.
func WithNotifier(n notify.Notifier) Option {
	return func(a *App) { a.notifier = n }
}

// WithEventStore injects the detection history store.
func WithEventStore(s eventlog.Store) Option {
	return func(a *App) { a.events = s }
}

// WithMetrics sets the metric instruments and the handler serving /metrics.
// Default: [observe.DefaultMetrics] and no /metrics route.
func WithMetrics(m *observe.Metrics, handler http.Handler) Option {
	return func(a *App) {
		a.metrics = m
		a.metricsHandler = handler
	}
}

// WithLevelVar lets ApplyConfig change the log level at runtime.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Use Option functions
// to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: reference loading, event
// store connection and migration, capture device resolution, and HTTP route
// registration. Nothing runs until [App.Run].
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		log:      slog.Default(),
		dispatch: make(chan detect.Event, dispatchQueue),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	msg := cfg.Notify.Message
	a.message.Store(&msg)

	// ── 1. Detector + coordinator ────────────────────────────────────────
	if err := a.initDetector(); err != nil {
		return nil, fmt.Errorf("app: init detector: %w", err)
	}
	a.coord = detect.NewCoordinator(a.detector,
		detect.WithMode(string(cfg.Detector.Mode)),
		detect.WithThrottle(cfg.Detector.ThrottleDuration),
		detect.WithMetrics(a.metrics),
		detect.WithLogger(a.log),
	)

	// ── 2. Unlock path ───────────────────────────────────────────────────
	if err := a.initUnlock(); err != nil {
		return nil, fmt.Errorf("app: init unlock: %w", err)
	}

	// ── 3. Notifications ─────────────────────────────────────────────────
	if err := a.initNotify(); err != nil {
		return nil, fmt.Errorf("app: init notify: %w", err)
	}

	// ── 4. Event store ───────────────────────────────────────────────────
	if err := a.initEvents(ctx); err != nil {
		return nil, fmt.Errorf("app: init events: %w", err)
	}

	// ── 5. Live stream ───────────────────────────────────────────────────
	a.hub = stream.NewHub(
		stream.WithDiagnosticInterval(cfg.Stream.DiagnosticInterval),
		stream.WithMetrics(a.metrics),
		stream.WithLogger(a.log),
	)
	a.coord.Subscribe(a.hub)
	a.coord.SetHandler(a.enqueue)

	// ── 6. Audio source ──────────────────────────────────────────────────
	if err := a.initSource(); err != nil {
		a.events.Close()
		return nil, fmt.Errorf("app: init audio: %w", err)
	}

	// ── 7. HTTP ──────────────────────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initDetector builds the configured detector unless one was injected.
func (a *App) initDetector() error {
	if a.detector != nil {
		if g, ok := a.detector.(gateSetter); ok {
			a.gate = g
		}
		return nil
	}

	switch a.cfg.Detector.Mode {
	case config.ModePattern:
		path := a.cfg.Detector.Pattern.ReferenceAudioPath
		ref, err := audio.LoadFile(path, a.cfg.Audio.SampleRate)
		if err != nil {
			return fmt.Errorf("load reference %q: %w", path, err)
		}
		d, err := pattern.New(ref, a.cfg.PatternDetector(), pattern.WithLogger(a.log))
		if err != nil {
			return err
		}
		a.log.Info("pattern detector ready",
			"reference", path,
			"reference_frames", d.Reference().Len(),
			"buffer_samples", d.BufferCap(),
			"time_pause", d.Gate().String(),
		)
		a.detector, a.gate = d, d
	default:
		d, err := frequency.New(a.cfg.FrequencyDetector(), frequency.WithLogger(a.log))
		if err != nil {
			return err
		}
		a.log.Info("frequency detector ready",
			"targets", a.cfg.Detector.Frequency.TargetFrequencies,
			"ordered", a.cfg.Detector.Frequency.Ordered,
			"min_detections", d.MinDetections(),
		)
		a.detector = d
	}
	return nil
}

// initUnlock sets up the OTP store, actuator and camera.
func (a *App) initUnlock() error {
	var otpOpts []otp.Option
	if a.cfg.OTP.Length > 0 {
		otpOpts = append(otpOpts, otp.WithLength(a.cfg.OTP.Length))
	}
	if a.cfg.OTP.Expiry > 0 {
		otpOpts = append(otpOpts, otp.WithExpiry(a.cfg.OTP.Expiry))
	}
	a.otps = otp.NewStore(otpOpts...)

	if a.actuator == nil {
		if len(a.cfg.Unlock.Command) == 0 {
			a.actuator = unlock.LogActuator{Log: a.log}
		} else {
			act, err := unlock.NewCommandActuator(a.cfg.Unlock.Command, a.cfg.Unlock.Timeout, a.log)
			if err != nil {
				return err
			}
			a.actuator = act
		}
	}

	if a.snapshots == nil {
		if len(a.cfg.Camera.Command) == 0 {
			a.snapshots = camera.Nop{}
		} else {
			snap, err := camera.NewCommandSnapshotter(a.cfg.Camera.Command, a.cfg.Camera.Timeout)
			if err != nil {
				return err
			}
			a.snapshots = snap
		}
	}
	return nil
}

// initNotify builds the notifier fallback chain: Discord when configured,
// then the log as the last resort.
func (a *App) initNotify() error {
	if a.notifier != nil {
		return nil
	}
	var chain []notify.Notifier
	if url := a.cfg.Notify.Discord.WebhookURL; url != "" {
		d, err := notify.NewDiscord(url, nil)
		if err != nil {
			return err
		}
		chain = append(chain, d)
	}
	chain = append(chain, notify.NewLog(a.log))

	a.notifier = notify.NewGroup(resilience.CircuitBreakerConfig{
		Name:         "notify",
		MaxFailures:  3,
		ResetTimeout: time.Minute,
	}, chain, notify.WithMetrics(a.metrics), notify.WithLogger(a.log))
	return nil
}

// initEvents opens the PostgreSQL event store or falls back to memory.
func (a *App) initEvents(ctx context.Context) error {
	if a.events != nil {
		return nil
	}
	if dsn := a.cfg.Events.PostgresDSN; dsn != "" {
		s, err := eventlog.Open(ctx, dsn)
		if err != nil {
			return err
		}
		a.events = s
		a.log.Info("event log backed by postgres")
		return nil
	}
	a.events = eventlog.NewMemStore(a.cfg.Events.MemoryCapacity)
	return nil
}

// initSource opens the capture device unless a source was injected.
func (a *App) initSource() error {
	if a.source != nil {
		return nil
	}
	src, err := capture.New(capture.Config{
		Device:     a.cfg.Audio.Device,
		SampleRate: a.cfg.Audio.SampleRate,
		ChunkSize:  a.cfg.Audio.ChunkSize,
		QueueSize:  a.cfg.Audio.QueueSize,
		OnDrop: func() {
			a.metrics.BlocksDropped.Add(context.Background(), 1)
		},
	}, capture.WithLogger(a.log))
	if err != nil {
		return err
	}
	a.source = src
	return nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the capture loop, the dispatcher and the HTTP server, and blocks
// until ctx is cancelled or one of them fails. A cancelled ctx is not an
// error.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.coord.Run(gctx, a.source); err != nil {
			return err
		}
		if gctx.Err() == nil {
			return errSourceClosed
		}
		return nil
	})

	g.Go(func() error {
		a.runDispatcher(gctx)
		return nil
	})

	g.Go(func() error {
		a.log.Info("http server listening", "addr", a.server.Addr)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: http server: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems. It respects the context deadline: if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down")

		// Stop audio first so no new detections arrive.
		if err := a.source.Stop(); err != nil {
			a.log.Warn("audio source stop error", "err", err)
		}
		a.coord.SetHandler(nil)
		a.hub.Close()

		closers := []func() error{
			func() error { return a.server.Shutdown(ctx) },
			func() error { a.events.Close(); return nil },
		}
		for i, closer := range closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable differences between old and new.
// Changes that need a restart are logged and otherwise ignored.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.ThrottleChanged {
		a.coord.SetThrottle(d.NewThrottle)
		a.log.Info("throttle changed", "throttle", d.NewThrottle)
	}
	if d.TimePauseChanged {
		if a.gate != nil {
			a.gate.SetGate(d.NewTimePause)
			a.log.Info("time pause changed", "window", d.NewTimePause.String())
		} else {
			a.log.Warn("time pause changed but the active detector has none", "mode", a.coord.Mode())
		}
	}
	if d.MessageChanged {
		msg := d.NewMessage
		a.message.Store(&msg)
		a.log.Info("notification message changed")
	}
	if d.DiagnosticIntervalChanged {
		a.hub.SetDiagnosticInterval(d.NewDiagnosticInterval)
	}
	if len(d.RestartRequired) > 0 {
		a.log.Warn("config changes require a restart to take effect", "sections", d.RestartRequired)
	}
}
