// Command ringwatch listens for the intercom ring, notifies the operator with
// a one-time unlock code, and opens the door when the code comes back.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MrWong99/ringwatch/internal/app"
	"github.com/MrWong99/ringwatch/internal/config"
	"github.com/MrWong99/ringwatch/internal/observe"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload hot-reloadable settings when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "ringwatch: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "ringwatch: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("ringwatch starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg,
		app.WithMetrics(observe.DefaultMetrics(), telemetry.MetricsHandler),
		app.WithLevelVar(level),
		app.WithLogger(logger),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	if *watch {
		w, err := config.NewWatcher(*configPath, application.ApplyConfig)
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	slog.Info("ready, press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        ringwatch startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Mode", string(cfg.Detector.Mode))
	switch cfg.Detector.Mode {
	case config.ModePattern:
		printRow("Reference", cfg.Detector.Pattern.ReferenceAudioPath)
		printRow("Time pause", cfg.Detector.Pattern.TimePause.String())
	default:
		targets := make([]string, len(cfg.Detector.Frequency.TargetFrequencies))
		for i, f := range cfg.Detector.Frequency.TargetFrequencies {
			targets[i] = fmt.Sprintf("%g", f)
		}
		printRow("Targets (Hz)", strings.Join(targets, ", "))
	}
	printRow("Throttle", cfg.Detector.ThrottleDuration.String())
	printRow("Audio device", orDefault(cfg.Audio.Device, "(default)"))
	printRow("Sample rate", fmt.Sprintf("%d / %d", cfg.Audio.SampleRate, cfg.Audio.ChunkSize))
	printRow("Discord", enabled(cfg.Notify.Discord.WebhookURL != ""))
	printRow("Camera", enabled(len(cfg.Camera.Command) > 0))
	printRow("Unlock command", enabled(len(cfg.Unlock.Command) > 0))
	store := "memory"
	if cfg.Events.PostgresDSN != "" {
		store = "postgres"
	}
	printRow("Event store", store)
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "..."
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", label, value)
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "(disabled)"
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
