package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/ringwatch/internal/notify"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Unknown keys are rejected. An empty document yields
// the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found, and logs
// warnings for settings that are legal but probably unintended.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate))
	}
	if cfg.Audio.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.chunk_size must be positive, got %d", cfg.Audio.ChunkSize))
	}
	if cfg.Audio.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("audio.queue_size must not be negative, got %d", cfg.Audio.QueueSize))
	}

	// Detector
	d := cfg.Detector
	if !d.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("detector.mode %q is invalid; valid values: frequency, pattern", d.Mode))
	}
	if d.ThrottleDuration < 0 {
		errs = append(errs, fmt.Errorf("detector.throttle_duration must not be negative, got %v", d.ThrottleDuration))
	}
	switch d.Mode {
	case ModeFrequency:
		if err := cfg.FrequencyDetector().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("detector.frequency: %w", err))
		}
	case ModePattern:
		if d.Pattern.ReferenceAudioPath == "" {
			errs = append(errs, errors.New("detector.pattern.reference_audio_path is required in pattern mode"))
		}
		if err := cfg.PatternDetector().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("detector.pattern: %w", err))
		}
	}
	if d.Pattern.TimePause.Enabled {
		if err := d.Pattern.TimePause.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("detector.pattern.time_pause: %w", err))
		}
		if d.Mode == ModeFrequency {
			slog.Warn("detector.pattern.time_pause only applies in pattern mode")
		}
	}

	// OTP, unlock, camera
	if cfg.OTP.Length < 0 || cfg.OTP.Length > 12 {
		errs = append(errs, fmt.Errorf("otp.length %d is out of range [0, 12]", cfg.OTP.Length))
	}
	if cfg.OTP.Expiry < 0 {
		errs = append(errs, fmt.Errorf("otp.expiry must not be negative, got %v", cfg.OTP.Expiry))
	}
	if cfg.Unlock.Timeout < 0 || cfg.Camera.Timeout < 0 {
		errs = append(errs, errors.New("unlock.timeout and camera.timeout must not be negative"))
	}
	if len(cfg.Unlock.Command) == 0 {
		slog.Warn("unlock.command is empty; unlock requests will only be logged")
	}

	// Notify
	if url := cfg.Notify.Discord.WebhookURL; url != "" {
		if _, _, err := notify.ParseWebhookURL(url); err != nil {
			errs = append(errs, fmt.Errorf("notify.discord.webhook_url: %w", err))
		}
	} else {
		slog.Warn("notify.discord.webhook_url is empty; notifications will only be logged")
	}

	// Events
	if cfg.Events.MemoryCapacity < 0 {
		errs = append(errs, fmt.Errorf("events.memory_capacity must not be negative, got %d", cfg.Events.MemoryCapacity))
	}

	return errors.Join(errs...)
}
