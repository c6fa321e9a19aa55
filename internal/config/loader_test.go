package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/ringwatch/internal/config"
)

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("detector:\n  modee: pattern\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
	if !strings.Contains(err.Error(), "modee") {
		t.Errorf("error should name the unknown field, got: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr []string
	}{
		{
			name:    "bad log level",
			yaml:    "server:\n  log_level: bananas\n",
			wantErr: []string{"server.log_level"},
		},
		{
			name:    "bad mode",
			yaml:    "detector:\n  mode: magic\n",
			wantErr: []string{"detector.mode"},
		},
		{
			name:    "pattern without reference",
			yaml:    "detector:\n  mode: pattern\n",
			wantErr: []string{"reference_audio_path"},
		},
		{
			name:    "frequency threshold out of range",
			yaml:    "detector:\n  frequency:\n    detection_threshold: 1.5\n",
			wantErr: []string{"detection_threshold"},
		},
		{
			name:    "negative target",
			yaml:    "detector:\n  frequency:\n    target_frequencies: [-1]\n",
			wantErr: []string{"frequency must be positive"},
		},
		{
			name:    "time pause hours",
			yaml:    "detector:\n  pattern:\n    time_pause:\n      enabled: true\n      start_hour: 25\n",
			wantErr: []string{"time_pause", "start_hour"},
		},
		{
			name:    "bad webhook",
			yaml:    "notify:\n  discord:\n    webhook_url: https://example.com/hook\n",
			wantErr: []string{"notify.discord.webhook_url"},
		},
		{
			name:    "tls missing key",
			yaml:    "server:\n  tls:\n    cert_file: cert.pem\n",
			wantErr: []string{"server.tls"},
		},
		{
			name:    "multiple problems joined",
			yaml:    "server:\n  log_level: loud\naudio:\n  sample_rate: -1\notp:\n  length: 20\n",
			wantErr: []string{"server.log_level", "audio.sample_rate", "otp.length"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error should mention %q, got: %v", want, err)
				}
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "ringwatch.yaml")
	if err := os.WriteFile(path, []byte("server:\n  log_level: warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.LogLevel != config.LogWarn {
		t.Errorf("log_level = %q, want warn", cfg.Server.LogLevel)
	}

	if _, err := config.Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
