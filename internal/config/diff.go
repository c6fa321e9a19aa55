package config

import (
	"slices"
	"time"

	"github.com/MrWong99/ringwatch/internal/detect"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// needs a restart and is reported through RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	ThrottleChanged bool
	NewThrottle     time.Duration

	TimePauseChanged bool
	NewTimePause     detect.TimeGate

	MessageChanged bool
	NewMessage     string

	DiagnosticIntervalChanged bool
	NewDiagnosticInterval     time.Duration

	// RestartRequired lists top-level sections with changes that only take
	// effect after a restart.
	RestartRequired []string
}

// Changed reports whether any hot-reloadable field changed.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.ThrottleChanged || d.TimePauseChanged ||
		d.MessageChanged || d.DiagnosticIntervalChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Detector.ThrottleDuration != new.Detector.ThrottleDuration {
		d.ThrottleChanged = true
		d.NewThrottle = new.Detector.ThrottleDuration
	}
	if old.Detector.Pattern.TimePause != new.Detector.Pattern.TimePause {
		d.TimePauseChanged = true
		d.NewTimePause = new.Detector.Pattern.TimePause
	}
	if old.Notify.Message != new.Notify.Message {
		d.MessageChanged = true
		d.NewMessage = new.Notify.Message
	}
	if old.Stream.DiagnosticInterval != new.Stream.DiagnosticInterval {
		d.DiagnosticIntervalChanged = true
		d.NewDiagnosticInterval = new.Stream.DiagnosticInterval
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.UnlockURL != new.Server.UnlockURL ||
		!equalTLS(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if !detectorEqual(old.Detector, new.Detector) {
		d.RestartRequired = append(d.RestartRequired, "detector")
	}
	if old.OTP != new.OTP {
		d.RestartRequired = append(d.RestartRequired, "otp")
	}
	if !slices.Equal(old.Unlock.Command, new.Unlock.Command) || old.Unlock.Timeout != new.Unlock.Timeout {
		d.RestartRequired = append(d.RestartRequired, "unlock")
	}
	if !slices.Equal(old.Camera.Command, new.Camera.Command) || old.Camera.Timeout != new.Camera.Timeout {
		d.RestartRequired = append(d.RestartRequired, "camera")
	}
	if old.Notify.Discord != new.Notify.Discord {
		d.RestartRequired = append(d.RestartRequired, "notify")
	}
	if old.Events != new.Events {
		d.RestartRequired = append(d.RestartRequired, "events")
	}

	return d
}

// detectorEqual compares the detector sections ignoring the hot-reloadable
// throttle and time pause.
func detectorEqual(a, b DetectorConfig) bool {
	a.Pattern.TimePause, b.Pattern.TimePause = detect.TimeGate{}, detect.TimeGate{}
	return a.Mode == b.Mode && a.Pattern == b.Pattern && frequencyEqual(a.Frequency, b.Frequency)
}

func frequencyEqual(a, b FrequencyConfig) bool {
	return slices.Equal(a.TargetFrequencies, b.TargetFrequencies) &&
		a.Ordered == b.Ordered &&
		a.Tolerance == b.Tolerance &&
		a.Harmonics == b.Harmonics &&
		a.DetectionThreshold == b.DetectionThreshold &&
		a.DetectionDuration == b.DetectionDuration &&
		a.StateTimeout == b.StateTimeout &&
		a.NumPeaks == b.NumPeaks
}

func equalTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
