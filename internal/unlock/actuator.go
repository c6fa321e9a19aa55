// Package unlock opens the door: an [Actuator] drives the lock hardware and
// [Handler] serves the OTP-gated POST /unlock endpoint.
package unlock

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single actuation.
const DefaultTimeout = 5 * time.Second

// Actuator performs one unlock cycle.
type Actuator interface {
	Unlock(ctx context.Context) error
}

// CommandActuator runs an external program, for example a helper that pulses
// a servo on a GPIO pin, and treats a zero exit status as success.
type CommandActuator struct {
	argv    []string
	timeout time.Duration
	log     *slog.Logger
}

var _ Actuator = (*CommandActuator)(nil)

// NewCommandActuator returns an actuator running argv[0] with argv[1:].
// A non-positive timeout selects [DefaultTimeout].
func NewCommandActuator(argv []string, timeout time.Duration, log *slog.Logger) (*CommandActuator, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.New("unlock: command must not be empty")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &CommandActuator{argv: append([]string(nil), argv...), timeout: timeout, log: log}, nil
}

// Unlock implements [Actuator].
func (a *CommandActuator) Unlock(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, a.argv[0], a.argv[1:]...)
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("unlock: run %s: %w: %s", a.argv[0], err, msg)
		}
		return fmt.Errorf("unlock: run %s: %w", a.argv[0], err)
	}
	a.log.Info("unlock command completed", "command", a.argv[0], "duration", time.Since(start))
	return nil
}

// LogActuator only logs. It stands in for hardware during development.
type LogActuator struct {
	Log *slog.Logger
}

var _ Actuator = LogActuator{}

// Unlock implements [Actuator].
func (a LogActuator) Unlock(ctx context.Context) error {
	l := a.Log
	if l == nil {
		l = slog.Default()
	}
	l.InfoContext(ctx, "unlock requested (no actuator configured)")
	return nil
}
