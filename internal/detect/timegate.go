package detect

import (
	"fmt"
	"time"
)

// TimeGate suppresses detection during a daily window of wall-clock hours.
// The window [StartHour, EndHour) wraps across midnight when StartHour is
// greater than EndHour. Equal hours describe an empty window.
type TimeGate struct {
	Enabled   bool `yaml:"enabled"`
	StartHour int  `yaml:"start_hour"`
	EndHour   int  `yaml:"end_hour"`
}

// Paused reports whether t falls inside the window. The hour is taken in t's
// location.
func (g TimeGate) Paused(t time.Time) bool {
	if !g.Enabled || g.StartHour == g.EndHour {
		return false
	}
	h := t.Hour()
	if g.StartHour < g.EndHour {
		return h >= g.StartHour && h < g.EndHour
	}
	return h >= g.StartHour || h < g.EndHour
}

// Validate checks that both hours are in 0-23.
func (g TimeGate) Validate() error {
	if g.StartHour < 0 || g.StartHour > 23 {
		return fmt.Errorf("detect: time gate start_hour %d out of range 0-23", g.StartHour)
	}
	if g.EndHour < 0 || g.EndHour > 23 {
		return fmt.Errorf("detect: time gate end_hour %d out of range 0-23", g.EndHour)
	}
	return nil
}

// String renders the gate as "[22:00, 08:00)" or "off".
func (g TimeGate) String() string {
	if !g.Enabled {
		return "off"
	}
	return fmt.Sprintf("[%02d:00, %02d:00)", g.StartHour, g.EndHour)
}
