package capture_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/ringwatch/pkg/audio/capture"
)

func TestMatchDevice(t *testing.T) {
	t.Parallel()
	names := []string{"Built-in Microphone", "USB Audio Device", "Monitor of USB Audio"}

	tests := []struct {
		want string
		idx  int
	}{
		{"usb", 1},
		{"MICRO", 0},
		{"monitor", 2},
		{"bluetooth", -1},
	}
	for _, tc := range tests {
		if got := capture.MatchDevice(names, tc.want); got != tc.idx {
			t.Errorf("MatchDevice(%q) = %d, want %d", tc.want, got, tc.idx)
		}
	}
}

func TestNew_RejectsInvalidFormat(t *testing.T) {
	t.Parallel()
	_, err := capture.New(capture.Config{SampleRate: 0, ChunkSize: 4096})
	if !errors.Is(err, capture.ErrDevice) {
		t.Fatalf("err = %v, want ErrDevice", err)
	}
}
