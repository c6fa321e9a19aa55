package otp_test

import (
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/ringwatch/internal/otp"
)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestGenerate_Format(t *testing.T) {
	t.Parallel()
	for _, length := range []int{4, 6, 8} {
		s := otp.NewStore(otp.WithLength(length))
		code, err := s.Generate()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if len(code) != length {
			t.Errorf("len(%q) = %d, want %d", code, len(code), length)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Errorf("code %q contains non-digit %q", code, r)
			}
		}
	}
}

func TestValidate_OneTime(t *testing.T) {
	t.Parallel()
	s := otp.NewStore()
	code, err := s.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !s.Validate(code) {
		t.Fatal("fresh code rejected")
	}
	if s.Validate(code) {
		t.Error("code accepted twice")
	}
	if s.Validate("") || s.Validate("not-a-code") {
		t.Error("unknown code accepted")
	}
}

func TestValidate_Expiry(t *testing.T) {
	t.Parallel()
	clock := &manualClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := otp.NewStore(otp.WithExpiry(30*time.Second), otp.WithClock(clock.Now))

	fresh, _ := s.Generate()
	stale, _ := s.Generate()
	for fresh == stale {
		stale, _ = s.Generate()
	}

	clock.Advance(30 * time.Second)
	if !s.Validate(fresh) {
		t.Error("code rejected at exactly the expiry boundary")
	}

	clock.Advance(time.Millisecond)
	if s.Validate(stale) {
		t.Error("expired code accepted")
	}
}

func TestActive(t *testing.T) {
	t.Parallel()
	clock := &manualClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := otp.NewStore(otp.WithExpiry(10*time.Second), otp.WithClock(clock.Now), otp.WithLength(12))

	for range 3 {
		if _, err := s.Generate(); err != nil {
			t.Fatalf("Generate: %v", err)
		}
	}
	if got := s.Active(); got != 3 {
		t.Errorf("Active = %d, want 3", got)
	}
	clock.Advance(11 * time.Second)
	if got := s.Active(); got != 0 {
		t.Errorf("Active after expiry = %d, want 0", got)
	}
}

func TestConcurrentUse(t *testing.T) {
	t.Parallel()
	s := otp.NewStore(otp.WithLength(16))
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				code, err := s.Generate()
				if err != nil {
					t.Errorf("Generate: %v", err)
					return
				}
				if !s.Validate(code) {
					t.Errorf("Validate(%q) = false", code)
				}
			}
		}()
	}
	wg.Wait()
	if got := s.Active(); got != 0 {
		t.Errorf("Active = %d, want 0", got)
	}
}
