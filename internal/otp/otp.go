// Package otp issues short numeric one-time passwords that authorise a single
// unlock within a short expiry window.
package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"
)

const (
	// DefaultLength is the number of digits in a generated code.
	DefaultLength = 6

	// DefaultExpiry is how long a code stays valid.
	DefaultExpiry = 30 * time.Second
)

// Option configures a [Store].
type Option func(*Store)

// WithLength sets the number of digits per code.
func WithLength(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.length = n
		}
	}
}

// WithExpiry sets how long a code stays valid.
func WithExpiry(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store holds issued codes. It is safe for concurrent use.
type Store struct {
	length int
	expiry time.Duration
	now    func() time.Time

	mu     sync.Mutex
	issued map[string]time.Time
}

// NewStore returns an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		length: DefaultLength,
		expiry: DefaultExpiry,
		now:    time.Now,
		issued: make(map[string]time.Time),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Expiry returns the validity window of a code.
func (s *Store) Expiry() time.Duration { return s.expiry }

// Generate issues a new random code.
func (s *Store) Generate() (string, error) {
	ten := big.NewInt(10)
	digits := make([]byte, s.length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("otp: generate: %w", err)
		}
		digits[i] = byte('0' + n.Int64())
	}
	code := string(digits)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued[code] = s.now()
	return code, nil
}

// Validate reports whether code was issued and has not expired. A valid code
// is consumed and cannot be used again.
func (s *Store) Validate(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()

	if _, ok := s.issued[code]; !ok {
		return false
	}
	delete(s.issued, code)
	return true
}

// Active returns the number of unexpired codes.
func (s *Store) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	return len(s.issued)
}

func (s *Store) pruneLocked() {
	now := s.now()
	for code, at := range s.issued {
		if now.Sub(at) > s.expiry {
			delete(s.issued, code)
		}
	}
}
