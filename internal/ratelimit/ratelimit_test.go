package ratelimit

import (
	"errors"
	"testing"
)

func TestAllowConsumesBurst(t *testing.T) {
	limiter := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 3})

	for i := 0; i < 3; i++ {
		if err := limiter.Allow("alice"); err != nil {
			t.Fatalf("request %d should be allowed: %v", i, err)
		}
	}
	if err := limiter.Allow("alice"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited after burst, got %v", err)
	}
}

func TestBucketsAreIndependent(t *testing.T) {
	limiter := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 1})

	if err := limiter.Allow("alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := limiter.Allow("alice"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected alice to be limited, got %v", err)
	}
	if err := limiter.Allow("bob"); err != nil {
		t.Errorf("bob must have their own bucket: %v", err)
	}
}

func TestUnlimitedMode(t *testing.T) {
	limiter := NewLimiter(Config{})
	for i := 0; i < 100; i++ {
		if err := limiter.Allow("anyone"); err != nil {
			t.Fatalf("unlimited mode must always allow: %v", err)
		}
	}
}
