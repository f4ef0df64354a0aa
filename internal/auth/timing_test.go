package auth

import (
	"testing"
	"time"
)

func TestTimingDelayWaitFrom(t *testing.T) {
	td := NewTimingDelay(TimingConfig{BaseDelayMs: 30, RandomDelayMs: 0})

	start := time.Now()
	td.WaitFrom(start)
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("expected at least 30ms elapsed, got %v", elapsed)
	}
}

func TestTimingDelayCountsElapsedWork(t *testing.T) {
	td := NewTimingDelay(TimingConfig{BaseDelayMs: 20, RandomDelayMs: 0})

	// Work slower than the target needs no extra sleep.
	start := time.Now().Add(-50 * time.Millisecond)
	before := time.Now()
	td.WaitFrom(start)
	if waited := time.Since(before); waited > 10*time.Millisecond {
		t.Errorf("expected no additional sleep, waited %v", waited)
	}
}

func TestCryptoRandIntnBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		n, err := cryptoRandIntn(10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n < 0 || n >= 10 {
			t.Errorf("value out of range: %d", n)
		}
	}

	n, err := cryptoRandIntn(0)
	if err != nil || n != 0 {
		t.Errorf("expected 0 for non-positive max, got %d, %v", n, err)
	}
}
