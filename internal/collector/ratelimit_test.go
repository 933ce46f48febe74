package collector

import (
	"sync"
	"testing"
	"time"
)

func TestRateLimiter_NeverExceedsCap(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	allowed := 0
	for i := 0; i < 10; i++ {
		if rl.Allow(now.Add(time.Duration(i) * time.Second)) {
			allowed++
		}
	}

	if allowed != 3 {
		t.Errorf("Expected 3 allowed calls, got %d", allowed)
	}
	if rl.Skipped() != 7 {
		t.Errorf("Expected 7 skipped calls, got %d", rl.Skipped())
	}
}

func TestRateLimiter_ResetsAfterWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	rl.Allow(now)
	rl.Allow(now.Add(10 * time.Second))
	if rl.Allow(now.Add(20 * time.Second)) {
		t.Fatal("Third call inside the window should be rejected")
	}

	// First call falls out of the window
	if !rl.Allow(now.Add(61 * time.Second)) {
		t.Error("Call after the oldest entry expired should be allowed")
	}
	if rl.Allow(now.Add(62 * time.Second)) {
		t.Error("Window should be full again")
	}

	used, remaining := rl.Usage(now.Add(3 * time.Minute))
	if used != 0 || remaining != 2 {
		t.Errorf("Expected empty window, got used=%d remaining=%d", used, remaining)
	}
}

func TestRateLimiter_Concurrent(t *testing.T) {
	rl := NewRateLimiter(30, time.Minute)
	now := time.Now()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow(now) {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 30 {
		t.Errorf("Expected exactly 30 allowed calls, got %d", allowed)
	}
}

func TestInFlight_AcquireRelease(t *testing.T) {
	f := NewInFlight()
	now := time.Now()

	if err := f.Acquire(1, now); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := f.Acquire(1, now); err != ErrCycleInFlight {
		t.Errorf("Expected ErrCycleInFlight, got %v", err)
	}
	if err := f.Acquire(2, now); err != nil {
		t.Errorf("Different hive should not be blocked: %v", err)
	}
	if f.Count() != 2 {
		t.Errorf("Expected 2 in flight, got %d", f.Count())
	}

	f.Release(1)
	if f.Running(1) {
		t.Error("Hive 1 should no longer be running")
	}
	if err := f.Acquire(1, now); err != nil {
		t.Errorf("Acquire after release failed: %v", err)
	}
}

func TestHeuristicEstimator(t *testing.T) {
	est := HeuristicEstimator{}

	tests := []struct {
		name  string
		sound float64
		vib   float64
		peak  float64
	}{
		{"loud", 90, 220, 300},
		{"normal", 70, 200, 200},
		{"quiet", 50, 185, 100},
		{"clamped high", 200, 350, 850},
		{"clamped low", 0, 150, -150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.sound
			got := est.Estimate(&s)
			if got.VibrationHz == nil || *got.VibrationHz != tt.vib {
				t.Errorf("vibration: expected %v, got %v", tt.vib, got.VibrationHz)
			}
			if got.SoundPeakFrequency == nil || *got.SoundPeakFrequency != tt.peak {
				t.Errorf("peak: expected %v, got %v", tt.peak, got.SoundPeakFrequency)
			}
			if got.VibrationVariance == nil || *got.VibrationVariance != 10 {
				t.Errorf("variance: expected 10, got %v", got.VibrationVariance)
			}
		})
	}

	if got := est.Estimate(nil); got.VibrationHz != nil || got.SoundPeakFrequency != nil || got.VibrationVariance != nil {
		t.Error("Expected nil estimates for missing sound")
	}
}
