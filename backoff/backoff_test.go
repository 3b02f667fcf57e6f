package backoff_test

import (
	"testing"
	"time"

	"github.com/xraph/replay/backoff"
)

func TestConstant_FixedDelay(t *testing.T) {
	c := backoff.NewConstant(250 * time.Millisecond)
	for attempt := 1; attempt <= 8; attempt++ {
		if got := c.Delay(attempt); got != 250*time.Millisecond {
			t.Errorf("Delay(%d) = %v, want 250ms", attempt, got)
		}
	}
}

func TestLinear_GrowsByInitial(t *testing.T) {
	l := backoff.NewLinear(2*time.Second, time.Minute)

	for _, tt := range []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 8 * time.Second},
		{15, 30 * time.Second},
	} {
		if got := l.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestLinear_CapsAtMax(t *testing.T) {
	l := backoff.NewLinear(2*time.Second, 6*time.Second)

	for _, attempt := range []int{4, 50} {
		if got := l.Delay(attempt); got != 6*time.Second {
			t.Errorf("Delay(%d) = %v, want 6s cap", attempt, got)
		}
	}
}

func TestExponential_Doubles(t *testing.T) {
	e := backoff.NewExponential(500*time.Millisecond, time.Hour)

	for _, tt := range []struct {
		attempt int
		want    time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, 1 * time.Second},
		{3, 2 * time.Second},
		{6, 16 * time.Second},
	} {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_CapsAtMax(t *testing.T) {
	e := backoff.NewExponential(time.Second, 8*time.Second)

	// Attempt 5 would be 16s without the cap.
	for _, attempt := range []int{5, 30} {
		if got := e.Delay(attempt); got != 8*time.Second {
			t.Errorf("Delay(%d) = %v, want 8s cap", attempt, got)
		}
	}
}

func TestExponentialWithJitter_StaysInBounds(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, 10*time.Second)

	for attempt := 1; attempt <= 5; attempt++ {
		for range 100 {
			got := e.Delay(attempt)
			if got < 0 {
				t.Fatalf("Delay(%d) = %v, negative", attempt, got)
			}
			if got > 10*time.Second {
				t.Fatalf("Delay(%d) = %v, exceeds cap", attempt, got)
			}
		}
	}
}

func TestExponentialWithJitter_Varies(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, time.Minute)

	seen := make(map[time.Duration]bool)
	for range 100 {
		seen[e.Delay(3)] = true
	}
	if len(seen) < 2 {
		t.Errorf("jitter produced only %d distinct delays over 100 samples", len(seen))
	}
}

func TestDefaultStrategy(t *testing.T) {
	s := backoff.DefaultStrategy()
	if s == nil {
		t.Fatal("DefaultStrategy() returned nil")
	}

	d := s.Delay(1)
	if d < 0 || d > time.Second {
		t.Errorf("Delay(1) = %v, want within [0, 1s]", d)
	}
}
