package backoff_test

import (
	"testing"
	"time"

	"github.com/xraph/docket/backoff"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	for n := 1; n <= 10; n++ {
		if got := c.Delay(n); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want 5s", n, got)
		}
	}
}

func TestGrowingStrategies(t *testing.T) {
	tests := []struct {
		name string
		s    backoff.Strategy
		n    int
		want time.Duration
	}{
		{"linear first", backoff.NewLinear(time.Second, time.Minute), 1, time.Second},
		{"linear fifth", backoff.NewLinear(time.Second, time.Minute), 5, 5 * time.Second},
		{"linear capped", backoff.NewLinear(time.Second, 5*time.Second), 100, 5 * time.Second},
		{"linear zero treated as first", backoff.NewLinear(time.Second, 0), 0, time.Second},
		{"exponential first", backoff.NewExponential(time.Second, time.Hour), 1, time.Second},
		{"exponential fourth", backoff.NewExponential(time.Second, time.Hour), 4, 8 * time.Second},
		{"exponential capped", backoff.NewExponential(time.Second, 10*time.Second), 5, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.Delay(tt.n); got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.n, got, tt.want)
			}
		})
	}
}

func TestExponentialWithJitter_WithinBounds(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, 10*time.Second)

	seen := make(map[time.Duration]bool)
	for n := 1; n <= 6; n++ {
		for range 50 {
			got := e.Delay(n)
			if got < 0 || got > 10*time.Second {
				t.Fatalf("Delay(%d) = %v, want within [0, 10s]", n, got)
			}
			seen[got] = true
		}
	}
	if len(seen) < 2 {
		t.Errorf("expected jittered delays to vary, got %d distinct values", len(seen))
	}
}
