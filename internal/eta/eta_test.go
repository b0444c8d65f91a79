package eta

import "testing"

func TestCountdownReachesZeroAndStays(t *testing.T) {
	c := NewCountdown(InitialMinutes)
	prev := c.Remaining
	for i := 1; i <= InitialMinutes; i++ {
		got := c.Tick()
		if got != prev-1 {
			t.Fatalf("period %d: expected %d, got %d", i, prev-1, got)
		}
		prev = got
	}
	if c.Remaining != 0 || !c.Done() {
		t.Fatalf("expected 0 after %d periods, got %d", InitialMinutes, c.Remaining)
	}
	if got := c.Tick(); got != 0 {
		t.Fatalf("expected to stay at 0, got %d", got)
	}
}

func TestCountdownClampsNegativeInitial(t *testing.T) {
	c := NewCountdown(-3)
	if c.Remaining != 0 {
		t.Fatalf("expected 0, got %d", c.Remaining)
	}
	c.Remaining = -1
	if got := c.Tick(); got != 0 {
		t.Fatalf("expected clamp to 0, got %d", got)
	}
}

func TestProgress(t *testing.T) {
	cases := []struct {
		remaining, initial int
		want               float64
	}{
		{8, 8, 0},
		{4, 8, 50},
		{0, 8, 100},
		{10, 8, 0},
		{3, 0, 100},
	}
	for _, tc := range cases {
		if got := Progress(tc.remaining, tc.initial); got != tc.want {
			t.Errorf("Progress(%d, %d) = %v, want %v", tc.remaining, tc.initial, got, tc.want)
		}
	}
}
