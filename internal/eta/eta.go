package eta

import "time"

const (
	// InitialMinutes is the ETA announced for every dispatch. It is not
	// derived from distance.
	InitialMinutes  = 8
	CountdownPeriod = time.Minute
)

// Countdown is the whole-minute ETA shown to the user. It only moves
// downward and stops at zero.
type Countdown struct {
	Initial   int
	Remaining int
}

func NewCountdown(initial int) Countdown {
	if initial < 0 {
		initial = 0
	}
	return Countdown{Initial: initial, Remaining: initial}
}

// Tick consumes one period and returns the new remaining minutes.
func (c *Countdown) Tick() int {
	if c.Remaining > 0 {
		c.Remaining--
	} else {
		c.Remaining = 0
	}
	return c.Remaining
}

func (c Countdown) Done() bool { return c.Remaining == 0 }

// Progress is the completed share of the countdown in percent, as drawn by
// the progress bar under the ETA.
func Progress(remaining, initial int) float64 {
	if initial <= 0 {
		return 100
	}
	p := 100 - float64(remaining)/float64(initial)*100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
