package presentation

import "time"

const (
	PulseHigh  = 1.0
	PulseLow   = 0.3
	PulsePhase = time.Second
)

// Pulse is the two-phase fade of the ambulance marker: one phase rising to
// full opacity, the next falling to PulseLow.
type Pulse struct{ high bool }

func (p Pulse) Opacity() float64 {
	if p.high {
		return PulseHigh
	}
	return PulseLow
}

// Advance moves to the next phase and returns its target opacity.
func (p *Pulse) Advance() float64 {
	p.high = !p.high
	return p.Opacity()
}

// OpacityAt interpolates the pulse for a smooth renderer. The cycle starts
// at PulseLow, peaks after one phase and is back at PulseLow after two.
func OpacityAt(elapsed time.Duration) float64 {
	if elapsed < 0 {
		elapsed = -elapsed
	}
	cycle := elapsed % (2 * PulsePhase)
	if cycle < PulsePhase {
		frac := float64(cycle) / float64(PulsePhase)
		return PulseLow + (PulseHigh-PulseLow)*frac
	}
	frac := float64(cycle-PulsePhase) / float64(PulsePhase)
	return PulseHigh - (PulseHigh-PulseLow)*frac
}
