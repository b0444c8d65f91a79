// Package sim moves a simulated vehicle toward a fixed target.
//
// Each tick closes a constant fraction of the remaining gap, so the vehicle
// never overshoots. Once both axis gaps fall below SnapTolerance the vehicle
// is placed exactly on the target and the walk ends.
package sim

import (
	"iter"
	"time"

	"github.com/example/ambulance-tracking/internal/geo"
	"github.com/example/ambulance-tracking/internal/models"
)

const (
	Factor         = 0.05
	SnapTolerance  = 1e-4
	MovementPeriod = time.Second

	// Seed offset of the closest available unit relative to the user.
	StartLatOffset = -0.01
	StartLonOffset = -0.02
)

// Start returns where a freshly dispatched unit begins its approach.
func Start(origin models.GeoPoint) models.GeoPoint {
	return geo.Offset(origin, StartLatOffset, StartLonOffset)
}

// Step advances current one tick toward target. snapped is true when the
// returned point equals target; stepping a snapped point is a no-op.
func Step(current, target models.GeoPoint) (next models.GeoPoint, snapped bool) {
	if geo.Within(current, target, SnapTolerance) {
		return target, true
	}
	latDiff := target.Latitude - current.Latitude
	lonDiff := target.Longitude - current.Longitude
	return models.GeoPoint{
		Latitude:  current.Latitude + latDiff*Factor,
		Longitude: current.Longitude + lonDiff*Factor,
	}, false
}

// Path yields every position produced by successive ticks from start. The
// sequence ends with target itself.
func Path(start, target models.GeoPoint) iter.Seq[models.GeoPoint] {
	return func(yield func(models.GeoPoint) bool) {
		cur := start
		for {
			next, snapped := Step(cur, target)
			if !yield(next) || snapped {
				return
			}
			cur = next
		}
	}
}

// TicksToSnap counts the ticks needed to reach target from start.
func TicksToSnap(start, target models.GeoPoint) int {
	n := 0
	for range Path(start, target) {
		n++
	}
	return n
}
