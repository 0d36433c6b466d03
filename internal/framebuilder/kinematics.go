package framebuilder

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	maxSpeedKmh = 400.0
	minSpeedKmh = 0.0

	// metresPerSecondToKmh converts a first-difference in metres/Δ to km/h.
	metresPerSecondToKmh = 3.6
)

// computeKinematics implements step 3 of spec.md §4.1: speed as the
// first-difference of (x,y) along the grid divided by Δ (clamped to
// [0,400] km/h), and dist as the cumulative trapezoidal integral of speed,
// zeroed at the grid origin. Uses gonum/floats for the cumulative sum.
func computeKinematics(tr *driverTrack, step float64) {
	n := len(tr.x)
	tr.speed = make([]float64, n)
	tr.dist = make([]float64, n)
	if n == 0 {
		return
	}

	for i := 1; i < n; i++ {
		if !tr.onTrack[i] || !tr.onTrack[i-1] {
			tr.speed[i] = 0
			continue
		}
		dx := tr.x[i] - tr.x[i-1]
		dy := tr.y[i] - tr.y[i-1]
		dist := math.Sqrt(dx*dx + dy*dy)
		kmh := (dist / step) * metresPerSecondToKmh
		tr.speed[i] = clamp(kmh, minSpeedKmh, maxSpeedKmh)
	}

	// Trapezoidal integration: area of segment i is the average of the two
	// bounding speeds (converted back to m/s) times Δ.
	segAreas := make([]float64, n)
	for i := 1; i < n; i++ {
		avgKmh := (tr.speed[i] + tr.speed[i-1]) / 2
		avgMs := avgKmh / metresPerSecondToKmh
		segAreas[i] = avgMs * step
	}
	floats.CumSum(tr.dist, segAreas)

	// Freeze distance at the last on-track value once retired, per
	// spec.md §3's monotonic-until-retired invariant.
	freezeAtRetirement(tr)
}

func freezeAtRetirement(tr *driverTrack) {
	frozen := false
	var frozenDist float64
	for i := range tr.dist {
		if frozen {
			tr.dist[i] = frozenDist
			continue
		}
		if tr.status[i].String() == "retired" {
			frozen = true
			frozenDist = tr.dist[i]
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
