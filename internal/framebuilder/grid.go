package framebuilder

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/raceplay.report/internal/adapter"
)

// buildGrid computes step 1 of spec.md §4.1: session start t0 (earliest
// valid GPS sample across drivers) and a uniform grid t_i = t0 + i*Δ
// bounded by the latest GPS sample of the last running driver. The grid
// stays on the adapter's own raw time axis (t0 is not subtracted out)
// because every other raw stream — stream_timing, track_status, lap
// starts — carries timestamps on that same axis, and fuseFrame/
// trackStatusIndex/currentLap all look samples up by comparing directly
// against grid values. Build rebases each grid point to session-relative
// seconds (t_i - t0) only when it stores the final Frame.T, per spec.md
// §3's "monotonic seconds from session start".
func buildGrid(positions []adapter.PositionRow, step float64) ([]float64, float64, error) {
	if len(positions) == 0 {
		return nil, 0, fmt.Errorf("no position samples")
	}

	t0 := math.Inf(1)
	t1 := math.Inf(-1)
	for _, p := range positions {
		if p.Time < t0 {
			t0 = p.Time
		}
		if p.Time > t1 {
			t1 = p.Time
		}
	}
	if t1 < t0 {
		return nil, 0, fmt.Errorf("degenerate time range [%v, %v]", t0, t1)
	}

	n := int(math.Floor((t1-t0)/step)) + 1
	if n < 1 {
		n = 1
	}
	grid := make([]float64, n)
	floats.Span(grid, t0, t0+float64(n-1)*step)
	return grid, t0, nil
}
