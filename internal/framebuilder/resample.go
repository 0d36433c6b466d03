package framebuilder

import (
	"sort"

	"gonum.org/v1/gonum/interp"

	"github.com/banshee-data/raceplay.report/internal/adapter"
	"github.com/banshee-data/raceplay.report/internal/frame"
)

// driverTrack holds one driver's resampled kinematic series, one value per
// grid point, plus the status derived during resampling/kinematics.
type driverTrack struct {
	x, y, speed, dist []float64
	status            []frame.DriverStatus
	onTrack           []bool // false before the driver's first GPS sample
}

// resampleDrivers implements step 2 of spec.md §4.1: per-driver linear
// interpolation of X/Y onto the grid via gonum/interp, marking samples
// before the driver's first GPS sample as not-yet-on-track and samples
// after retirement as frozen at the last known position.
func resampleDrivers(positions []adapter.PositionRow, grid []float64) map[string]*driverTrack {
	byDriver := make(map[string][]adapter.PositionRow)
	for _, p := range positions {
		byDriver[p.Driver] = append(byDriver[p.Driver], p)
	}

	out := make(map[string]*driverTrack, len(byDriver))
	for code, rows := range byDriver {
		sort.Slice(rows, func(i, j int) bool { return rows[i].Time < rows[j].Time })
		rows = dedupTimes(rows)
		if len(rows) < 2 {
			continue // cannot interpolate a single-sample series; driver stays absent
		}

		xs := make([]float64, len(rows))
		xv := make([]float64, len(rows))
		yv := make([]float64, len(rows))
		retiredAt := -1.0
		for i, r := range rows {
			xs[i] = r.Time
			xv[i] = r.X
			yv[i] = r.Y
			if r.Status == "Retired" && retiredAt < 0 {
				retiredAt = r.Time
			}
		}

		var xInterp, yInterp interp.PiecewiseLinear
		if err := xInterp.Fit(xs, xv); err != nil {
			continue
		}
		if err := yInterp.Fit(xs, yv); err != nil {
			continue
		}

		firstT, lastT := xs[0], xs[len(xs)-1]

		tr := &driverTrack{
			x:       make([]float64, len(grid)),
			y:       make([]float64, len(grid)),
			status:  make([]frame.DriverStatus, len(grid)),
			onTrack: make([]bool, len(grid)),
		}
		lastX, lastY := xv[0], yv[0]
		for i, t := range grid {
			switch {
			case t < firstT:
				tr.onTrack[i] = false
			case t > lastT:
				tr.x[i], tr.y[i] = lastX, lastY
				tr.onTrack[i] = true
				tr.status[i] = frame.DriverRetired
			default:
				tr.x[i] = xInterp.Predict(t)
				tr.y[i] = yInterp.Predict(t)
				lastX, lastY = tr.x[i], tr.y[i]
				tr.onTrack[i] = true
				if retiredAt >= 0 && t >= retiredAt {
					tr.status[i] = frame.DriverRetired
				} else {
					tr.status[i] = frame.DriverRunning
				}
			}
		}
		out[code] = tr
	}
	return out
}

// dedupTimes drops rows sharing a timestamp with the previous row, which
// gonum/interp's Fit rejects (strictly increasing xs required).
func dedupTimes(rows []adapter.PositionRow) []adapter.PositionRow {
	out := rows[:0:0]
	var last float64
	first := true
	for _, r := range rows {
		if !first && r.Time <= last {
			continue
		}
		out = append(out, r)
		last = r.Time
		first = false
	}
	return out
}
