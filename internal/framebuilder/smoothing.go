package framebuilder

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/raceplay.report/internal/adapter"
)

const (
	sgWindow     = 5 // w=5 per spec.md §4.1 step 4
	sgPolyOrder  = 1
	sgHalfWindow = sgWindow / 2
)

// smoothIntervalByDriver implements step 4 of spec.md §4.1: a
// Savitzky-Golay-style smoother over each driver's Interval_s series
// (window w=5, polynomial order 1), preserving nil where the raw value was
// nil and clipping the window at series ends. Rows need not be uniformly
// spaced in time; each window position fits a local degree-1 polynomial by
// least squares (solved via gonum/mat) against the actual sample times,
// which reduces to the classical Savitzky-Golay filter when spacing is
// uniform.
//
// Returns, per driver code, a slice parallel to that driver's time-sorted
// stream_timing rows (see sortedTimingRows) giving the smoothed value or
// nil.
func smoothIntervalByDriver(byDriver map[string][]adapter.TimingRow) map[string][]*float64 {
	out := make(map[string][]*float64, len(byDriver))

	for code, rows := range byDriver {
		n := len(rows)
		smoothed := make([]*float64, n)
		for i := 0; i < n; i++ {
			lo := i - sgHalfWindow
			if lo < 0 {
				lo = 0
			}
			hi := i + sgHalfWindow
			if hi > n-1 {
				hi = n - 1
			}
			smoothed[i] = fitLocalPoly(rows, lo, hi, i)
		}
		out[code] = smoothed
	}
	return out
}

// fitLocalPoly fits a degree-1 polynomial to the non-nil IntervalS values
// in rows[lo:hi+1] against (time - rows[center].Time), and evaluates it at
// 0 (i.e. at rows[center].Time). Returns nil if the center value itself is
// nil; returns the raw center value if fewer than two usable points are
// available or the fit fails.
func fitLocalPoly(rows []adapter.TimingRow, lo, hi, center int) *float64 {
	if rows[center].IntervalS == nil {
		return nil
	}

	var ts, vs []float64
	for i := lo; i <= hi; i++ {
		if rows[i].IntervalS == nil {
			continue
		}
		ts = append(ts, rows[i].Time-rows[center].Time)
		vs = append(vs, *rows[i].IntervalS)
	}
	if len(ts) < 2 {
		v := *rows[center].IntervalS
		return &v
	}

	// Design matrix A: columns [1, t]; solve normal equations A^T A beta = A^T v.
	n := len(ts)
	a := mat.NewDense(n, sgPolyOrder+1, nil)
	for i, t := range ts {
		a.Set(i, 0, 1)
		a.Set(i, 1, t)
	}
	b := mat.NewDense(n, 1, vs)

	var ata mat.Dense
	ata.Mul(a.T(), a)
	var atb mat.Dense
	atb.Mul(a.T(), b)

	var beta mat.Dense
	if err := beta.Solve(&ata, &atb); err != nil {
		v := *rows[center].IntervalS
		return &v
	}

	intercept := beta.At(0, 0)
	if math.IsNaN(intercept) || math.IsInf(intercept, 0) {
		v := *rows[center].IntervalS
		return &v
	}
	return &intercept
}

// sortedTimingRows groups timing rows by driver, each sorted ascending by
// time, for use by both the smoother and the per-frame as-of join.
func sortedTimingRows(timing []adapter.TimingRow) map[string][]adapter.TimingRow {
	byDriver := make(map[string][]adapter.TimingRow)
	for _, r := range timing {
		byDriver[r.Driver] = append(byDriver[r.Driver], r)
	}
	for code, rows := range byDriver {
		sort.Slice(rows, func(i, j int) bool { return rows[i].Time < rows[j].Time })
		byDriver[code] = rows
	}
	return byDriver
}
