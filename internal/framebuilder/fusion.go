package framebuilder

import (
	"sort"

	"github.com/banshee-data/raceplay.report/internal/adapter"
	"github.com/banshee-data/raceplay.report/internal/frame"
)

// asOfIndex supports an as-of join (most recent row with Time <= t, no
// future leakage) against a time-sorted slice of timing rows for one
// driver.
type asOfIndex struct {
	rows []adapter.TimingRow
}

// lastAtOrBefore returns the index of the last row with Time <= t, or -1.
func (idx asOfIndex) lastAtOrBefore(t float64) int {
	// sort.Search finds the first row with Time > t; the as-of row is one
	// before that.
	i := sort.Search(len(idx.rows), func(i int) bool { return idx.rows[i].Time > t })
	return i - 1
}

// pitStat is one timing row's cumulative pit count and the lap on which
// the driver most recently entered the pit lane, as of that row.
type pitStat struct {
	count      int
	lastPitLap int
}

// computePitStats precomputes, per driver and per timing row index, the
// cumulative pit-stop count and last pit lap (SPEC_FULL.md §3 supplement).
// Computed once up front rather than inside the per-frame fusion loop,
// since it depends only on the monotonic sequence of timing rows, not on
// the instant being fused.
func computePitStats(byDriver map[string][]adapter.TimingRow, lapsSorted []adapter.LapRow) map[string][]pitStat {
	out := make(map[string][]pitStat, len(byDriver))
	for code, rows := range byDriver {
		stats := make([]pitStat, len(rows))
		count := 0
		lastLap := 0
		inPit := false
		for i, row := range rows {
			if row.Status == "Pit" {
				if !inPit {
					count++
					lastLap = currentLap(lapsSorted, row.Time)
				}
				inPit = true
			} else {
				inPit = false
			}
			stats[i] = pitStat{count: count, lastPitLap: lastLap}
		}
		out[code] = stats
	}
	return out
}

// fuseFrame implements step 5 of spec.md §4.1 for a single grid instant t
// at grid index gi: as-of join against stream_timing for
// pos_raw/gap/interval_smooth, plus the already-resampled (x,y,speed,dist)
// and the given lap/status. gi indexes directly into each driverTrack,
// which resampleDrivers builds 1:1 with the caller's grid.
func fuseFrame(
	t float64,
	gi int,
	tracks map[string]*driverTrack,
	byDriver map[string][]adapter.TimingRow,
	smoothedInterval map[string][]*float64,
	pitStats map[string][]pitStat,
	lap int,
) map[string]frame.DriverSample {
	drivers := make(map[string]frame.DriverSample, len(tracks))

	for code, tr := range tracks {
		if gi < 0 || gi >= len(tr.x) || !tr.onTrack[gi] {
			continue
		}

		ds := frame.DriverSample{
			X:     float32(tr.x[gi]),
			Y:     float32(tr.y[gi]),
			Speed: float32(tr.speed[gi]),
			Dist:  float32(tr.dist[gi]),
			Lap:   lap,
		}
		if tr.status[gi] == frame.DriverRetired {
			ds.Status = frame.DriverRetired
		} else {
			ds.Status = frame.DriverRunning
		}

		rows := byDriver[code]
		idx := asOfIndex{rows: rows}
		if ai := idx.lastAtOrBefore(t); ai >= 0 {
			row := rows[ai]
			ds.PosRaw = row.Position
			ds.GapToLeader = row.GapToLeaderS
			if sm := smoothedInterval[code]; ai < len(sm) {
				ds.IntervalSmooth = sm[ai]
			}
			if row.Status == "Pit" {
				ds.Status = frame.DriverPit
			}
			if ps := pitStats[code]; ai < len(ps) {
				ds.PitCount = ps[ai].count
				ds.LastPitLap = ps[ai].lastPitLap
			}
		}

		drivers[code] = ds
	}
	return drivers
}

// sortLapStarts sorts lap rows by StartTime for currentLap's binary search.
func sortLapStarts(laps []adapter.LapRow) []adapter.LapRow {
	out := append([]adapter.LapRow(nil), laps...)
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out
}

// currentLap returns the highest lap number whose start time is <= t,
// across all drivers' lap rows (spec.md §4.1 step 5: "current lap" is the
// leader's lap, approximated here as the furthest-advanced lap start seen
// by time t).
func currentLap(lapsSorted []adapter.LapRow, t float64) int {
	lap := 0
	for _, l := range lapsSorted {
		if l.StartTime > t {
			break
		}
		if l.LapNumber > lap {
			lap = l.LapNumber
		}
	}
	return lap
}

// trackStatusIndex returns a lookup closure giving the active track status
// at any time t, from a time-indexed list of transitions.
func trackStatusIndex(rows []adapter.TrackStatusRow) func(t float64) frame.TrackStatus {
	sorted := append([]adapter.TrackStatusRow(nil), rows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })
	return func(t float64) frame.TrackStatus {
		status := frame.StatusGreen
		for _, r := range sorted {
			if r.Time > t {
				break
			}
			status = parseTrackStatus(r.Status)
		}
		return status
	}
}

func parseTrackStatus(code string) frame.TrackStatus {
	switch code {
	case "1":
		return frame.StatusGreen
	case "2":
		return frame.StatusYellow
	case "4":
		return frame.StatusSC
	case "5":
		return frame.StatusRed
	case "6":
		return frame.StatusVSC
	case "7":
		return frame.StatusVSCEnding
	case "8":
		return frame.StatusChequered
	default:
		return frame.StatusGreen
	}
}
