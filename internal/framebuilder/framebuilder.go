// Package framebuilder implements the Frame Builder (spec.md §4.1): the
// one-shot transformation of four heterogeneous raw streams into an
// immutable, uniformly-gridded Frame sequence plus auxiliary catalogues.
//
// Grounded on internal/lidar/visualiser/publisher.go's single-pass,
// load-once construction idea, generalized from "build one live frame at a
// time" to "build the whole sequence up front." The per-step numerical work
// (resampling, speed/distance, smoothing, coverage) is grounded on
// gonum.org/v1/gonum, per SPEC_FULL.md §2.1/§4.1.
package framebuilder

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/banshee-data/raceplay.report/internal/adapter"
	"github.com/banshee-data/raceplay.report/internal/errs"
	"github.com/banshee-data/raceplay.report/internal/frame"
	"github.com/banshee-data/raceplay.report/internal/obslog"
	"github.com/banshee-data/raceplay.report/internal/position"
	"github.com/banshee-data/raceplay.report/internal/session"
)

// Options tunes the build per SPEC_FULL.md's config-exposed constants.
type Options struct {
	GridStep                 float64 // Δ, nominal 0.04s
	CoverageThreshold        float64 // nominal 0.8
	HysteresisNormalSeconds  float64 // nominal 1.0
	HysteresisCautionSeconds float64 // nominal 0.3
}

// DefaultOptions returns the spec's nominal constants.
func DefaultOptions() Options {
	return Options{
		GridStep:                 0.04,
		CoverageThreshold:        0.8,
		HysteresisNormalSeconds:  1.0,
		HysteresisCautionSeconds: 0.3,
	}
}

var log = obslog.For(obslog.ComponentBuilder)

// Build runs the Frame Builder's seven steps against the raw streams and
// returns a populated, not-yet-published session.Session. Callers (the
// Session Store's loader) are responsible for calling MarkLoaded/MarkFailed
// and progress reporting around this call.
func Build(ctx context.Context, key session.Key, streams adapter.Streams, opts Options) (*session.Session, error) {
	if len(streams.Positions) == 0 {
		return nil, errs.DataQuality("build", fmt.Errorf("position_data is empty"))
	}
	if len(streams.Timing) == 0 {
		return nil, errs.DataQuality("build", fmt.Errorf("stream_timing is empty"))
	}

	sess := session.NewSession(key)

	// Step 1: time base and uniform grid.
	grid, t0, err := buildGrid(streams.Positions, opts.GridStep)
	if err != nil {
		return nil, errs.DataQuality("build_grid", err)
	}
	log.Debug().Int("grid_points", len(grid)).Msg("time base computed")
	sess.RaceStartEpoch = int64(t0 * float64(time.Second))

	// Step 2: per-driver resampling.
	tracks := resampleDrivers(streams.Positions, grid)

	// Step 3: speed and distance.
	for code, tr := range tracks {
		computeKinematics(tr, opts.GridStep)
		tracks[code] = tr
	}

	// Step 4: interval smoothing.
	timingByDriver := sortedTimingRows(streams.Timing)
	smoothedInterval := smoothIntervalByDriver(timingByDriver)

	// Step 7 precursor: coverage check informs whether Tier A's pos_raw
	// input is trusted; computed once up front since it applies to the
	// whole session, not per frame.
	coverageOK := checkTimingDataCoverage(streams.Timing, opts.CoverageThreshold)
	sess.PositionCoverageOK = coverageOK

	lapStarts := sortLapStarts(streams.Laps)
	statusAt := trackStatusIndex(streams.TrackStatus)
	pitStats := computePitStats(timingByDriver, lapStarts)

	smoother := position.NewSmoother()
	frames := make([]frame.Frame, 0, len(grid))

	for gi, t := range grid {
		select {
		case <-ctx.Done():
			return nil, errs.Adapter("build", ctx.Err())
		default:
		}

		status := statusAt(t)
		lap := currentLap(lapStarts, t)

		drivers := fuseFrame(t, gi, tracks, timingByDriver, smoothedInterval, pitStats, lap)

		// Step 6: position finalization (spec.md §4.2), invoked per frame.
		inputs := make([]position.DriverInput, 0, len(drivers))
		lapByDriver := make(map[string]int, len(drivers))
		for code, d := range drivers {
			var iv *float64
			if d.IntervalSmooth != nil {
				iv = d.IntervalSmooth
			}
			raw := d.PosRaw
			if !coverageOK {
				raw = 0 // progress-only mode: never trust pos_raw for ordering
			}
			inputs = append(inputs, position.DriverInput{
				Code:           code,
				PosRaw:         raw,
				IntervalSmooth: iv,
				RaceProgress:   float64(d.Dist),
				Retired:        d.Status == frame.DriverRetired,
				Lap:            d.Lap,
			})
			lapByDriver[code] = d.Lap
		}

		h := opts.HysteresisNormalSeconds
		if status.IsCaution() {
			h = opts.HysteresisCautionSeconds
		}
		tierA := position.HybridSort(inputs)
		tierB := smoother.Observe(t, tierA, h)
		tierC := position.ApplyLapAnchors(tierB, streams.LapBoundaries, lapByDriver)

		for i, code := range tierC {
			d := drivers[code]
			d.Position = i + 1
			drivers[code] = d
		}

		frames = append(frames, frame.Frame{T: t - t0, Lap: lap, TrackStatus: status, Drivers: drivers})
	}

	sess.Frames = frames
	sess.TotalLaps = totalLaps(streams.Laps)
	sess.TrackGeometry = trackGeometry(tracks)
	sess.TrackStatuses = statusTransitions(streams.TrackStatus)
	sess.DriverColors, sess.DriverNumbers, sess.DriverTeams = driverCatalogues(streams.DriverMeta)

	log.Info().Int("frames", len(frames)).Bool("coverage_ok", coverageOK).Msg("build complete")
	return sess, nil
}

// driverCatalogues builds the three per-driver lookup maps spec.md §3
// names (driver_colors, driver_numbers, driver_teams) from the adapter's
// driver catalogue stream. A row with an unparsable ColorHex is skipped
// from DriverColors but still contributes its number/team.
func driverCatalogues(meta []adapter.DriverMetaRow) (map[string]session.RGB, map[string]int, map[string]string) {
	colors := make(map[string]session.RGB, len(meta))
	numbers := make(map[string]int, len(meta))
	teams := make(map[string]string, len(meta))
	for _, m := range meta {
		if rgb, ok := parseHexColor(m.ColorHex); ok {
			colors[m.Driver] = rgb
		}
		numbers[m.Driver] = m.Number
		teams[m.Driver] = m.Team
	}
	return colors, numbers, teams
}

// parseHexColor parses a "#RRGGBB" string into a session.RGB.
func parseHexColor(s string) (session.RGB, bool) {
	if len(s) != 7 || s[0] != '#' {
		return session.RGB{}, false
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(s[1:], "%02x%02x%02x", &r, &g, &b); err != nil {
		return session.RGB{}, false
	}
	return session.RGB{R: r, G: g, B: b}, true
}

func totalLaps(laps []adapter.LapRow) int {
	max := 0
	for _, l := range laps {
		if l.LapNumber > max {
			max = l.LapNumber
		}
	}
	return max
}

func trackGeometry(tracks map[string]*driverTrack) []session.Point {
	// The track polyline is approximated from the longest-running driver's
	// path, which traces the full circuit at least once.
	// Every track has one sample per grid point, so "longest-running" is
	// measured in grid points spent on track with status running; ties go
	// to the lowest driver code so the result does not depend on map order.
	var best *driverTrack
	bestCode, bestRunning := "", -1
	for code, tr := range tracks {
		running := 0
		for i, on := range tr.onTrack {
			if on && tr.status[i] == frame.DriverRunning {
				running++
			}
		}
		if running > bestRunning || (running == bestRunning && code < bestCode) {
			best, bestCode, bestRunning = tr, code, running
		}
	}
	if best == nil {
		return nil
	}
	out := make([]session.Point, len(best.x))
	for i := range best.x {
		out[i] = session.Point{X: float32(best.x[i]), Y: float32(best.y[i])}
	}
	return out
}

func statusTransitions(rows []adapter.TrackStatusRow) []session.StatusTransition {
	out := make([]session.StatusTransition, 0, len(rows))
	for _, r := range rows {
		out = append(out, session.StatusTransition{T: r.Time, Status: parseTrackStatus(r.Status)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].T < out[j].T })
	return out
}
