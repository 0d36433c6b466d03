package position

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/raceplay.report/internal/frame"
	"github.com/banshee-data/raceplay.report/internal/session"
)

func floatPtr(v float64) *float64 { return &v }

// Scenario 1 (spec.md §8): hybrid sort key on a clean, fully-covered field.
func TestHybridSortKeyOrdersByPosRawThenIntervalThenProgress(t *testing.T) {
	inputs := []DriverInput{
		{Code: "HAM", PosRaw: 1, IntervalSmooth: floatPtr(0.5), RaceProgress: 1000},
		{Code: "VER", PosRaw: 2, IntervalSmooth: floatPtr(1.2), RaceProgress: 950},
		{Code: "SAI", PosRaw: 3, IntervalSmooth: floatPtr(2.1), RaceProgress: 900},
	}
	require.Equal(t, []string{"HAM", "VER", "SAI"}, HybridSort(inputs))
}

// Scenario 2 (spec.md §8): a retired driver sinks below all running drivers
// regardless of residual race progress.
func TestHybridSortSinksRetiredDriver(t *testing.T) {
	inputs := []DriverInput{
		{Code: "HAM", PosRaw: 1, IntervalSmooth: floatPtr(0.5), RaceProgress: 1000},
		{Code: "RET", PosRaw: 0, IntervalSmooth: nil, RaceProgress: 500, Retired: true},
	}
	require.Equal(t, []string{"HAM", "RET"}, HybridSort(inputs))
}

// Scenario 3 (spec.md §8): hysteresis rejects a swap younger than H, then
// accepts it once it has been stable for >= H.
func TestSmootherRejectsFastSwapThenAcceptsAfterWindow(t *testing.T) {
	s := NewSmoother()

	accepted := s.Observe(0.0, []string{"HAM", "VER", "SAI"}, DefaultHysteresisNormal)
	require.Equal(t, []string{"HAM", "VER", "SAI"}, accepted)

	// Candidate appears at t=0.5, younger than H=1.0: accepted order holds.
	out := s.Observe(0.5, []string{"VER", "HAM", "SAI"}, DefaultHysteresisNormal)
	require.Equal(t, []string{"HAM", "VER", "SAI"}, out)

	// Same candidate observed again at t=1.5: elapsed since first sighting
	// is 1.0s, >= H, so the swap commits.
	out = s.Observe(1.5, []string{"VER", "HAM", "SAI"}, DefaultHysteresisNormal)
	require.Equal(t, []string{"VER", "HAM", "SAI"}, out)
}

// Scenario 4 (spec.md §8): under SC/VSC/red, H shortens to 0.3s, so a
// candidate first seen shortly after the initial order commits well before
// it would under the 1.0s normal window.
func TestSmootherShortenedWindowUnderCaution(t *testing.T) {
	s := NewSmoother()

	s.Observe(0.0, []string{"HAM", "VER", "SAI"}, DefaultHysteresisCaution)

	// Candidate first observed at t=0.05.
	out := s.Observe(0.05, []string{"VER", "HAM", "SAI"}, DefaultHysteresisCaution)
	require.Equal(t, []string{"HAM", "VER", "SAI"}, out, "not yet stable for H=0.3s")

	// By t=0.35, elapsed since first sighting is 0.3s == H: commits.
	out = s.Observe(0.35, []string{"VER", "HAM", "SAI"}, DefaultHysteresisCaution)
	require.Equal(t, []string{"VER", "HAM", "SAI"}, out)
}

func TestHysteresisWindowSelectsByTrackStatus(t *testing.T) {
	require.Equal(t, DefaultHysteresisCaution, HysteresisWindow(frame.StatusSC))
	require.Equal(t, DefaultHysteresisCaution, HysteresisWindow(frame.StatusVSC))
	require.Equal(t, DefaultHysteresisCaution, HysteresisWindow(frame.StatusRed))
	require.Equal(t, DefaultHysteresisNormal, HysteresisWindow(frame.StatusGreen))
	require.Equal(t, DefaultHysteresisNormal, HysteresisWindow(frame.StatusYellow))
}

// Scenario 5 (spec.md §8): lap-boundary anchors override the Tier A/B
// order at lap start.
func TestApplyLapAnchorsOverlaysOfficialPositions(t *testing.T) {
	order := []string{"HAM", "VER", "SAI"}
	boundaries := session.LapBoundaries{
		"HAM": {25: 1},
		"VER": {25: 3},
		"SAI": {25: 2},
	}
	lapByDriver := map[string]int{"HAM": 25, "VER": 25, "SAI": 25}

	out := ApplyLapAnchors(order, boundaries, lapByDriver)
	require.Equal(t, []string{"HAM", "SAI", "VER"}, out)
}

func TestApplyLapAnchorsNoOpWhenNoAnchorsApply(t *testing.T) {
	order := []string{"HAM", "VER", "SAI"}
	lapByDriver := map[string]int{"HAM": 10, "VER": 10, "SAI": 10}

	out := ApplyLapAnchors(order, session.LapBoundaries{}, lapByDriver)
	require.Equal(t, order, out)

	// Boundaries exist but not for the driver's current lap.
	boundaries := session.LapBoundaries{"HAM": {25: 1}}
	out = ApplyLapAnchors(order, boundaries, lapByDriver)
	require.Equal(t, order, out)
}
