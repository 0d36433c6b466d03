package framebuilder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/raceplay.report/internal/adapter"
	"github.com/banshee-data/raceplay.report/internal/frame"
	"github.com/banshee-data/raceplay.report/internal/session"
)

func gap(v float64) *float64 { return &v }

func buildTwoDriverStreams() adapter.Streams {
	positions := []adapter.PositionRow{
		{Driver: "HAM", Time: 0.0, X: 0, Y: 0},
		{Driver: "HAM", Time: 0.5, X: 50, Y: 0},
		{Driver: "HAM", Time: 1.0, X: 100, Y: 0},
		{Driver: "VER", Time: 0.0, X: 0, Y: 5},
		{Driver: "VER", Time: 0.5, X: 45, Y: 5},
		{Driver: "VER", Time: 1.0, X: 90, Y: 5},
	}
	timing := []adapter.TimingRow{
		{Driver: "HAM", Time: 0.0, Position: 1, GapToLeaderS: gap(0), IntervalS: gap(0.5)},
		{Driver: "HAM", Time: 0.5, Position: 1, GapToLeaderS: gap(0), IntervalS: gap(0.5)},
		{Driver: "VER", Time: 0.0, Position: 2, GapToLeaderS: gap(1.2), IntervalS: gap(1.2)},
		{Driver: "VER", Time: 0.5, Position: 2, GapToLeaderS: gap(1.1), IntervalS: gap(1.1)},
	}
	trackStatus := []adapter.TrackStatusRow{{Time: 0, Status: "1"}}
	laps := []adapter.LapRow{
		{Driver: "HAM", LapNumber: 1, StartTime: 0},
		{Driver: "VER", LapNumber: 1, StartTime: 0},
	}
	return adapter.Streams{Timing: timing, TrackStatus: trackStatus, Laps: laps, Positions: positions}
}

func TestBuildProducesGriddedFrames(t *testing.T) {
	key := session.Key{Year: 2024, Round: 1, SessionType: session.TypeRace}
	sess, err := Build(context.Background(), key, buildTwoDriverStreams(), DefaultOptions())
	require.NoError(t, err)
	require.NotEmpty(t, sess.Frames)

	for i := 1; i < len(sess.Frames); i++ {
		delta := sess.Frames[i].T - sess.Frames[i-1].T
		require.InDelta(t, 0.04, delta, 1e-6, "frames must sit on the uniform grid")
	}

	last := sess.Frames[len(sess.Frames)-1]
	require.Contains(t, last.Drivers, "HAM")
	require.Contains(t, last.Drivers, "VER")
}

func TestBuildPositionsFormPermutation(t *testing.T) {
	key := session.Key{Year: 2024, Round: 1, SessionType: session.TypeRace}
	sess, err := Build(context.Background(), key, buildTwoDriverStreams(), DefaultOptions())
	require.NoError(t, err)

	for _, f := range sess.Frames {
		seen := make(map[int]bool)
		for _, d := range f.Drivers {
			require.False(t, seen[d.Position], "position %d repeated at t=%v", d.Position, f.T)
			seen[d.Position] = true
		}
		for i := 1; i <= len(f.Drivers); i++ {
			require.True(t, seen[i], "position %d missing at t=%v", i, f.T)
		}
	}
}

func TestBuildDistanceMonotonicUntilRetired(t *testing.T) {
	key := session.Key{Year: 2024, Round: 1, SessionType: session.TypeRace}
	sess, err := Build(context.Background(), key, buildTwoDriverStreams(), DefaultOptions())
	require.NoError(t, err)

	var prevDist float32
	first := true
	for _, f := range sess.Frames {
		d, ok := f.Drivers["HAM"]
		if !ok {
			continue
		}
		if !first {
			require.GreaterOrEqual(t, d.Dist, prevDist)
		}
		prevDist = d.Dist
		first = false
	}
}

func TestBuildRejectsEmptyPositions(t *testing.T) {
	key := session.Key{Year: 2024, Round: 1, SessionType: session.TypeRace}
	streams := buildTwoDriverStreams()
	streams.Positions = nil

	_, err := Build(context.Background(), key, streams, DefaultOptions())
	require.Error(t, err)
}

func TestBuildRejectsEmptyTiming(t *testing.T) {
	key := session.Key{Year: 2024, Round: 1, SessionType: session.TypeRace}
	streams := buildTwoDriverStreams()
	streams.Timing = nil

	_, err := Build(context.Background(), key, streams, DefaultOptions())
	require.Error(t, err)
}

func TestBuildLowCoverageDisablesPosRaw(t *testing.T) {
	key := session.Key{Year: 2024, Round: 1, SessionType: session.TypeRace}
	streams := buildTwoDriverStreams()
	// Zero out positions on most rows to push coverage below threshold.
	for i := range streams.Timing {
		streams.Timing[i].Position = 0
	}
	streams.Timing[0].Position = 1

	sess, err := Build(context.Background(), key, streams, DefaultOptions())
	require.NoError(t, err)
	require.False(t, sess.PositionCoverageOK)
}

func TestDriverStatusStringsAreStable(t *testing.T) {
	require.Equal(t, "running", frame.DriverRunning.String())
	require.Equal(t, "retired", frame.DriverRetired.String())
}

func TestBuildPopulatesDriverCatalogues(t *testing.T) {
	key := session.Key{Year: 2024, Round: 1, SessionType: session.TypeRace}
	streams := buildTwoDriverStreams()
	streams.DriverMeta = []adapter.DriverMetaRow{
		{Driver: "HAM", Number: 44, Team: "Mercedes", ColorHex: "#27F4D2"},
		{Driver: "VER", Number: 1, Team: "Red Bull Racing", ColorHex: "#3671C6"},
	}

	sess, err := Build(context.Background(), key, streams, DefaultOptions())
	require.NoError(t, err)

	require.Equal(t, 44, sess.DriverNumbers["HAM"])
	require.Equal(t, "Mercedes", sess.DriverTeams["HAM"])
	require.Equal(t, session.RGB{R: 0x27, G: 0xF4, B: 0xD2}, sess.DriverColors["HAM"])
	require.Equal(t, 1, sess.DriverNumbers["VER"])
	require.Equal(t, "Red Bull Racing", sess.DriverTeams["VER"])
}

func TestBuildSetsRaceStartEpochFromEarliestPositionSample(t *testing.T) {
	key := session.Key{Year: 2024, Round: 1, SessionType: session.TypeRace}
	streams := buildTwoDriverStreams()
	for i := range streams.Positions {
		streams.Positions[i].Time += 100
	}

	sess, err := Build(context.Background(), key, streams, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, int64(100*time.Second), sess.RaceStartEpoch)

	// Frame.T is rebased to start at 0 regardless of the raw stream's time
	// origin, and drivers must still be fused in (a grid misaligned with
	// the shifted position timestamps would leave every frame's Drivers
	// map empty).
	require.InDelta(t, 0, sess.Frames[0].T, 1e-6)
	require.NotEmpty(t, sess.Frames[0].Drivers)
	require.Contains(t, sess.Frames[len(sess.Frames)-1].Drivers, "HAM")
}
