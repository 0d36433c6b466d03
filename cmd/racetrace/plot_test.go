package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/raceplay.report/internal/frame"
	"github.com/banshee-data/raceplay.report/internal/session"
)

func fixtureSessionForPlots() *session.Session {
	sess := session.NewSession(session.Key{Year: 2024, Round: 1, SessionType: session.TypeRace})
	sess.TrackGeometry = []session.Point{{X: 0, Y: 0}, {X: 50, Y: 10}, {X: 100, Y: 0}}
	sess.Frames = []frame.Frame{
		{T: 0, Drivers: map[string]frame.DriverSample{"HAM": {Speed: 200}, "VER": {Speed: 210}}},
		{T: 0.04, Drivers: map[string]frame.DriverSample{"HAM": {Speed: 205}, "VER": {Speed: 215}}},
	}
	sess.MarkLoaded()
	return sess
}

func TestPlotTrackGeometryWritesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, plotTrackGeometry(fixtureSessionForPlots(), dir))

	info, err := os.Stat(filepath.Join(dir, "track_geometry.png"))
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestPlotTrackGeometryRejectsEmptyGeometry(t *testing.T) {
	sess := fixtureSessionForPlots()
	sess.TrackGeometry = nil
	require.Error(t, plotTrackGeometry(sess, t.TempDir()))
}

func TestPlotSpeedTracesWritesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, plotSpeedTraces(fixtureSessionForPlots(), dir, "kmph"))

	info, err := os.Stat(filepath.Join(dir, "speed_traces.png"))
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestPlotSpeedTracesRejectsEmptyFrames(t *testing.T) {
	sess := fixtureSessionForPlots()
	sess.Frames = nil
	require.Error(t, plotSpeedTraces(sess, t.TempDir(), "kmph"))
}

func TestPlotSpeedTracesRejectsInvalidUnit(t *testing.T) {
	require.Error(t, plotSpeedTraces(fixtureSessionForPlots(), t.TempDir(), "furlongs"))
}

func TestTraceColorsProducesDistinctColors(t *testing.T) {
	colors := traceColors(4)
	require.Len(t, colors, 4)
	require.NotEqual(t, colors[0], colors[1])
}

func TestTraceColorsEmpty(t *testing.T) {
	require.Nil(t, traceColors(0))
}
