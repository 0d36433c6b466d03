package adapter_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/raceplay.report/internal/adapter"
	"github.com/banshee-data/raceplay.report/internal/adapter/fake"
	"github.com/banshee-data/raceplay.report/internal/session"
)

func TestFetchAllAggregatesStreams(t *testing.T) {
	key := session.Key{Year: 2024, Round: 3, SessionType: session.TypeRace}
	f := fake.New()
	f.Timing[key] = []adapter.TimingRow{{Driver: "HAM", Time: 1.0, Position: 1}}
	f.TrackStatus[key] = []adapter.TrackStatusRow{{Time: 0, Status: "1"}}
	f.Laps[key] = []adapter.LapRow{{Driver: "HAM", LapNumber: 1, StartTime: 0}}
	f.Positions[key] = []adapter.PositionRow{{Driver: "HAM", Time: 1.0, X: 10, Y: 20}}

	streams, err := adapter.FetchAll(context.Background(), f, key)
	require.NoError(t, err)
	require.Len(t, streams.Timing, 1)
	require.Len(t, streams.TrackStatus, 1)
	require.Len(t, streams.Laps, 1)
	require.Len(t, streams.Positions, 1)
}

func TestFetchAllPropagatesError(t *testing.T) {
	key := session.Key{Year: 2024, Round: 3, SessionType: session.TypeRace}
	f := fake.New()
	f.Err = errors.New("upstream unavailable")

	_, err := adapter.FetchAll(context.Background(), f, key)
	require.ErrorIs(t, err, f.Err)
}
