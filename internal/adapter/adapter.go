// Package adapter declares the narrow interface between the session
// pipeline and the out-of-scope raw-data source (spec.md §4.7 / SPEC_FULL.md
// §4.7-4.8). No implementation is provided here; internal/framebuilder and
// tests consume it through this interface, with internal/adapter/fake
// supplying deterministic fixtures.
package adapter

import (
	"context"
	"time"

	"github.com/banshee-data/raceplay.report/internal/session"
)

// TimingRow is one stream_timing sample (~240ms cadence).
type TimingRow struct {
	Driver        string
	Time          float64 // session-relative seconds
	Position      int     // 0 if missing
	GapToLeaderS  *float64
	IntervalS     *float64
	Status        string // "", "Retired", etc.
}

// TrackStatusRow is one track-status transition.
type TrackStatusRow struct {
	Time   float64
	Status string // matches the single-digit upstream codes, e.g. "1".."8"
}

// LapRow is one per-lap record from lap_timing.
type LapRow struct {
	Driver         string
	LapNumber      int
	StartTime      float64
	OfficialPos    int // 0 if no official anchor for this lap
	Sector1        *float64
	Sector2        *float64
	Sector3        *float64
}

// PositionRow is one per-driver GPS sample (~40ms cadence).
type PositionRow struct {
	Driver string
	Time   float64
	X, Y, Z float64
	Status  string // "", "Retired"
}

// DriverMetaRow is one driver's catalogue entry (spec.md §3's
// driver_colors/driver_numbers/driver_teams), sourced once per session
// rather than repeated per timing/position row.
type DriverMetaRow struct {
	Driver   string
	Number   int
	Team     string
	ColorHex string // "#RRGGBB", team livery colour
}

// Streams bundles the four raw tabular inputs consumed by
// internal/framebuilder.Build, matching spec.md §4.1's four input streams,
// plus the driver catalogue used to populate session.Session's auxiliary
// maps.
type Streams struct {
	Timing       []TimingRow
	TrackStatus  []TrackStatusRow
	Laps         []LapRow
	Positions    []PositionRow
	DriverMeta   []DriverMetaRow
	LapBoundaries session.LapBoundaries
}

// Fetcher is the raw-data adapter boundary. Implementations live outside
// this module (e.g. an HTTP client against an upstream timing API); this
// module only declares the shape it needs.
type Fetcher interface {
	FetchTiming(ctx context.Context, key session.Key) ([]TimingRow, error)
	FetchTrackStatus(ctx context.Context, key session.Key) ([]TrackStatusRow, error)
	FetchLaps(ctx context.Context, key session.Key) ([]LapRow, error)
	FetchPositions(ctx context.Context, key session.Key) ([]PositionRow, error)
	FetchDriverMeta(ctx context.Context, key session.Key) ([]DriverMetaRow, error)
}

// FetchAll pulls all five streams for key using f, returning a Streams
// ready for internal/framebuilder.Build. Exists so callers don't repeat
// this boilerplate; does not itself derive LapBoundaries, which is an
// optional, separately supplied override (spec.md §3).
func FetchAll(ctx context.Context, f Fetcher, key session.Key) (Streams, error) {
	timing, err := f.FetchTiming(ctx, key)
	if err != nil {
		return Streams{}, err
	}
	trackStatus, err := f.FetchTrackStatus(ctx, key)
	if err != nil {
		return Streams{}, err
	}
	laps, err := f.FetchLaps(ctx, key)
	if err != nil {
		return Streams{}, err
	}
	positions, err := f.FetchPositions(ctx, key)
	if err != nil {
		return Streams{}, err
	}
	driverMeta, err := f.FetchDriverMeta(ctx, key)
	if err != nil {
		return Streams{}, err
	}
	return Streams{
		Timing:      timing,
		TrackStatus: trackStatus,
		Laps:        laps,
		Positions:   positions,
		DriverMeta:  driverMeta,
	}, nil
}

// LapDetailRequest is the per-lap detail API request shape (spec.md §6,
// SPEC_FULL.md §4.8). Declared for type reuse only; no handler exists in
// this module.
type LapDetailRequest struct {
	Key       session.Key
	Driver    string
	LapNumber int
}

// LapDetailPoint is one sample of the requested lap's fine-grained trace.
type LapDetailPoint struct {
	Time  time.Duration
	X, Y  float64
	Speed float64
}

// SectorTimes is a lap's three sector splits, nullable where not recorded.
type SectorTimes struct {
	Sector1, Sector2, Sector3 *float64
}
