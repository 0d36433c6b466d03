// Package fake provides a deterministic, in-memory adapter.Fetcher for
// tests, modeled on the teacher's synthetic.go pattern of hand-built
// canned data instead of a live source.
package fake

import (
	"context"

	"github.com/banshee-data/raceplay.report/internal/adapter"
	"github.com/banshee-data/raceplay.report/internal/session"
)

// Fetcher is a static, pre-populated adapter.Fetcher. Tests construct one
// directly with the rows they want, keyed by session.Key.
type Fetcher struct {
	Timing      map[session.Key][]adapter.TimingRow
	TrackStatus map[session.Key][]adapter.TrackStatusRow
	Laps        map[session.Key][]adapter.LapRow
	Positions   map[session.Key][]adapter.PositionRow
	DriverMeta  map[session.Key][]adapter.DriverMetaRow

	// Err, if set, is returned by every Fetch* call (for testing the
	// adapter-error propagation path).
	Err error
}

// New returns an empty Fetcher ready to have its maps populated.
func New() *Fetcher {
	return &Fetcher{
		Timing:      make(map[session.Key][]adapter.TimingRow),
		TrackStatus: make(map[session.Key][]adapter.TrackStatusRow),
		Laps:        make(map[session.Key][]adapter.LapRow),
		Positions:   make(map[session.Key][]adapter.PositionRow),
		DriverMeta:  make(map[session.Key][]adapter.DriverMetaRow),
	}
}

func (f *Fetcher) FetchTiming(_ context.Context, key session.Key) ([]adapter.TimingRow, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Timing[key], nil
}

func (f *Fetcher) FetchTrackStatus(_ context.Context, key session.Key) ([]adapter.TrackStatusRow, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.TrackStatus[key], nil
}

func (f *Fetcher) FetchLaps(_ context.Context, key session.Key) ([]adapter.LapRow, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Laps[key], nil
}

func (f *Fetcher) FetchPositions(_ context.Context, key session.Key) ([]adapter.PositionRow, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Positions[key], nil
}

func (f *Fetcher) FetchDriverMeta(_ context.Context, key session.Key) ([]adapter.DriverMetaRow, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.DriverMeta[key], nil
}
