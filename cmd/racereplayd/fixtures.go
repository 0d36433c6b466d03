package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/banshee-data/raceplay.report/internal/adapter"
	"github.com/banshee-data/raceplay.report/internal/adapter/fake"
	"github.com/banshee-data/raceplay.report/internal/session"
)

// fixtureFile is the on-disk shape of a -fixtures JSON file: one entry per
// session key this instance can serve. There is no production
// timing-feed adapter in this module (internal/adapter documents the
// boundary but ships no implementation — the upstream feed is out of
// scope), so this is the only way to hand racereplayd data to serve.
type fixtureFile struct {
	Sessions []fixtureSession `json:"sessions"`
}

type fixtureSession struct {
	Key     fixtureKey      `json:"key"`
	Streams adapter.Streams `json:"streams"`
}

type fixtureKey struct {
	Year        int    `json:"year"`
	Round       int    `json:"round"`
	SessionType string `json:"session_type"`
}

// loadFixtureFetcher reads path and builds a fake.Fetcher pre-populated
// with its sessions, keyed by the year/round/session_type each entry
// names.
func loadFixtureFetcher(path string) (*fake.Fetcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures file: %w", err)
	}

	var file fixtureFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse fixtures JSON: %w", err)
	}
	if len(file.Sessions) == 0 {
		return nil, fmt.Errorf("fixtures file %q defines no sessions", path)
	}

	f := fake.New()
	for _, entry := range file.Sessions {
		key := session.Key{
			Year:        entry.Key.Year,
			Round:       entry.Key.Round,
			SessionType: session.Type(entry.Key.SessionType),
		}
		if !key.SessionType.Valid() {
			return nil, fmt.Errorf("fixtures file %q: unrecognised session_type %q", path, entry.Key.SessionType)
		}
		f.Timing[key] = entry.Streams.Timing
		f.TrackStatus[key] = entry.Streams.TrackStatus
		f.Laps[key] = entry.Streams.Laps
		f.Positions[key] = entry.Streams.Positions
		f.DriverMeta[key] = entry.Streams.DriverMeta
	}
	return f, nil
}
