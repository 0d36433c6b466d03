// Command racetrace renders static PNG debug plots for a session: the
// track polyline and each driver's speed trace over session time.
//
// Usage:
//
//	go run ./cmd/racetrace -year 2024 -round 5 -session-type R -fixtures fixtures.json -out plots/
//
// Grounded on the teacher's internal/lidar/monitor/gridplotter.go: one
// gonum/plot.Plot per series group, saved as PNG via p.Save.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/banshee-data/raceplay.report/internal/cache"
	"github.com/banshee-data/raceplay.report/internal/framebuilder"
	"github.com/banshee-data/raceplay.report/internal/session"
	"github.com/banshee-data/raceplay.report/internal/store"
	"github.com/banshee-data/raceplay.report/internal/units"
)

var (
	cacheDir     = flag.String("cache-dir", "cache", "Session cache directory")
	fixturesPath = flag.String("fixtures", "", "Path to a JSON fixture file supplying raw streams for this session (required: see internal/adapter, no production adapter ships here)")
	outDir       = flag.String("out", "plots", "Output directory for PNG files")
	year         = flag.Int("year", 0, "Season year")
	round        = flag.Int("round", 0, "Round number")
	sessionType  = flag.String("session-type", "R", "Session type code (R, Q, S, FP1, FP2, FP3)")
	loadTimeout  = flag.Duration("load-timeout", 60*time.Second, "How long to wait for the session to finish building")
	speedUnit    = flag.String("speed-unit", units.KMPH, "Speed unit for the speed trace plot ("+units.GetValidUnitsString()+")")
)

func main() {
	flag.Parse()

	key := session.Key{Year: *year, Round: *round, SessionType: session.Type(*sessionType)}
	if !key.SessionType.Valid() {
		fmt.Fprintf(os.Stderr, "invalid -session-type %q\n", *sessionType)
		os.Exit(1)
	}
	if *fixturesPath == "" {
		fmt.Fprintln(os.Stderr, "-fixtures is required")
		os.Exit(1)
	}
	if !units.IsValid(*speedUnit) {
		fmt.Fprintf(os.Stderr, "invalid -speed-unit %q, want one of: %s\n", *speedUnit, units.GetValidUnitsString())
		os.Exit(1)
	}

	c, err := cache.New(*cacheDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open cache: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	fetcher, err := loadFixtureFetcher(*fixturesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixtures: %v\n", err)
		os.Exit(1)
	}

	st := store.New(fetcher, c, framebuilder.DefaultOptions())
	sess := st.GetOrCreate(context.Background(), key)

	ctx, cancel := context.WithTimeout(context.Background(), *loadTimeout)
	defer cancel()
	if err := waitLoaded(ctx, sess); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if err := sess.LoadError(); err != nil {
		fmt.Fprintf(os.Stderr, "session failed to load: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create output dir: %v\n", err)
		os.Exit(1)
	}

	if err := plotTrackGeometry(sess, *outDir); err != nil {
		fmt.Fprintf(os.Stderr, "plot track geometry: %v\n", err)
		os.Exit(1)
	}
	if err := plotSpeedTraces(sess, *outDir, *speedUnit); err != nil {
		fmt.Fprintf(os.Stderr, "plot speed traces: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("plots written to %s\n", *outDir)
}

// waitLoaded polls sess until it finishes loading or ctx expires.
func waitLoaded(ctx context.Context, sess *session.Session) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if sess.IsLoaded() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for session to load: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
