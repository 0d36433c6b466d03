// Package session defines SessionKey and Session, the identity basis and
// central artifact of the session pipeline (spec.md §3).
package session

import (
	"fmt"
	"sync/atomic"

	"github.com/banshee-data/raceplay.report/internal/frame"
)

// Type is the session type code recognised by the upstream timing feed.
type Type string

const (
	TypeRace      Type = "R"
	TypeSprint    Type = "S"
	TypeQualifying Type = "Q"
	TypePractice1 Type = "FP1"
	TypePractice2 Type = "FP2"
	TypePractice3 Type = "FP3"
)

// Valid reports whether t is one of the recognised session types.
func (t Type) Valid() bool {
	switch t {
	case TypeRace, TypeSprint, TypeQualifying, TypePractice1, TypePractice2, TypePractice3:
		return true
	default:
		return false
	}
}

// Key is the identity basis for caching and store indexing (spec.md §3).
type Key struct {
	Year        int
	Round       int
	SessionType Type
}

// String renders the key in the cache-file naming scheme of spec.md §4.6:
// <year>_<round>_<session>.
func (k Key) String() string {
	return fmt.Sprintf("%d_%d_%s", k.Year, k.Round, k.SessionType)
}

// RGB is an 8-bit-per-channel colour, used for driver_colors.
type RGB struct {
	R, G, B uint8
}

// Point is one vertex of the track polyline.
type Point struct {
	X, Y float32
}

// StatusTransition records a track-status change at a point in session time.
type StatusTransition struct {
	T      float64
	Status frame.TrackStatus
}

// LapBoundaries is the sparse, per-driver ground-truth override consumed by
// the Position Engine's Tier C (spec.md §3, §4.2).
//
//	LapBoundaries[driverCode][lapNumber] = official position at lap start
type LapBoundaries map[string]map[int]int

// Session is the central, immutable-once-loaded artifact of the pipeline
// (spec.md §3). Frames and catalogues are populated by exactly one loader
// (internal/framebuilder via internal/store) and must never be mutated
// after IsLoaded() observes true — that boundary is the release fence
// referenced in spec.md §9.
type Session struct {
	Key Key

	// Populated only after IsLoaded() is true. Safe for any number of
	// concurrent readers without further synchronization once that flag
	// is observed true (see internal/store for the publish protocol).
	Frames         []frame.Frame
	TotalLaps      int
	TrackGeometry  []Point
	DriverColors   map[string]RGB
	DriverNumbers  map[string]int
	DriverTeams    map[string]string
	TrackStatuses  []StatusTransition
	// RaceStartEpoch is the earliest position sample's timestamp in
	// nanoseconds, on whatever origin the adapter's raw streams use (no
	// wall-clock source crosses the adapter boundary — see
	// internal/framebuilder.Build).
	RaceStartEpoch int64

	// PositionCoverageOK records whether stream_timing position coverage
	// met the §4.1 step 7 threshold; false means the Position Engine ran
	// in progress-only mode for this session.
	PositionCoverageOK bool

	// Lifecycle. Written only by the loader; read by anyone. loaded uses a
	// release-fence write (atomic.Bool.Store) so that by the time a reader
	// observes loaded==true, the Frames/catalogue writes above are visible
	// without further synchronization (spec.md §5).
	loaded    atomic.Bool
	loadErr   atomic.Value // stores error
	progress  atomic.Int32 // 0-100
	statusMsg atomic.Value // stores string
}

// NewSession creates an unloaded Session handle for key. Used by
// internal/store.GetOrCreate for the published handle, and by the Frame
// Builder and the Cache Layer for sessions they build or restore.
func NewSession(key Key) *Session {
	s := &Session{Key: key}
	s.statusMsg.Store("queued")
	return s
}

// IsLoaded reports whether the session finished loading (successfully or
// not). Acts as the acquire side of the release fence set by MarkLoaded /
// MarkFailed.
func (s *Session) IsLoaded() bool { return s.loaded.Load() }

// LoadError returns the error that terminated the load, or nil.
func (s *Session) LoadError() error {
	if v := s.loadErr.Load(); v != nil {
		if err, ok := v.(error); ok {
			return err
		}
	}
	return nil
}

// Progress returns the current load progress, 0-100.
func (s *Session) Progress() int { return int(s.progress.Load()) }

// LoadingStatus returns the current human-readable loading message.
func (s *Session) LoadingStatus() string {
	if v := s.statusMsg.Load(); v != nil {
		return v.(string)
	}
	return ""
}

// SetProgress updates progress and the status message. Progress is
// monotonic non-decreasing per spec.md §3; callers (the loader only) must
// respect that themselves — SetProgress does not clamp, to keep the hot
// path allocation-free, but internal/store's loader never calls it
// out of order.
func (s *Session) SetProgress(pct int, message string) {
	s.progress.Store(int32(pct))
	s.statusMsg.Store(message)
}

// MarkLoaded publishes frames/catalogues, sets Progress to 100 and sets
// IsLoaded=true. Must be called exactly once, after every field above has
// its final value.
func (s *Session) MarkLoaded() {
	s.progress.Store(100)
	s.statusMsg.Store("complete")
	s.loaded.Store(true)
}

// MarkFailed records a load error and sets IsLoaded=true (a Session with a
// load error is still "loaded" in the sense of spec.md §4.4: it stays in
// the store to cache the failure until explicitly evicted).
func (s *Session) MarkFailed(err error) {
	s.loadErr.Store(err)
	s.statusMsg.Store(err.Error())
	s.loaded.Store(true)
}
