// Package position implements the three-tier ordering engine described in
// spec.md §4.2: a hybrid sort key, a temporal-hysteresis smoothing filter,
// and a lap-boundary anchor overlay, applied in that precedence order
// (anchor dominates hysteresis dominates the raw sort key).
//
// Concurrency shape is grounded on the teacher's sendCooldown struct in
// internal/lidar/visualiser/grpc_server.go: a small stateful filter that
// tracks a running/candidate pair and commits a transition only once it has
// been stable long enough, rather than accepting every new observation
// immediately.
package position

import (
	"math"
	"sort"

	"github.com/banshee-data/raceplay.report/internal/frame"
	"github.com/banshee-data/raceplay.report/internal/session"
)

const (
	// sinkValue is the Tier A primary/secondary value assigned to retired,
	// unknown, or non-finite inputs so they sort to the bottom of the field.
	sinkValue = 9999.0

	// DefaultHysteresisCaution is H under SC/VSC/red (spec.md §4.2).
	DefaultHysteresisCaution = 0.3
	// DefaultHysteresisNormal is H otherwise.
	DefaultHysteresisNormal = 1.0
)

// DriverInput is one driver's Tier-A inputs for a single frame.
type DriverInput struct {
	Code          string
	PosRaw        int      // 0 if missing
	IntervalSmooth *float64 // nil if unknown
	RaceProgress  float64  // dist; must be finite to count
	Retired       bool
	Lap           int
}

// sortKey is the Tier A triple (primary, secondary, tertiary).
type sortKey struct {
	primary   float64
	secondary float64
	tertiary  float64
}

func keyFor(d DriverInput) sortKey {
	primary := sinkValue
	if d.PosRaw > 0 && !d.Retired {
		primary = float64(d.PosRaw)
	}

	secondary := sinkValue
	if d.IntervalSmooth != nil && !math.IsNaN(*d.IntervalSmooth) && !math.IsInf(*d.IntervalSmooth, 0) && !d.Retired {
		secondary = *d.IntervalSmooth
	}

	tertiary := 0.0
	if !math.IsNaN(d.RaceProgress) && !math.IsInf(d.RaceProgress, 0) {
		tertiary = -d.RaceProgress
	}

	if d.Retired {
		// Retired drivers sink regardless of any residual progress value,
		// per spec.md §4.2 retirement detection: frozen at the bottom.
		primary, secondary = sinkValue, sinkValue
	}

	return sortKey{primary: primary, secondary: secondary, tertiary: tertiary}
}

// HybridSort returns driver codes ordered by Tier A's hybrid sort key,
// ascending, ties broken lexicographically on the triple (and, failing
// that, by code for determinism).
func HybridSort(inputs []DriverInput) []string {
	type scored struct {
		code string
		key  sortKey
	}
	scored_ := make([]scored, len(inputs))
	for i, d := range inputs {
		scored_[i] = scored{code: d.Code, key: keyFor(d)}
	}
	sort.SliceStable(scored_, func(i, j int) bool {
		a, b := scored_[i].key, scored_[j].key
		if a.primary != b.primary {
			return a.primary < b.primary
		}
		if a.secondary != b.secondary {
			return a.secondary < b.secondary
		}
		if a.tertiary != b.tertiary {
			return a.tertiary < b.tertiary
		}
		return scored_[i].code < scored_[j].code
	})
	out := make([]string, len(scored_))
	for i, s := range scored_ {
		out[i] = s.code
	}
	return out
}

// Smoother is the stateful Tier B temporal-hysteresis filter. Not safe for
// concurrent use by multiple goroutines; one Smoother is owned by exactly
// one Frame Builder run.
type Smoother struct {
	accepted     []string
	candidate    []string
	candidateAt  float64
	haveAccepted bool
}

// NewSmoother returns a Smoother with no accepted order yet; the first
// Observe call always commits immediately.
func NewSmoother() *Smoother { return &Smoother{} }

// Observe feeds the Tier A order for time t under the given hysteresis
// window H, and returns the order Tier B emits for this frame.
func (s *Smoother) Observe(t float64, order []string, h float64) []string {
	if !s.haveAccepted {
		s.accepted = append([]string(nil), order...)
		s.haveAccepted = true
		s.candidate = nil
		return s.accepted
	}

	if equalOrder(order, s.accepted) {
		// Matches the accepted order: no pending candidate.
		s.candidate = nil
		return s.accepted
	}

	if !equalOrder(order, s.candidate) {
		// A new candidate distinct from both accepted and the current
		// pending candidate: restart the stability clock.
		s.candidate = append([]string(nil), order...)
		s.candidateAt = t
		return s.accepted
	}

	// Same candidate as before: check whether it has been stable long
	// enough to commit.
	if t-s.candidateAt >= h {
		s.accepted = s.candidate
		s.candidate = nil
		return s.accepted
	}
	return s.accepted
}

func equalOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// HysteresisWindow returns H for the given track status per spec.md §4.2:
// 0.3s under SC/VSC/red, 1.0s otherwise.
func HysteresisWindow(status frame.TrackStatus) float64 {
	if status.IsCaution() {
		return DefaultHysteresisCaution
	}
	return DefaultHysteresisNormal
}

// ApplyLapAnchors overlays Tier C's lap-boundary ground truth onto order,
// per spec.md §4.2: each anchored driver is placed at their official
// 1-indexed slot; collisions are resolved by the lower official number
// winning, displacing the other driver into the anchored driver's
// pre-overlay slot. lapByDriver gives each driver's current lap number.
func ApplyLapAnchors(order []string, boundaries session.LapBoundaries, lapByDriver map[string]int) []string {
	if len(boundaries) == 0 {
		return order
	}

	n := len(order)
	origSlot := make(map[string]int, n)
	for i, code := range order {
		origSlot[code] = i
	}

	// Collect anchors applicable to this frame, keyed by driver.
	anchorSlot := make(map[string]int) // code -> 0-indexed target slot
	for code, lapMap := range boundaries {
		lap, ok := lapByDriver[code]
		if !ok {
			continue
		}
		if official, ok := lapMap[lap]; ok && official > 0 {
			anchorSlot[code] = official - 1
		}
	}
	if len(anchorSlot) == 0 {
		return order
	}

	result := make([]string, n)
	placed := make([]bool, n)
	usedSlot := make(map[int]string, len(anchorSlot))

	// Place anchored drivers, resolving collisions by lower official
	// number winning; the displaced driver falls back to the winner's
	// pre-overlay slot.
	anchoredCodes := make([]string, 0, len(anchorSlot))
	for code := range anchorSlot {
		anchoredCodes = append(anchoredCodes, code)
	}
	sort.Slice(anchoredCodes, func(i, j int) bool {
		return anchorSlot[anchoredCodes[i]] < anchorSlot[anchoredCodes[j]]
	})

	for _, code := range anchoredCodes {
		slot := anchorSlot[code]
		if slot < 0 || slot >= n {
			continue
		}
		if occupant, taken := usedSlot[slot]; taken {
			// Lower official number already placed here (codes processed
			// in ascending official-number order), so code is displaced
			// into occupant's pre-overlay slot if that slot is free.
			fallback := origSlot[occupant]
			for placed[fallback] && fallback < n-1 {
				fallback++
			}
			if fallback < n && !placed[fallback] {
				result[fallback] = code
				placed[fallback] = true
			}
			continue
		}
		result[slot] = code
		placed[slot] = true
		usedSlot[slot] = code
	}

	// Fill remaining slots with non-anchored drivers in their relative
	// original order.
	next := 0
	for _, code := range order {
		if _, anchored := anchorSlot[code]; anchored {
			if isPlacedCode(result, placed, code) {
				continue
			}
		}
		for next < n && placed[next] {
			next++
		}
		if next >= n {
			break
		}
		result[next] = code
		placed[next] = true
	}

	return result
}

func isPlacedCode(result []string, placed []bool, code string) bool {
	for i, p := range placed {
		if p && result[i] == code {
			return true
		}
	}
	return false
}
