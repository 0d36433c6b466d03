// Package store implements the Session Store (spec.md §4.4): a
// process-wide registry mapping session.Key to session.Session with
// load-once semantics and progress fan-out to registered callbacks.
//
// Grounded directly on the teacher's Publisher concurrency shape
// (internal/lidar/visualiser/publisher.go): a map guarded by its own
// lock, atomic lifecycle flags, and a subscriber list iterated via a
// lock-snapshot-then-invoke pattern — generalized from "N streaming
// clients of one live publisher" to "N sessions, each load-once with its
// own subscriber list."
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/raceplay.report/internal/adapter"
	"github.com/banshee-data/raceplay.report/internal/cache"
	"github.com/banshee-data/raceplay.report/internal/errs"
	"github.com/banshee-data/raceplay.report/internal/framebuilder"
	"github.com/banshee-data/raceplay.report/internal/obslog"
	"github.com/banshee-data/raceplay.report/internal/session"
	"github.com/banshee-data/raceplay.report/internal/timeutil"
)

var log = obslog.For(obslog.ComponentStore)

// ProgressCallback receives best-effort, monotonic progress updates for
// one session's load (spec.md §4.4). Delivery is from the loader's
// goroutines (the load itself and its progress ticker, never both at
// once); a slow or panicking callback must never block or fail the
// load, so Store recovers from callback panics and otherwise makes no
// attempt to retry a dropped delivery.
type ProgressCallback func(state string, progress int, message string)

// progressInterval is the loader's inter-progress-update sleep, per
// spec.md §5 ("≈ 0.5 s").
const progressInterval = 500 * time.Millisecond

// entry is one session's store-side bookkeeping: the published handle
// plus its independent subscriber list. The subscriber list is protected
// by its own lock (spec.md §5: "protected by a per-session lock;
// register/unregister are O(1); iteration takes a snapshot under the
// lock"), separate from the Store's map lock so that fan-out never
// contends with an unrelated session's get_or_create.
type entry struct {
	sess *session.Session

	mu        sync.Mutex
	nextID    int
	callbacks map[int]ProgressCallback
}

func newEntry(sess *session.Session) *entry {
	return &entry{sess: sess, callbacks: make(map[int]ProgressCallback)}
}

func (e *entry) register(cb ProgressCallback) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.callbacks[id] = cb
	return id
}

func (e *entry) unregister(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.callbacks, id)
}

// notify takes a snapshot of the subscriber list under the lock, then
// invokes each callback outside it, so a slow callback never blocks
// register/unregister or another goroutine's notify.
func (e *entry) notify(state string, progress int, message string) {
	e.mu.Lock()
	snapshot := make([]ProgressCallback, 0, len(e.callbacks))
	for _, cb := range e.callbacks {
		snapshot = append(snapshot, cb)
	}
	e.mu.Unlock()

	for _, cb := range snapshot {
		deliverSafely(cb, state, progress, message)
	}
}

func deliverSafely(cb ProgressCallback, state string, progress int, message string) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("progress callback panicked; dropping")
		}
	}()
	cb(state, progress, message)
}

// Store is the process-wide Session Store.
type Store struct {
	opts    framebuilder.Options
	fetcher adapter.Fetcher
	cache   *cache.Cache
	clock   timeutil.Clock

	mu       sync.Mutex // protects sessions only; never do I/O while held
	sessions map[session.Key]*entry
}

// New constructs a Store that fetches raw streams via fetcher, builds
// sessions via internal/framebuilder with opts, and caches built sessions
// via c.
func New(fetcher adapter.Fetcher, c *cache.Cache, opts framebuilder.Options) *Store {
	return &Store{
		opts:     opts,
		fetcher:  fetcher,
		cache:    c,
		clock:    timeutil.RealClock{},
		sessions: make(map[session.Key]*entry),
	}
}

// WithClock overrides the Store's clock, for deterministic tests of the
// progress-reporting loop via timeutil.MockClock.
func (st *Store) WithClock(clock timeutil.Clock) *Store {
	st.clock = clock
	return st
}

// GetOrCreate implements spec.md §4.4's get_or_create: if key is absent,
// inserts a fresh unloaded Session, starts loading it in the background,
// and returns the handle immediately. All concurrent calls for the same
// key observe the same entry and thus share the one in-flight load
// (load-once, spec.md §8 scenario 6).
func (st *Store) GetOrCreate(ctx context.Context, key session.Key) *session.Session {
	st.mu.Lock()
	e, existed := st.sessions[key]
	if !existed {
		e = newEntry(session.NewSession(key))
		st.sessions[key] = e
	}
	st.mu.Unlock()

	if !existed {
		go st.runLoad(context.Background(), key, e)
	}
	return e.sess
}

// Lookup returns the Session for key without creating one.
func (st *Store) Lookup(key session.Key) (*session.Session, bool) {
	st.mu.Lock()
	e, ok := st.sessions[key]
	st.mu.Unlock()
	if !ok {
		return nil, false
	}
	return e.sess, true
}

// Evict removes key from the registry; a subsequent GetOrCreate starts a
// fresh load. Does not touch the Cache Layer's own tiers — eviction there
// is explicit via Cache.Clear (spec.md §4.6).
func (st *Store) Evict(key session.Key) {
	st.mu.Lock()
	delete(st.sessions, key)
	st.mu.Unlock()
}

// RegisterProgressCallback subscribes cb to progress updates for key.
// Returns a subscription id for Unregister. A no-op (id 0, false) if key
// is not (or no longer) registered in the store.
func (st *Store) RegisterProgressCallback(key session.Key, cb ProgressCallback) (int, bool) {
	st.mu.Lock()
	e, ok := st.sessions[key]
	st.mu.Unlock()
	if !ok {
		return 0, false
	}
	return e.register(cb), true
}

// UnregisterProgressCallback removes a previously registered callback.
func (st *Store) UnregisterProgressCallback(key session.Key, id int) {
	st.mu.Lock()
	e, ok := st.sessions[key]
	st.mu.Unlock()
	if !ok {
		return
	}
	e.unregister(id)
}

// runLoad drives one session's load to completion: periodic coarse
// progress fan-out (spec.md §5's ~0.5s inter-progress-update sleep) runs
// concurrently with the actual fetch+build, routed through the Cache
// Layer so a second get_or_create for the same key (after this session
// ages out of the store but not the cache) avoids recomputation.
func (st *Store) runLoad(ctx context.Context, key session.Key, e *entry) {
	e.sess.SetProgress(0, "fetching")
	e.notify("loading", 0, "fetching")

	done := make(chan struct{})
	tickerExited := make(chan struct{})
	go func() {
		defer close(tickerExited)
		st.tickProgress(key, e, done)
	}()

	built, err := st.cache.GetCached(ctx, key, st.buildFromScratch, false)
	close(done)
	// Wait for the ticker so none of its updates lands after the final one.
	<-tickerExited

	if err != nil {
		log.Error().Err(err).Str("key", key.String()).Msg("session load failed")
		e.sess.MarkFailed(err)
		e.notify("error", e.sess.Progress(), err.Error())
		return
	}

	publish(e.sess, built)
	e.sess.MarkLoaded()
	e.notify("complete", 100, "complete")
	log.Info().Str("key", key.String()).Int("frames", len(e.sess.Frames)).Msg("session load complete")
}

// tickProgress emits best-effort coarse progress while a load is in
// flight. It has no insight into the loader's real completion fraction
// (the Cache Layer's loader is an opaque function), so it advances a
// synthetic counter capped below 100 — the true 100 is only ever set by
// MarkLoaded once the load actually finishes.
func (st *Store) tickProgress(key session.Key, e *entry, done <-chan struct{}) {
	ticker := st.clock.NewTicker(progressInterval)
	defer ticker.Stop()

	pct := 0
	for {
		select {
		case <-done:
			return
		case <-ticker.C():
			if pct < 90 {
				pct += 10
			}
			e.sess.SetProgress(pct, "loading")
			e.notify("loading", pct, "loading")
		}
	}
}

// buildFromScratch is the Loader handed to the Cache Layer: fetch the
// five raw streams via the adapter boundary, then run the Frame Builder.
func (st *Store) buildFromScratch(ctx context.Context, key session.Key) (*session.Session, error) {
	if st.fetcher == nil {
		return nil, errs.Adapter("fetch_all", fmt.Errorf("no fetcher configured"))
	}
	streams, err := adapter.FetchAll(ctx, st.fetcher, key)
	if err != nil {
		return nil, errs.Adapter("fetch_all", err)
	}
	return framebuilder.Build(ctx, key, streams, st.opts)
}

// publish copies a freshly built session's fields onto the handle that
// was already returned to every caller of GetOrCreate, so progress
// subscribers and the returned *session.Session stay the same object
// identity throughout the load (spec.md §8 scenario 5: concurrent
// get_or_create calls yield the same Session identity).
func publish(handle, built *session.Session) {
	handle.Frames = built.Frames
	handle.TotalLaps = built.TotalLaps
	handle.TrackGeometry = built.TrackGeometry
	handle.DriverColors = built.DriverColors
	handle.DriverNumbers = built.DriverNumbers
	handle.DriverTeams = built.DriverTeams
	handle.TrackStatuses = built.TrackStatuses
	handle.RaceStartEpoch = built.RaceStartEpoch
	handle.PositionCoverageOK = built.PositionCoverageOK
}
