package debugviz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/raceplay.report/internal/adapter"
	"github.com/banshee-data/raceplay.report/internal/adapter/fake"
	"github.com/banshee-data/raceplay.report/internal/cache"
	"github.com/banshee-data/raceplay.report/internal/framebuilder"
	"github.com/banshee-data/raceplay.report/internal/session"
	"github.com/banshee-data/raceplay.report/internal/store"
)

func gap(v float64) *float64 { return &v }

func testKey() session.Key {
	return session.Key{Year: 2024, Round: 5, SessionType: session.TypeRace}
}

func newLoadedStore(t *testing.T, key session.Key) *store.Store {
	t.Helper()
	f := fake.New()
	f.Positions[key] = []adapter.PositionRow{
		{Driver: "HAM", Time: 0.0, X: 0, Y: 0},
		{Driver: "HAM", Time: 0.5, X: 50, Y: 10},
		{Driver: "HAM", Time: 1.0, X: 100, Y: 0},
	}
	f.Timing[key] = []adapter.TimingRow{
		{Driver: "HAM", Time: 0.0, Position: 1, GapToLeaderS: gap(0), IntervalS: gap(0.5)},
		{Driver: "HAM", Time: 0.5, Position: 1, GapToLeaderS: gap(0), IntervalS: gap(0.5)},
	}
	f.TrackStatus[key] = []adapter.TrackStatusRow{{Time: 0, Status: "1"}}
	f.Laps[key] = []adapter.LapRow{{Driver: "HAM", LapNumber: 1, StartTime: 0}}

	c, err := cache.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	st := store.New(f, c, framebuilder.DefaultOptions())
	sess := st.GetOrCreate(context.Background(), key)
	require.Eventually(t, sess.IsLoaded, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, sess.LoadError())
	return st
}

func TestHandleDashboardRendersLinks(t *testing.T) {
	key := testKey()
	h := New(newLoadedStore(t, key))
	req := httptest.NewRequest(http.MethodGet, "/debug/session?year=2024&round=5&session_type=R", nil)
	rec := httptest.NewRecorder()

	h.handleDashboard(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "/debug/session/track")
	require.Contains(t, rec.Body.String(), "/debug/session/gap")
}

func TestHandleTrackChartRendersForLoadedSession(t *testing.T) {
	key := testKey()
	h := New(newLoadedStore(t, key))
	req := httptest.NewRequest(http.MethodGet, "/debug/session/track?year=2024&round=5&session_type=R", nil)
	rec := httptest.NewRecorder()

	h.handleTrackChart(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Track Geometry")
}

func TestHandleTrackChartNotFoundForUnknownKey(t *testing.T) {
	key := testKey()
	h := New(newLoadedStore(t, key))
	req := httptest.NewRequest(http.MethodGet, "/debug/session/track?year=1999&round=1&session_type=R", nil)
	rec := httptest.NewRecorder()

	h.handleTrackChart(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGapChartRendersForLoadedSession(t *testing.T) {
	key := testKey()
	h := New(newLoadedStore(t, key))
	req := httptest.NewRequest(http.MethodGet, "/debug/session/gap?year=2024&round=5&session_type=R", nil)
	rec := httptest.NewRecorder()

	h.handleGapChart(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Gap to Leader")
}

func TestHandleGapChartNotFoundBeforeSuccessfulLoad(t *testing.T) {
	key := session.Key{Year: 2030, Round: 9, SessionType: session.TypeRace}
	f := fake.New()
	c, err := cache.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	st := store.New(f, c, framebuilder.DefaultOptions())
	// The fake has no rows for key, so the session is either still loading
	// or has failed to load when the handler runs; both answer 404.
	st.GetOrCreate(context.Background(), key)

	h := New(st)
	req := httptest.NewRequest(http.MethodGet, "/debug/session/gap?year=2030&round=9&session_type=R", nil)
	rec := httptest.NewRecorder()

	h.handleGapChart(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutesRegistersAllEndpoints(t *testing.T) {
	key := testKey()
	h := New(newLoadedStore(t, key))
	mux := http.NewServeMux()
	h.Routes(mux)

	for _, path := range []string{"/debug/session", "/debug/session/track", "/debug/session/gap"} {
		req := httptest.NewRequest(http.MethodGet, path+"?year=2024&round=5&session_type=R", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "path %s", path)
	}
}
