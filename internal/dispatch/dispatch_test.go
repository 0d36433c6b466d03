package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/raceplay.report/internal/adapter"
	"github.com/banshee-data/raceplay.report/internal/adapter/fake"
	"github.com/banshee-data/raceplay.report/internal/cache"
	"github.com/banshee-data/raceplay.report/internal/errs"
	"github.com/banshee-data/raceplay.report/internal/frame"
	"github.com/banshee-data/raceplay.report/internal/framebuilder"
	"github.com/banshee-data/raceplay.report/internal/session"
	"github.com/banshee-data/raceplay.report/internal/store"
)

func testKey() session.Key {
	return session.Key{Year: 2024, Round: 1, SessionType: session.TypeRace}
}

func gap(v float64) *float64 { return &v }

func populatedFetcher(key session.Key) *fake.Fetcher {
	f := fake.New()
	f.Positions[key] = []adapter.PositionRow{
		{Driver: "HAM", Time: 0.0, X: 0, Y: 0},
		{Driver: "HAM", Time: 0.5, X: 50, Y: 0},
	}
	f.Timing[key] = []adapter.TimingRow{
		{Driver: "HAM", Time: 0.0, Position: 1, GapToLeaderS: gap(0), IntervalS: gap(0.5)},
		{Driver: "HAM", Time: 0.5, Position: 1, GapToLeaderS: gap(0), IntervalS: gap(0.5)},
	}
	f.TrackStatus[key] = []adapter.TrackStatusRow{{Time: 0, Status: "1"}}
	f.Laps[key] = []adapter.LapRow{{Driver: "HAM", LapNumber: 1, StartTime: 0}}
	return f
}

func loadedFixtureSession(key session.Key, nFrames int) *session.Session {
	sess := session.NewSession(key)
	sess.Frames = make([]frame.Frame, nFrames)
	for i := range sess.Frames {
		sess.Frames[i] = frame.Frame{T: float64(i) * 0.04}
	}
	sess.TotalLaps = 1
	sess.MarkLoaded()
	return sess
}

// fakeRead is one queued response from fakeConn.Read.
type fakeRead struct {
	typ  websocket.MessageType
	data []byte
	err  error
}

type fakeWrite struct {
	typ  websocket.MessageType
	data []byte
}

// fakeConn is a narrow test double for the conn interface: a queue of
// canned reads plus a recorded log of writes, so tests never need a live
// socket.
type fakeConn struct {
	mu      sync.Mutex
	reads   []fakeRead
	readPos int
	writes  []fakeWrite
	closed  bool
}

func (c *fakeConn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	c.mu.Lock()
	if c.readPos < len(c.reads) {
		r := c.reads[c.readPos]
		c.readPos++
		c.mu.Unlock()
		return r.typ, r.data, r.err
	}
	c.mu.Unlock()
	<-ctx.Done()
	return 0, nil, ctx.Err()
}

func (c *fakeConn) Write(_ context.Context, typ websocket.MessageType, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	c.writes = append(c.writes, fakeWrite{typ, cp})
	return nil
}

func (c *fakeConn) Close(websocket.StatusCode, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) writeLog() []fakeWrite {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]fakeWrite, len(c.writes))
	copy(out, c.writes)
	return out
}

func newTestStore(t *testing.T, fetcher adapter.Fetcher) *store.Store {
	t.Helper()
	c, err := cache.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return store.New(fetcher, c, framebuilder.DefaultOptions())
}

func TestAwaitLoadLateJoinerSendsProgressThenComplete(t *testing.T) {
	key := testKey()
	st := newTestStore(t, populatedFetcher(key))
	sess := st.GetOrCreate(context.Background(), key)
	require.Eventually(t, sess.IsLoaded, 2*time.Second, 5*time.Millisecond)

	fc := &fakeConn{}
	d := New(fc, st, key)
	got, err := d.awaitLoad(context.Background())
	require.NoError(t, err)
	require.Same(t, sess, got)

	writes := fc.writeLog()
	require.Len(t, writes, 2)

	var progress loadingProgressEvent
	require.NoError(t, json.Unmarshal(writes[0].data, &progress))
	require.Equal(t, eventLoadingProgress, progress.Type)
	require.Equal(t, 100, progress.Progress)

	var complete loadingCompleteEvent
	require.NoError(t, json.Unmarshal(writes[1].data, &complete))
	require.Equal(t, eventLoadingComplete, complete.Type)
	require.Equal(t, len(sess.Frames), complete.Frames)
}

func TestAwaitLoadPropagatesLoadError(t *testing.T) {
	key := testKey()
	f := fake.New()
	f.Err = errors.New("upstream feed unavailable")
	st := newTestStore(t, f)
	sess := st.GetOrCreate(context.Background(), key)
	require.Eventually(t, sess.IsLoaded, 2*time.Second, 5*time.Millisecond)

	fc := &fakeConn{}
	d := New(fc, st, key)
	_, err := d.awaitLoad(context.Background())
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.KindDataQuality))

	writes := fc.writeLog()
	require.Len(t, writes, 1)
	var errEvent loadingErrorEvent
	require.NoError(t, json.Unmarshal(writes[0].data, &errEvent))
	require.Equal(t, eventLoadingError, errEvent.Type)
}

func TestRunReturnsTransportErrorOnDisconnect(t *testing.T) {
	key := testKey()
	st := newTestStore(t, populatedFetcher(key))
	sess := st.GetOrCreate(context.Background(), key)
	require.Eventually(t, sess.IsLoaded, 2*time.Second, 5*time.Millisecond)

	fc := &fakeConn{reads: []fakeRead{{err: errors.New("connection reset")}}}
	d := New(fc, st, key)

	err := d.Run(context.Background())
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.KindTransport))
}

func TestTickAdvancesFrameIndexAndSendsOnChange(t *testing.T) {
	key := testKey()
	sess := loadedFixtureSession(key, 5)
	fc := &fakeConn{}
	d := New(fc, nil, key)
	d.isPlaying = true

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, d.tick(ctx, sess))
	}

	// step = 1 * (1/60) * 25 per tick; after 3 ticks frameIndex ~= 1.25.
	require.InDelta(t, 1.25, d.frameIndex, 0.01)

	writes := fc.writeLog()
	require.NotEmpty(t, writes)
	for _, w := range writes {
		require.Equal(t, websocket.MessageBinary, w.typ)
	}
	// Frame 0 is sent once (first tick), then frame 1 once current advances.
	require.LessOrEqual(t, len(writes), 2)
}

func TestTickClampsAndPausesAtEndOfSequence(t *testing.T) {
	key := testKey()
	sess := loadedFixtureSession(key, 2)
	fc := &fakeConn{}
	d := New(fc, nil, key)
	d.isPlaying = true
	d.playbackSpeed = 1000 // guarantees overshoot past the last frame in one tick

	require.NoError(t, d.tick(context.Background(), sess))

	require.Equal(t, float64(1), d.frameIndex)
	require.False(t, d.isPlaying)
	require.Equal(t, 1, d.lastFrameSent)
}

func TestHandleControlSeekResetsLastFrameSent(t *testing.T) {
	key := testKey()
	sess := loadedFixtureSession(key, 10)
	fc := &fakeConn{}
	d := New(fc, nil, key)
	d.lastFrameSent = 5

	msg, err := json.Marshal(map[string]any{"action": "seek", "frame": 3})
	require.NoError(t, err)
	d.handleControl(msg, sess)

	require.Equal(t, float64(3), d.frameIndex)
	require.Equal(t, -1, d.lastFrameSent)
}

func TestHandleControlSeekFloorsFractionalFrame(t *testing.T) {
	key := testKey()
	sess := loadedFixtureSession(key, 10)
	fc := &fakeConn{}
	d := New(fc, nil, key)

	msg, err := json.Marshal(map[string]any{"action": "seek", "frame": 3.9})
	require.NoError(t, err)
	d.handleControl(msg, sess)

	require.Equal(t, float64(3), d.frameIndex)
}

func TestHandleControlSeekClampsToLastFrame(t *testing.T) {
	key := testKey()
	sess := loadedFixtureSession(key, 4)
	fc := &fakeConn{}
	d := New(fc, nil, key)

	msg, err := json.Marshal(map[string]any{"action": "seek", "frame": 999})
	require.NoError(t, err)
	d.handleControl(msg, sess)

	require.Equal(t, float64(3), d.frameIndex)
}

func TestHandleControlPlayAndPause(t *testing.T) {
	key := testKey()
	sess := loadedFixtureSession(key, 10)
	fc := &fakeConn{}
	d := New(fc, nil, key)

	play, err := json.Marshal(map[string]any{"action": "play", "speed": 2.0})
	require.NoError(t, err)
	d.handleControl(play, sess)
	require.True(t, d.isPlaying)
	require.Equal(t, 2.0, d.playbackSpeed)

	pause, err := json.Marshal(map[string]any{"action": "pause"})
	require.NoError(t, err)
	d.handleControl(pause, sess)
	require.False(t, d.isPlaying)
}

func TestHandleControlMalformedMessageIsIgnored(t *testing.T) {
	key := testKey()
	sess := loadedFixtureSession(key, 10)
	fc := &fakeConn{}
	d := New(fc, nil, key)
	d.isPlaying = true
	d.playbackSpeed = 1.0

	bad, err := json.Marshal(map[string]any{"action": "play", "speed": -5.0})
	require.NoError(t, err)
	d.handleControl(bad, sess)

	require.True(t, d.isPlaying)
	require.Equal(t, 1.0, d.playbackSpeed)
}

func TestHandleControlUnknownActionIsIgnored(t *testing.T) {
	key := testKey()
	sess := loadedFixtureSession(key, 10)
	fc := &fakeConn{}
	d := New(fc, nil, key)
	d.frameIndex = 2

	msg, err := json.Marshal(map[string]any{"action": "rewind_to_start"})
	require.NoError(t, err)
	d.handleControl(msg, sess)

	require.Equal(t, float64(2), d.frameIndex)
}
