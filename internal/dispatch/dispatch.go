// Package dispatch implements the Client Dispatcher (spec.md §4.5): one
// per-connection state machine pacing binary frame messages to a
// websocket client under play/pause/seek control.
//
// Grounded on internal/lidar/visualiser/replay.go's streamFromReader: a
// mutex-guarded paused/rate/seek state plus a read-with-timeout loop
// interleaved with paced sends, reset-on-seek. Here the transport is
// github.com/coder/websocket instead of a gRPC stream, and control reads
// run on a dedicated goroutine feeding a channel rather than a blocking
// read-with-deadline per tick — stronger than spec.md §4.5's "10 ms upper
// bound" wording in that a read in flight never blocks a tick at all.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/coder/websocket"

	"github.com/banshee-data/raceplay.report/internal/errs"
	"github.com/banshee-data/raceplay.report/internal/frame"
	"github.com/banshee-data/raceplay.report/internal/obslog"
	"github.com/banshee-data/raceplay.report/internal/session"
	"github.com/banshee-data/raceplay.report/internal/store"
	"github.com/banshee-data/raceplay.report/internal/timeutil"
)

var log = obslog.For(obslog.ComponentDispatch)

const (
	tickRateHz      = 60.0
	sourceRateHz    = 25.0 // spec.md §4.5: frame_index advances at this rate, scaled by speed
	loadWaitTimeout = 300 * time.Second
)

// conn is the narrow slice of *websocket.Conn the dispatcher needs,
// letting tests substitute a fake without a live socket.
type conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, data []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Dispatcher is one connected client's playback state machine.
type Dispatcher struct {
	conn  conn
	store *store.Store
	key   session.Key
	clock timeutil.Clock

	frameIndex    float64
	playbackSpeed float64
	isPlaying     bool
	lastFrameSent int
}

// New constructs a Dispatcher for one connection, serving key from st.
func New(c conn, st *store.Store, key session.Key) *Dispatcher {
	return &Dispatcher{
		conn:          c,
		store:         st,
		key:           key,
		clock:         timeutil.RealClock{},
		playbackSpeed: 1.0,
		lastFrameSent: -1,
	}
}

// WithClock overrides the dispatcher's clock for deterministic tests.
func (d *Dispatcher) WithClock(clock timeutil.Clock) *Dispatcher {
	d.clock = clock
	return d
}

// Run drives the dispatcher to completion: the load-wait phase (late
// joiners get the full loading_progress -> loading_complete pair, per
// spec.md §6), then the 60 Hz tick loop, until the client disconnects,
// a transport error occurs, or ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	sess, err := d.awaitLoad(ctx)
	if err != nil {
		return err
	}

	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()

	msgCh := make(chan []byte, 8)
	errCh := make(chan error, 1)
	go d.readLoop(readCtx, msgCh, errCh)

	tickPeriod := float64(time.Second) / tickRateHz
	ticker := d.clock.NewTicker(time.Duration(tickPeriod))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case readErr := <-errCh:
			return errs.Transport("read", readErr)
		case data := <-msgCh:
			d.handleControl(data, sess)
		case <-ticker.C():
			if err := d.tick(ctx, sess); err != nil {
				return err
			}
		}
	}
}

// readLoop blocks on conn.Read in its own goroutine so a read in flight
// can never starve the tick loop's frame dispatch. Only text messages
// (control JSON) are forwarded; a read error (including client
// disconnect) is reported once and the loop exits.
func (d *Dispatcher) readLoop(ctx context.Context, msgCh chan<- []byte, errCh chan<- error) {
	for {
		typ, data, err := d.conn.Read(ctx)
		if err != nil {
			select {
			case errCh <- err:
			default:
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		select {
		case msgCh <- data:
		case <-ctx.Done():
			return
		}
	}
}

// handleControl applies one parsed control message to playback state.
// Malformed messages are a ProtocolError: logged and discarded, per
// spec.md §7; the connection is never torn down for a bad message.
func (d *Dispatcher) handleControl(data []byte, sess *session.Session) {
	msg, err := parseControl(data)
	if err != nil {
		log.Warn().Err(errs.Protocol("parse_control", err)).Msg("discarding malformed control message")
		return
	}

	switch msg.Action {
	case actionPlay:
		d.playbackSpeed = *msg.Speed
		d.isPlaying = true
	case actionPause:
		d.isPlaying = false
	case actionSeek:
		maxIdx := len(sess.Frames) - 1
		if maxIdx < 0 {
			maxIdx = 0
		}
		idx := *msg.Frame
		if idx > float64(maxIdx) {
			idx = float64(maxIdx)
		}
		d.frameIndex = idx
		d.lastFrameSent = -1 // forces immediate re-send of the new target frame
	}
}

// tick advances playback state by one 60 Hz tick and sends at most one
// binary frame message, per spec.md §4.5's pacing formula.
func (d *Dispatcher) tick(ctx context.Context, sess *session.Session) error {
	n := len(sess.Frames)
	if n == 0 {
		return nil
	}

	if d.isPlaying {
		d.frameIndex += d.playbackSpeed * (1.0 / tickRateHz) * sourceRateHz
		if d.frameIndex >= float64(n) {
			d.frameIndex = float64(n - 1)
			d.isPlaying = false
		}
	}

	current := int(math.Floor(d.frameIndex))
	if current != d.lastFrameSent && current >= 0 && current < n {
		data := frame.Encode(sess.Frames[current])
		if err := d.conn.Write(ctx, websocket.MessageBinary, data); err != nil {
			return errs.Transport("write_frame", err)
		}
		d.lastFrameSent = current
	}
	return nil
}

// awaitLoad implements the late-joiner rule and the bounded load wait of
// spec.md §5/§6: a client connecting to an already-loaded session gets
// the full loading_progress(100)->loading_complete pair immediately; a
// client connecting mid-load subscribes to progress fan-out and forwards
// each update as a text event until loading_complete or loading_error, or
// until the 300s wait bound is exceeded.
func (d *Dispatcher) awaitLoad(ctx context.Context) (*session.Session, error) {
	sess, ok := d.store.Lookup(d.key)
	if !ok {
		sess = d.store.GetOrCreate(ctx, d.key)
	}

	if sess.IsLoaded() {
		return d.deliverLoadedEvents(ctx, sess)
	}

	updates := make(chan struct{}, 1)
	cb := func(string, int, string) {
		select {
		case updates <- struct{}{}:
		default:
		}
	}
	if id, ok := d.store.RegisterProgressCallback(d.key, cb); ok {
		defer d.store.UnregisterProgressCallback(d.key, id)
	}

	deadline := d.clock.NewTimer(loadWaitTimeout)
	defer deadline.Stop()
	startedAt := d.clock.Now()

	for {
		if sess.IsLoaded() {
			return d.deliverLoadedEvents(ctx, sess)
		}
		if err := d.sendProgress(ctx, sess, startedAt); err != nil {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-updates:
		case <-deadline.C():
			msg := "load wait exceeded 300s"
			_ = d.sendEvent(ctx, loadingErrorEvent{Type: eventLoadingError, Message: msg})
			return nil, errs.Transport("await_load", errors.New(msg))
		}
	}
}

func (d *Dispatcher) deliverLoadedEvents(ctx context.Context, sess *session.Session) (*session.Session, error) {
	if loadErr := sess.LoadError(); loadErr != nil {
		_ = d.sendEvent(ctx, loadingErrorEvent{Type: eventLoadingError, Message: loadErr.Error()})
		return nil, errs.DataQuality("session_load", loadErr)
	}

	if err := d.sendEvent(ctx, loadingProgressEvent{
		Type:     eventLoadingProgress,
		Progress: 100,
		Message:  "complete",
	}); err != nil {
		return nil, err
	}

	err := d.sendEvent(ctx, loadingCompleteEvent{
		Type:     eventLoadingComplete,
		Frames:   len(sess.Frames),
		Metadata: buildMetadata(d.key, sess),
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (d *Dispatcher) sendProgress(ctx context.Context, sess *session.Session, startedAt time.Time) error {
	return d.sendEvent(ctx, loadingProgressEvent{
		Type:           eventLoadingProgress,
		Progress:       sess.Progress(),
		Message:        sess.LoadingStatus(),
		ElapsedSeconds: d.clock.Since(startedAt).Seconds(),
	})
}

func (d *Dispatcher) sendEvent(ctx context.Context, ev any) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := d.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return errs.Transport("write_event", err)
	}
	return nil
}
