package dispatch

import (
	"encoding/json"
	"fmt"
	"math"
)

// controlMessage is the client->server control channel shape (spec.md
// §6): newline-free JSON objects with a small recognized action set.
// Unknown actions are ignored; malformed messages are a ProtocolError
// (logged and discarded, per spec.md §7) rather than fatal.
type controlMessage struct {
	Action string   `json:"action"`
	Speed  *float64 `json:"speed"`
	Frame  *float64 `json:"frame"`
}

const (
	actionPlay  = "play"
	actionPause = "pause"
	actionSeek  = "seek"
)

// parseControl decodes and validates one control message. Validation
// resolves two of SPEC_FULL.md §9's open questions at parse time: a
// negative playback speed is rejected here (the caller should log and
// discard rather than apply state), and a fractional seek target
// (`{"action":"seek","frame":3.5}`) is coerced to an integer via floor
// here, matching the original's `frame_index = float(data.get("frame",0))`
// — the caller still clamps the floored value against maxFrame once the
// session's frame count is known. parseControl only rejects a negative
// seek frame, which is unambiguous regardless of sequence length.
func parseControl(data []byte) (controlMessage, error) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return controlMessage{}, fmt.Errorf("malformed control message: %w", err)
	}

	switch msg.Action {
	case actionPlay:
		if msg.Speed == nil {
			one := 1.0
			msg.Speed = &one
		}
		if *msg.Speed <= 0 {
			return controlMessage{}, fmt.Errorf("play speed must be > 0, got %v", *msg.Speed)
		}
	case actionPause:
		// no fields to validate
	case actionSeek:
		if msg.Frame == nil {
			return controlMessage{}, fmt.Errorf("seek requires a frame field")
		}
		if *msg.Frame < 0 {
			return controlMessage{}, fmt.Errorf("seek frame must be >= 0, got %v", *msg.Frame)
		}
		floored := math.Floor(*msg.Frame)
		msg.Frame = &floored
	default:
		// Unknown action: not an error, just nothing this dispatcher acts on.
	}
	return msg, nil
}
