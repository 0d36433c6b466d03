package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/banshee-data/raceplay.report/internal/frame"
	"github.com/banshee-data/raceplay.report/internal/session"
)

// diskHeader is the JSON sidecar written alongside the frame blob,
// mirroring internal/lidar/recorder/recorder.go's LogHeader: everything
// about a cached Session except the lifecycle flags (spec.md §4.6: "a
// serialized form of the payload... excluding lifecycle flags") and
// except the frames themselves, which live in the length-prefixed blob.
type diskHeader struct {
	Version        string                     `json:"version"`
	TotalLaps      int                        `json:"total_laps"`
	TrackGeometry  []session.Point            `json:"track_geometry"`
	DriverColors   map[string]session.RGB     `json:"driver_colors"`
	DriverNumbers  map[string]int             `json:"driver_numbers"`
	DriverTeams    map[string]string          `json:"driver_teams"`
	TrackStatuses  []session.StatusTransition `json:"track_statuses"`
	RaceStartEpoch int64                      `json:"race_start_epoch"`
	PositionOK     bool                       `json:"position_coverage_ok"`
	FrameCount     int                        `json:"frame_count"`
}

const diskHeaderVersion = "1.0"

// Entry is what the sqlite index remembers about one cached session: the
// header and frames paths, the frames checksum and byte size. Build
// duration is not recorded.
type Entry struct {
	HeaderPath string
	FramesPath string
	Checksum   string // sha256 of the frames blob, hex-encoded
	Size       int64  // bytes of the frames blob
}

// writeSessionToDisk serializes sess to the header+frames pair under dir
// and returns the Entry describing what was written.
func writeSessionToDisk(dir string, key session.Key, sess *session.Session) (Entry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("create cache dir: %w", err)
	}

	hdr := diskHeader{
		Version:        diskHeaderVersion,
		TotalLaps:      sess.TotalLaps,
		TrackGeometry:  sess.TrackGeometry,
		DriverColors:   sess.DriverColors,
		DriverNumbers:  sess.DriverNumbers,
		DriverTeams:    sess.DriverTeams,
		TrackStatuses:  sess.TrackStatuses,
		RaceStartEpoch: sess.RaceStartEpoch,
		PositionOK:     sess.PositionCoverageOK,
		FrameCount:     len(sess.Frames),
	}
	hdrData, err := json.MarshalIndent(hdr, "", "  ")
	if err != nil {
		return Entry{}, fmt.Errorf("marshal header: %w", err)
	}

	hp := headerPath(dir, key)
	fp := framesPath(dir, key)

	// Write the frames blob to a temp file first and rename into place so
	// a reader never observes a partially-written file at the final path.
	tmp := fp + ".tmp"
	blob, err := encodeFrames(sess.Frames)
	if err != nil {
		return Entry{}, fmt.Errorf("encode frames: %w", err)
	}
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return Entry{}, fmt.Errorf("write frames blob: %w", err)
	}
	if err := os.Rename(tmp, fp); err != nil {
		os.Remove(tmp)
		return Entry{}, fmt.Errorf("finalize frames blob: %w", err)
	}

	if err := os.WriteFile(hp, hdrData, 0o644); err != nil {
		return Entry{}, fmt.Errorf("write header: %w", err)
	}

	sum := sha256.Sum256(blob)
	return Entry{
		HeaderPath: hp,
		FramesPath: fp,
		Checksum:   hex.EncodeToString(sum[:]),
		Size:       int64(len(blob)),
	}, nil
}

// readSessionFromDisk reconstructs a Session from the header+frames pair
// described by entry, verifying the frames blob's checksum and size
// against what the index recorded before trusting its contents.
func readSessionFromDisk(dir string, key session.Key, entry Entry) (*session.Session, error) {
	hdrData, err := os.ReadFile(entry.HeaderPath)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	var hdr diskHeader
	if err := json.Unmarshal(hdrData, &hdr); err != nil {
		return nil, fmt.Errorf("unmarshal header: %w", err)
	}

	blob, err := os.ReadFile(entry.FramesPath)
	if err != nil {
		return nil, fmt.Errorf("read frames blob: %w", err)
	}
	if int64(len(blob)) != entry.Size {
		return nil, fmt.Errorf("frames blob size mismatch: index says %d, file has %d", entry.Size, len(blob))
	}
	sum := sha256.Sum256(blob)
	if hex.EncodeToString(sum[:]) != entry.Checksum {
		return nil, fmt.Errorf("frames blob checksum mismatch")
	}

	frames, err := decodeFrames(blob, hdr.FrameCount)
	if err != nil {
		return nil, fmt.Errorf("decode frames: %w", err)
	}

	sess := session.NewSession(key)
	sess.Frames = frames
	sess.TotalLaps = hdr.TotalLaps
	sess.TrackGeometry = hdr.TrackGeometry
	sess.DriverColors = hdr.DriverColors
	sess.DriverNumbers = hdr.DriverNumbers
	sess.DriverTeams = hdr.DriverTeams
	sess.TrackStatuses = hdr.TrackStatuses
	sess.RaceStartEpoch = hdr.RaceStartEpoch
	sess.PositionCoverageOK = hdr.PositionOK
	sess.MarkLoaded()
	return sess, nil
}

func deleteFromDisk(dir string, key session.Key) error {
	hp := headerPath(dir, key)
	fp := framesPath(dir, key)
	if err := os.Remove(hp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove header: %w", err)
	}
	if err := os.Remove(fp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove frames blob: %w", err)
	}
	return nil
}

// encodeFrames concatenates each frame's codec encoding behind a uint32
// little-endian length prefix, the same length-prefixed-record shape
// internal/lidar/recorder/recorder.go uses for its chunk files.
func encodeFrames(frames []frame.Frame) ([]byte, error) {
	var out []byte
	var lenBuf [4]byte
	for _, f := range frames {
		data := frame.Encode(f)
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
		out = append(out, lenBuf[:]...)
		out = append(out, data...)
	}
	return out, nil
}

func decodeFrames(blob []byte, expectedCount int) ([]frame.Frame, error) {
	frames := make([]frame.Frame, 0, expectedCount)
	for off := 0; off < len(blob); {
		if off+4 > len(blob) {
			return nil, fmt.Errorf("truncated length prefix at offset %d", off)
		}
		n := binary.LittleEndian.Uint32(blob[off : off+4])
		off += 4
		if off+int(n) > len(blob) {
			return nil, fmt.Errorf("truncated frame payload at offset %d", off)
		}
		f, err := frame.Decode(blob[off : off+int(n)])
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", len(frames), err)
		}
		frames = append(frames, f)
		off += int(n)
	}
	return frames, nil
}
