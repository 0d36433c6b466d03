package frame

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// Encode serializes a single Frame into a compact little-endian binary
// layout: T as an IEEE-754 64-bit float, the other float fields in 32-bit
// form, small integers for positions/laps, and a presence byte before each
// nullable float. Fields are written in a fixed order with no field names
// or type tags, so the message is not self-describing: Decode depends on
// that order. Driver codes are written in sorted order so that
// Encode is deterministic (useful for round-trip tests and for the
// Cache Layer's on-disk blob, which is a plain concatenation of encoded
// frames).
func Encode(f Frame) []byte {
	var buf bytes.Buffer

	var tb [8]byte
	binary.LittleEndian.PutUint64(tb[:], math.Float64bits(f.T))
	buf.Write(tb[:])
	putUint16(&buf, uint16(clampUint16(f.Lap)))
	buf.WriteByte(byte(f.TrackStatus))

	codes := make([]string, 0, len(f.Drivers))
	for code := range f.Drivers {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	putUint16(&buf, uint16(len(codes)))
	for _, code := range codes {
		d := f.Drivers[code]
		putString(&buf, code)
		putFloat32(&buf, d.X)
		putFloat32(&buf, d.Y)
		putFloat32(&buf, d.Speed)
		putFloat32(&buf, d.Dist)
		putUint16(&buf, uint16(clampUint16(d.Position)))
		putUint16(&buf, uint16(clampUint16(d.PosRaw)))
		putOptionalFloat(&buf, d.GapToLeader)
		putOptionalFloat(&buf, d.IntervalSmooth)
		putUint16(&buf, uint16(clampUint16(d.Lap)))
		buf.WriteByte(byte(d.Status))
		putUint16(&buf, uint16(clampUint16(d.PitCount)))
		putUint16(&buf, uint16(clampUint16(d.LastPitLap)))
	}

	return buf.Bytes()
}

// Decode parses a single frame previously produced by Encode.
func Decode(data []byte) (Frame, error) {
	r := bytes.NewReader(data)
	var f Frame

	var tb [8]byte
	if _, err := r.Read(tb[:]); err != nil {
		return f, fmt.Errorf("decode frame: read t: %w", err)
	}
	f.T = math.Float64frombits(binary.LittleEndian.Uint64(tb[:]))

	lap, err := getUint16(r)
	if err != nil {
		return f, fmt.Errorf("decode frame: read lap: %w", err)
	}
	f.Lap = int(lap)

	statusByte, err := r.ReadByte()
	if err != nil {
		return f, fmt.Errorf("decode frame: read track_status: %w", err)
	}
	f.TrackStatus = TrackStatus(statusByte)

	n, err := getUint16(r)
	if err != nil {
		return f, fmt.Errorf("decode frame: read driver count: %w", err)
	}

	f.Drivers = make(map[string]DriverSample, n)
	for i := uint16(0); i < n; i++ {
		code, err := getString(r)
		if err != nil {
			return f, fmt.Errorf("decode frame: driver %d: code: %w", i, err)
		}
		var d DriverSample
		if d.X, err = getFloat32(r); err != nil {
			return f, fmt.Errorf("decode frame: driver %s: x: %w", code, err)
		}
		if d.Y, err = getFloat32(r); err != nil {
			return f, fmt.Errorf("decode frame: driver %s: y: %w", code, err)
		}
		if d.Speed, err = getFloat32(r); err != nil {
			return f, fmt.Errorf("decode frame: driver %s: speed: %w", code, err)
		}
		if d.Dist, err = getFloat32(r); err != nil {
			return f, fmt.Errorf("decode frame: driver %s: dist: %w", code, err)
		}
		pos, err := getUint16(r)
		if err != nil {
			return f, fmt.Errorf("decode frame: driver %s: position: %w", code, err)
		}
		d.Position = int(pos)
		posRaw, err := getUint16(r)
		if err != nil {
			return f, fmt.Errorf("decode frame: driver %s: pos_raw: %w", code, err)
		}
		d.PosRaw = int(posRaw)
		if d.GapToLeader, err = getOptionalFloat(r); err != nil {
			return f, fmt.Errorf("decode frame: driver %s: gap: %w", code, err)
		}
		if d.IntervalSmooth, err = getOptionalFloat(r); err != nil {
			return f, fmt.Errorf("decode frame: driver %s: interval: %w", code, err)
		}
		driverLap, err := getUint16(r)
		if err != nil {
			return f, fmt.Errorf("decode frame: driver %s: lap: %w", code, err)
		}
		d.Lap = int(driverLap)
		statusByte, err := r.ReadByte()
		if err != nil {
			return f, fmt.Errorf("decode frame: driver %s: status: %w", code, err)
		}
		d.Status = DriverStatus(statusByte)
		pitCount, err := getUint16(r)
		if err != nil {
			return f, fmt.Errorf("decode frame: driver %s: pit_count: %w", code, err)
		}
		d.PitCount = int(pitCount)
		lastPit, err := getUint16(r)
		if err != nil {
			return f, fmt.Errorf("decode frame: driver %s: last_pit_lap: %w", code, err)
		}
		d.LastPitLap = int(lastPit)

		f.Drivers[code] = d
	}

	return f, nil
}

func clampUint16(v int) int {
	if v < 0 {
		return 0
	}
	if v > math.MaxUint16 {
		return math.MaxUint16
	}
	return v
}

func putFloat32(buf *bytes.Buffer, v float32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
	buf.Write(b[:])
}

func getFloat32(r *bytes.Reader) (float32, error) {
	var b [4]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b[:])), nil
}

func putUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func getUint16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func putString(buf *bytes.Buffer, s string) {
	buf.WriteByte(byte(len(s)))
	buf.WriteString(s)
}

func getString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil {
		return "", err
	}
	return string(b), nil
}

// putOptionalFloat writes a presence byte (1=present, 0=null) followed by
// the float32 value when present, preserving the spec's "Null is
// preserved" requirement for gap/interval fields.
func putOptionalFloat(buf *bytes.Buffer, v *float64) {
	if v == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	putFloat32(buf, float32(*v))
}

func getOptionalFloat(r *bytes.Reader) (*float64, error) {
	present, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	v, err := getFloat32(r)
	if err != nil {
		return nil, err
	}
	f := float64(v)
	return &f, nil
}
