package frame

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"
)

// Record is the JSON-lines wire form of a Frame, shared by the replay source
// and the landmark worker protocol.
//
//	{"seq":1,"ts":1700000000.25,"width":640,"height":480,"detected":true,
//	 "box":[0.3,0.2,0.4,0.5],"landmarks":[[0.51,0.48,-0.02], ...]}
type Record struct {
	Seq       uint64      `json:"seq"`
	TS        float64     `json:"ts"`
	Width     int         `json:"width"`
	Height    int         `json:"height"`
	Detected  *bool       `json:"detected,omitempty"`
	Box       []float64   `json:"box,omitempty"`
	Landmarks [][]float64 `json:"landmarks,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// Frame converts the record. Detected defaults to whether landmarks are
// present.
func (r Record) Frame() (Frame, error) {
	if r.Error != "" {
		return Frame{}, fmt.Errorf("frame: detector error: %s", r.Error)
	}
	f := Frame{
		Seq:    r.Seq,
		Width:  r.Width,
		Height: r.Height,
	}
	// A missing ts leaves Timestamp zero so consumers stamp the frame
	// themselves.
	if r.TS > 0 {
		sec, frac := math.Modf(r.TS)
		f.Timestamp = time.Unix(int64(sec), int64(math.Round(frac*1e9)))
	}

	if len(r.Box) == 4 {
		f.Box = &Box{X: r.Box[0], Y: r.Box[1], W: r.Box[2], H: r.Box[3]}
	}

	if len(r.Landmarks) > 0 {
		f.Mesh = make([]Point, len(r.Landmarks))
		for i, lm := range r.Landmarks {
			if len(lm) < 2 {
				return Frame{}, fmt.Errorf("frame: landmark %d has %d coordinates", i, len(lm))
			}
			f.Mesh[i] = Point{X: lm[0], Y: lm[1]}
			if len(lm) > 2 {
				f.Mesh[i].Z = lm[2]
			}
		}
	}

	if r.Detected != nil {
		f.Detected = *r.Detected
	} else {
		f.Detected = len(f.Mesh) > 0 || f.Box != nil
	}
	return f, nil
}

// NewRecord converts a frame to its wire form.
func NewRecord(f Frame) Record {
	detected := f.Detected
	r := Record{
		Seq:      f.Seq,
		TS:       float64(f.Timestamp.UnixNano()) / 1e9,
		Width:    f.Width,
		Height:   f.Height,
		Detected: &detected,
	}
	if f.Box != nil {
		r.Box = []float64{f.Box.X, f.Box.Y, f.Box.W, f.Box.H}
	}
	for _, p := range f.Mesh {
		r.Landmarks = append(r.Landmarks, []float64{p.X, p.Y, p.Z})
	}
	return r
}

// ParseLine decodes one JSON line into a Frame.
func ParseLine(line []byte) (Frame, error) {
	var r Record
	if err := json.Unmarshal(line, &r); err != nil {
		return Frame{}, fmt.Errorf("frame: parse record: %w", err)
	}
	return r.Frame()
}

// Replay reads recorded frames from JSON lines. Blank lines are skipped.
type Replay struct {
	scanner *bufio.Scanner
	closer  io.Closer
	seq     uint64
}

// NewReplay creates a replay source over r. If r is an io.Closer it is
// closed by Close.
func NewReplay(r io.Reader) *Replay {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	rp := &Replay{scanner: s}
	if c, ok := r.(io.Closer); ok {
		rp.closer = c
	}
	return rp
}

// Next returns the next recorded frame or ErrClosed at end of input.
func (r *Replay) Next(ctx context.Context) (Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return Frame{}, fmt.Errorf("frame: replay read: %w", err)
			}
			return Frame{}, ErrClosed
		}
		line := r.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		f, err := ParseLine(line)
		if err != nil {
			return Frame{}, err
		}
		r.seq++
		if f.Seq == 0 {
			f.Seq = r.seq
		}
		return f, nil
	}
}

// Close releases the underlying reader.
func (r *Replay) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// Static replays a fixed slice of frames, for tests and demos.
type Static struct {
	frames []Frame
	pos    int
}

// NewStatic creates a source that yields frames in order, then ErrClosed.
func NewStatic(frames ...Frame) *Static {
	return &Static{frames: frames}
}

// Next returns the next frame.
func (s *Static) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.pos >= len(s.frames) {
		return Frame{}, ErrClosed
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

// Close is a no-op.
func (s *Static) Close() error { return nil }
