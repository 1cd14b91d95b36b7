package frame

import (
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"testing"
	"time"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		detected bool
		box      bool
		mesh     int
		wantErr  bool
	}{
		{"presence only", `{"seq":3,"ts":1700000000.25,"width":640,"height":480,"detected":true,"box":[0.3,0.2,0.4,0.5]}`, true, true, 0, false},
		{"no face", `{"seq":4,"ts":1700000000.5,"width":640,"height":480,"detected":false}`, false, false, 0, false},
		{"implicit detection", `{"ts":1700000000.5,"width":640,"height":480,"landmarks":[[0.5,0.5,0.01],[0.4,0.6]]}`, true, false, 2, false},
		{"detector error", `{"ts":1700000000.5,"error":"camera unplugged"}`, false, false, 0, true},
		{"short landmark", `{"ts":1700000000.5,"landmarks":[[0.5]]}`, false, false, 0, true},
		{"not json", `hello`, false, false, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseLine([]byte(tt.line))
			if tt.wantErr {
				if err == nil {
					t.Fatal("ParseLine() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLine() error = %v", err)
			}
			if f.Detected != tt.detected {
				t.Errorf("Detected = %v, want %v", f.Detected, tt.detected)
			}
			if (f.Box != nil) != tt.box {
				t.Errorf("Box = %v, want present=%v", f.Box, tt.box)
			}
			if len(f.Mesh) != tt.mesh {
				t.Errorf("len(Mesh) = %d, want %d", len(f.Mesh), tt.mesh)
			}
		})
	}
}

func TestParseLineTimestamp(t *testing.T) {
	f, err := ParseLine([]byte(`{"ts":1700000000.25,"width":640,"height":480}`))
	if err != nil {
		t.Fatal(err)
	}
	want := time.Unix(1700000000, 250_000_000)
	if !f.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", f.Timestamp, want)
	}
}

func TestParseLineWithoutTimestamp(t *testing.T) {
	for _, line := range []string{
		`{"width":640,"height":480,"detected":true}`,
		`{"ts":0,"width":640,"height":480,"detected":true}`,
	} {
		f, err := ParseLine([]byte(line))
		if err != nil {
			t.Fatal(err)
		}
		if !f.Timestamp.IsZero() {
			t.Errorf("%s: Timestamp = %v, want zero", line, f.Timestamp)
		}
	}
}

func TestRecordRoundTrip(t *testing.T) {
	in := Frame{
		Seq:       7,
		Timestamp: time.Unix(1700000000, 500_000_000),
		Width:     640,
		Height:    480,
		Detected:  true,
		Box:       &Box{X: 0.1, Y: 0.2, W: 0.3, H: 0.4},
		Mesh:      []Point{{X: 0.5, Y: 0.5, Z: -0.1}},
	}
	out, err := NewRecord(in).Frame()
	if err != nil {
		t.Fatal(err)
	}
	if out.Seq != in.Seq || !out.Detected || *out.Box != *in.Box || out.Mesh[0] != in.Mesh[0] {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
	if d := out.Timestamp.Sub(in.Timestamp); math.Abs(float64(d)) > float64(time.Microsecond) {
		t.Errorf("timestamp drifted by %v", d)
	}
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestReplay(t *testing.T) {
	input := strings.Join([]string{
		`{"ts":1700000000.0,"width":640,"height":480,"detected":true}`,
		``,
		`{"ts":1700000000.1,"width":640,"height":480,"detected":false}`,
	}, "\n")
	src := &closeTracker{Reader: strings.NewReader(input)}
	r := NewReplay(src)
	ctx := context.Background()

	f1, err := r.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	f2, err := r.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if f1.Seq != 1 || f2.Seq != 2 {
		t.Errorf("seq = %d, %d, want 1, 2", f1.Seq, f2.Seq)
	}
	if !f1.Detected || f2.Detected {
		t.Errorf("detected = %v, %v, want true, false", f1.Detected, f2.Detected)
	}
	if _, err := r.Next(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Next() at end error = %v, want ErrClosed", err)
	}
	r.Close()
	if !src.closed {
		t.Error("Close should close the underlying reader")
	}
}

func TestReplayBadLine(t *testing.T) {
	r := NewReplay(strings.NewReader("{bad\n"))
	if _, err := r.Next(context.Background()); err == nil || errors.Is(err, ErrClosed) {
		t.Errorf("Next() error = %v, want parse error", err)
	}
}

func TestStatic(t *testing.T) {
	s := NewStatic(Frame{Seq: 1}, Frame{Seq: 2})
	ctx := context.Background()

	for _, want := range []uint64{1, 2} {
		f, err := s.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if f.Seq != want {
			t.Errorf("Seq = %d, want %d", f.Seq, want)
		}
	}
	if _, err := s.Next(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Next() error = %v, want ErrClosed", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := NewStatic(Frame{}).Next(cancelled); !errors.Is(err, context.Canceled) {
		t.Errorf("Next() with cancelled ctx error = %v", err)
	}
}

func TestHasMesh(t *testing.T) {
	if (Frame{Mesh: make([]Point, 468)}).HasMesh() {
		t.Error("468 points lacks the iris landmarks")
	}
	if !(Frame{Mesh: make([]Point, MeshSize)}).HasMesh() {
		t.Error("full mesh should report HasMesh")
	}
}

func TestBox(t *testing.T) {
	b := Box{X: 0.2, Y: 0.4, W: 0.2, H: 0.4}
	x, y := b.Center()
	if math.Abs(x-0.3) > 1e-9 || math.Abs(y-0.6) > 1e-9 {
		t.Errorf("Center() = %v, %v", x, y)
	}
	if math.Abs(b.Area()-0.08) > 1e-9 {
		t.Errorf("Area() = %v", b.Area())
	}
}
