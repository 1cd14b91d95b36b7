// Package frame defines the per-tick input to the attention pipeline and the
// sources that produce it.
//
// A Frame carries whatever the external detector produced for one camera
// frame: a face-presence flag with an optional bounding box, and optionally a
// normalised 478-point face mesh (MediaPipe FaceMesh layout with refined iris
// points). Sources never interpret the data; the pipeline stages do.
package frame

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by Next once a source has no more frames.
var ErrClosed = errors.New("frame: source closed")

// Point is a normalised landmark (0-1 in x and y, z relative depth).
type Point struct {
	X, Y, Z float64
}

// Box is a face bounding box, normalised 0-1.
type Box struct {
	X, Y, W, H float64
}

// Center returns the center point of the box.
func (b Box) Center() (x, y float64) {
	return b.X + b.W/2, b.Y + b.H/2
}

// Area returns the area of the box.
func (b Box) Area() float64 {
	return b.W * b.H
}

// Frame is one frame-equivalent of detector output.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int

	// Detected is the raw face-presence reading for this frame.
	Detected bool
	Box      *Box

	// Mesh is empty when no landmarks were produced.
	Mesh []Point
}

// HasMesh reports whether the frame carries a full face mesh.
func (f Frame) HasMesh() bool {
	return len(f.Mesh) >= MeshSize
}

// Source produces frames. Next blocks until a frame is available, the source
// fails, or ctx is done.
type Source interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}
