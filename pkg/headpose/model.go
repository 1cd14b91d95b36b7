package headpose

import (
	"math"

	"github.com/teslashibe/go-focus/pkg/frame"
)

// Point is a 2-D image position in pixels.
type Point struct {
	X, Y float64
}

// Points holds the six correspondences in model order: nose tip, chin,
// left eye outer corner, right eye outer corner, left mouth corner, right
// mouth corner. "Left" is image-left.
type Points []Point

// Face mesh indices for the six model points, in model order.
var meshIndices = [...]int{
	frame.MeshNoseTip,
	frame.MeshChin,
	frame.MeshLeftEyeOuter,
	frame.MeshRightEyeOuter,
	frame.MeshMouthLeft,
	frame.MeshMouthRight,
}

// faceModel returns the approximate 3-D face in camera-aligned axes
// (x right, y down, z away from the camera), nose tip at the origin.
// Units are arbitrary; only proportions matter.
func faceModel() []vec3 {
	return []vec3{
		{0, 0, 0},         // nose tip
		{0, 330, 65},      // chin
		{-225, -170, 135}, // left eye outer corner
		{225, -170, 135},  // right eye outer corner
		{-150, 150, 125},  // left mouth corner
		{150, 150, 125},   // right mouth corner
	}
}

// PointsFromMesh picks the six model points out of a normalised face mesh and
// converts them to pixels. It reports false when the mesh is too short.
func PointsFromMesh(mesh []frame.Point, width, height int) (Points, bool) {
	pts := make(Points, 0, len(meshIndices))
	for _, idx := range meshIndices {
		if idx >= len(mesh) {
			return nil, false
		}
		p := mesh[idx]
		pts = append(pts, Point{X: p.X * float64(width), Y: p.Y * float64(height)})
	}
	return pts, true
}

// Degrees converts radians to degrees.
func Degrees(radians float64) float64 {
	return radians * 180.0 / math.Pi
}

// Radians converts degrees to radians.
func Radians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}
