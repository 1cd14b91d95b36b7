package headpose

import (
	"errors"
	"math"
)

// ErrDegenerate is returned when the correspondences cannot constrain a pose.
var ErrDegenerate = errors.New("headpose: degenerate correspondences")

const (
	maxIterations  = 100
	convergenceEps = 1e-9
)

// Pose is a head orientation in degrees. Yaw is rotation about the vertical
// axis, pitch about the horizontal axis, roll about the optical axis.
type Pose struct {
	Yaw, Pitch, Roll float64
}

type vec3 [3]float64

func (a vec3) dot(b vec3) float64 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

func (a vec3) cross(b vec3) vec3 {
	return vec3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func (a vec3) norm() float64 { return math.Sqrt(a.dot(a)) }

func (a vec3) scale(s float64) vec3 { return vec3{a[0] * s, a[1] * s, a[2] * s} }

// Solve recovers the head pose from 2-D image points matching the face model.
// The camera is a pinhole with focal length equal to the frame width, the
// principal point at the frame centre and no lens distortion.
//
// The pose is found with POSIT: a scaled-orthographic estimate refined until
// the perspective correction terms stop changing.
func Solve(pts Points, width, height int) (Pose, error) {
	if width <= 0 || height <= 0 {
		return Pose{}, ErrDegenerate
	}
	model := faceModel()
	if len(pts) != len(model) {
		return Pose{}, ErrDegenerate
	}

	focal := float64(width)
	cx, cy := float64(width)/2, float64(height)/2

	n := len(model)
	x := make([]float64, n)
	y := make([]float64, n)
	for i, p := range pts {
		x[i] = p.X - cx
		y[i] = p.Y - cy
	}

	// Object vectors relative to the reference point (nose tip).
	obj := make([]vec3, n-1)
	for i := 1; i < n; i++ {
		obj[i-1] = vec3{model[i][0] - model[0][0], model[i][1] - model[0][1], model[i][2] - model[0][2]}
	}
	pinv, ok := pseudoInverse(obj)
	if !ok {
		return Pose{}, ErrDegenerate
	}

	eps := make([]float64, n-1)
	var r1, r2, r3 vec3
	for iter := 0; iter < maxIterations; iter++ {
		var I, J vec3
		for k := 0; k < 3; k++ {
			for i := 0; i < n-1; i++ {
				I[k] += pinv[k][i] * (x[i+1]*(1+eps[i]) - x[0])
				J[k] += pinv[k][i] * (y[i+1]*(1+eps[i]) - y[0])
			}
		}

		s1, s2 := I.norm(), J.norm()
		if s1 < 1e-12 || s2 < 1e-12 {
			return Pose{}, ErrDegenerate
		}
		r1 = I.scale(1 / s1)
		r2 = J.scale(1 / s2)
		r3 = r1.cross(r2)
		l := r3.norm()
		if l < 1e-12 {
			return Pose{}, ErrDegenerate
		}
		r3 = r3.scale(1 / l)

		s := (s1 + s2) / 2
		tz := focal / s

		delta := 0.0
		for i := range eps {
			next := obj[i].dot(r3) / tz
			delta = math.Max(delta, math.Abs(next-eps[i]))
			eps[i] = next
		}
		if delta < convergenceEps {
			break
		}
	}

	// Re-orthogonalise: keep the first row, rebuild the second from the third.
	r2 = r3.cross(r1)

	pose := decompose(r1, r2, r3)
	if math.IsNaN(pose.Yaw) || math.IsNaN(pose.Pitch) || math.IsNaN(pose.Roll) {
		return Pose{}, ErrDegenerate
	}
	return pose, nil
}

// decompose extracts Euler angles from a rotation R = Rz(roll)·Ry(yaw)·Rx(pitch)
// given as its three rows.
func decompose(r1, r2, r3 vec3) Pose {
	pitch := math.Atan2(r3[1], r3[2])
	yaw := math.Atan2(-r3[0], math.Hypot(r3[1], r3[2]))
	roll := math.Atan2(r2[0], r1[0])
	return Pose{
		Yaw:   Degrees(yaw),
		Pitch: Degrees(pitch),
		Roll:  Degrees(roll),
	}
}

// pseudoInverse returns (AᵀA)⁻¹Aᵀ for an m×3 matrix given as rows. It fails
// when the rows do not span 3-D space (coplanar model points).
func pseudoInverse(rows []vec3) ([3][]float64, bool) {
	var out [3][]float64
	if len(rows) < 3 {
		return out, false
	}

	var ata [3][3]float64
	for _, r := range rows {
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				ata[i][j] += r[i] * r[j]
			}
		}
	}

	inv, ok := invert3(ata)
	if !ok {
		return out, false
	}

	for k := 0; k < 3; k++ {
		out[k] = make([]float64, len(rows))
		for i, r := range rows {
			out[k][i] = inv[k][0]*r[0] + inv[k][1]*r[1] + inv[k][2]*r[2]
		}
	}
	return out, true
}

func invert3(m [3][3]float64) ([3][3]float64, bool) {
	var inv [3][3]float64
	det := m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
	if math.Abs(det) < 1e-9 {
		return inv, false
	}

	inv[0][0] = (m[1][1]*m[2][2] - m[1][2]*m[2][1]) / det
	inv[0][1] = (m[0][2]*m[2][1] - m[0][1]*m[2][2]) / det
	inv[0][2] = (m[0][1]*m[1][2] - m[0][2]*m[1][1]) / det
	inv[1][0] = (m[1][2]*m[2][0] - m[1][0]*m[2][2]) / det
	inv[1][1] = (m[0][0]*m[2][2] - m[0][2]*m[2][0]) / det
	inv[1][2] = (m[0][2]*m[1][0] - m[0][0]*m[1][2]) / det
	inv[2][0] = (m[1][0]*m[2][1] - m[1][1]*m[2][0]) / det
	inv[2][1] = (m[0][1]*m[2][0] - m[0][0]*m[2][1]) / det
	inv[2][2] = (m[0][0]*m[1][1] - m[0][1]*m[1][0]) / det
	return inv, true
}
