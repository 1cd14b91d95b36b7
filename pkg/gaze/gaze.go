// Package gaze scores how far the irises sit down inside the eye openings and
// classifies that against a calibrated reference.
//
// The score for one eye is the iris centre's distance below the upper eyelid
// divided by the eye opening height. Looking down drops the upper lid onto
// the iris, so the score falls below the calibrated value; a calibrated
// difference below Threshold means the eyes have left the reference gaze.
package gaze

import (
	"errors"
	"math"
	"time"

	"github.com/teslashibe/go-focus/internal/log"
	"github.com/teslashibe/go-focus/pkg/frame"
)

// ErrNoScore is returned when an eye cannot be scored this tick.
var ErrNoScore = errors.New("gaze: eye height is zero")

// Label is the gaze classification.
type Label string

const (
	Attentive     Label = "ATTENTIVE"
	Distracted    Label = "DISTRACTED"
	NotCalibrated Label = "NOT_CALIBRATED"
	NoScore       Label = "NO_SCORE"
)

// Config holds the gaze threshold.
type Config struct {
	// Threshold is the calibrated score below which gaze is DISTRACTED.
	Threshold float64
}

// DefaultConfig returns the empirically chosen threshold.
func DefaultConfig() Config {
	return Config{Threshold: -0.18}
}

// Eye is one eye's vertical landmarks in pixels.
type Eye struct {
	LidTop    float64
	LidBottom float64
	Iris      float64
}

// Score returns the normalised iris offset for the eye.
func (e Eye) Score() (float64, error) {
	height := e.LidBottom - e.LidTop
	if height <= 0 {
		return 0, ErrNoScore
	}
	return (e.Iris - e.LidTop) / height, nil
}

// Eyes holds both eyes, image-left first.
type Eyes struct {
	Left, Right Eye
}

// Score returns the average of both eye scores.
func (e Eyes) Score() (float64, error) {
	l, err := e.Left.Score()
	if err != nil {
		return 0, err
	}
	r, err := e.Right.Score()
	if err != nil {
		return 0, err
	}
	return (l + r) / 2, nil
}

// EyesFromMesh extracts the eyelid and iris landmarks from a normalised face
// mesh, denormalising y by the frame height. It reports false when the mesh
// lacks the refined iris points.
func EyesFromMesh(mesh []frame.Point, height int) (Eyes, bool) {
	if len(mesh) < frame.MeshSize {
		return Eyes{}, false
	}
	h := float64(height)
	return Eyes{
		Left: Eye{
			LidTop:    mesh[frame.MeshLeftEyeLidTop].Y * h,
			LidBottom: mesh[frame.MeshLeftEyeLidBottom].Y * h,
			Iris:      mesh[frame.MeshLeftIrisCenter].Y * h,
		},
		Right: Eye{
			LidTop:    mesh[frame.MeshRightEyeLidTop].Y * h,
			LidBottom: mesh[frame.MeshRightEyeLidBottom].Y * h,
			Iris:      mesh[frame.MeshRightIrisCenter].Y * h,
		},
	}, true
}

// Baseline is the reference score captured on calibration.
type Baseline struct {
	RefScore float64
	set      bool
}

// IsSet reports whether a reference has been captured.
func (b Baseline) IsSet() bool { return b.set }

// Reading is the result of one Update.
type Reading struct {
	Label Label

	// Score is the averaged eye score; valid unless Label is NoScore.
	Score float64

	// Calibrated is Score minus the reference, when a reference exists.
	Calibrated float64

	// Captured is true when this update stored a new reference.
	Captured bool

	// Skipped is true when calibration was requested but the eyes could
	// not be scored.
	Skipped bool
}

// Scorer owns the gaze reference. Not safe for concurrent use.
type Scorer struct {
	config   Config
	baseline Baseline
	last     time.Time
}

// New creates a scorer with no reference.
func New(config Config) *Scorer {
	return &Scorer{config: config}
}

// Update scores eyes. When calibrate is set the score becomes the reference.
// Without a reference the result is NOT_CALIBRATED.
func (s *Scorer) Update(eyes Eyes, calibrate bool, now time.Time) Reading {
	score, err := eyes.Score()
	if err != nil {
		r := Reading{Label: NoScore, Skipped: calibrate}
		if !s.baseline.set {
			r.Label = NotCalibrated
		}
		if calibrate {
			log.Warn("gaze calibration skipped", "error", err)
		}
		return r
	}
	s.last = now

	r := Reading{Score: score}
	if calibrate {
		s.baseline = Baseline{RefScore: score, set: true}
		r.Captured = true
		log.Info("gaze reference set", "ref_score", round3(score))
	}
	if !s.baseline.set {
		r.Label = NotCalibrated
		return r
	}

	r.Calibrated = score - s.baseline.RefScore
	if r.Calibrated < s.config.Threshold {
		r.Label = Distracted
	} else {
		r.Label = Attentive
	}
	return r
}

// Baseline returns the current reference.
func (s *Scorer) Baseline() Baseline {
	return s.baseline
}

// SetBaseline installs a reference directly.
func (s *Scorer) SetBaseline(ref float64) {
	s.baseline = Baseline{RefScore: ref, set: true}
}

// LastScored returns the time of the last successful score.
func (s *Scorer) LastScored() time.Time {
	return s.last
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
