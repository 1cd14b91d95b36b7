// Package headpose estimates head orientation from six facial landmarks and
// classifies it against a calibrated baseline.
package headpose

import (
	"math"
	"time"

	"github.com/teslashibe/go-focus/internal/log"
)

// Label is the head pose classification.
type Label string

const (
	Attentive  Label = "ATTENTIVE"
	Distracted Label = "DISTRACTED"
	NoFace     Label = "NO_FACE"
)

// Config holds the pose thresholds in degrees.
type Config struct {
	YawThreshold   float64
	PitchThreshold float64
}

// DefaultConfig returns the empirically chosen thresholds.
func DefaultConfig() Config {
	return Config{
		YawThreshold:   20,
		PitchThreshold: 20,
	}
}

// Baseline is the reference orientation poses are compared against.
type Baseline struct {
	Yaw0, Pitch0 float64
	set          bool
}

// IsSet reports whether a baseline has been captured.
func (b Baseline) IsSet() bool { return b.set }

// Reading is the result of one Update.
type Reading struct {
	Label Label
	Pose  Pose

	// DeltaYaw and DeltaPitch are the offsets from the baseline.
	DeltaYaw, DeltaPitch float64

	// Calibrated is true when this update captured a new baseline.
	Calibrated bool
}

// Estimator owns a pose baseline. Not safe for concurrent use.
type Estimator struct {
	config   Config
	baseline Baseline
	last     time.Time
}

// New creates an estimator with no baseline.
func New(config Config) *Estimator {
	return &Estimator{config: config}
}

// Update solves the pose for pts in a width×height frame. When calibrate is
// set the solved pose becomes the baseline. Without any baseline the first
// solved pose is adopted.
func (e *Estimator) Update(pts Points, width, height int, now time.Time, calibrate bool) Reading {
	if len(pts) == 0 {
		return Reading{Label: NoFace}
	}
	pose, err := Solve(pts, width, height)
	if err != nil {
		log.Debug("head pose solve failed", "error", err)
		return Reading{Label: NoFace}
	}
	e.last = now

	r := Reading{Pose: pose}
	if calibrate || !e.baseline.set {
		e.baseline = Baseline{Yaw0: pose.Yaw, Pitch0: pose.Pitch, set: true}
		r.Calibrated = calibrate
		log.Info("head pose baseline set", "yaw", round1(pose.Yaw), "pitch", round1(pose.Pitch), "explicit", calibrate)
	}

	r.DeltaYaw = pose.Yaw - e.baseline.Yaw0
	r.DeltaPitch = pose.Pitch - e.baseline.Pitch0
	r.Label = e.classify(r.DeltaYaw, r.DeltaPitch)
	return r
}

func (e *Estimator) classify(dYaw, dPitch float64) Label {
	if math.Abs(dYaw) < e.config.YawThreshold && math.Abs(dPitch) < e.config.PitchThreshold {
		return Attentive
	}
	return Distracted
}

// Baseline returns the current baseline.
func (e *Estimator) Baseline() Baseline {
	return e.baseline
}

// SetBaseline installs a baseline directly.
func (e *Estimator) SetBaseline(yaw0, pitch0 float64) {
	e.baseline = Baseline{Yaw0: yaw0, Pitch0: pitch0, set: true}
}

// LastSolved returns the time of the last successful solve.
func (e *Estimator) LastSolved() time.Time {
	return e.last
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
