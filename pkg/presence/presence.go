// Package presence debounces a noisy per-frame face-detected signal into a
// stable PRESENT/AWAY state.
//
// Leaving the frame must be sustained for PresentToAway before the state
// flips, so short occlusions (a hand over the face, a sneeze) do not count as
// absence. Coming back only needs AwayToPresent, so re-acquisition is quick.
package presence

import (
	"time"

	"github.com/teslashibe/go-focus/internal/log"
)

// State is the committed presence state.
type State string

const (
	Present State = "PRESENT"
	Away    State = "AWAY"
)

func stateOf(present bool) State {
	if present {
		return Present
	}
	return Away
}

// Config holds the debounce thresholds.
type Config struct {
	PresentToAway time.Duration // sustained absence needed to go AWAY
	AwayToPresent time.Duration // sustained detection needed to go PRESENT
}

// DefaultConfig returns the recommended thresholds.
func DefaultConfig() Config {
	return Config{
		PresentToAway: 2 * time.Second,
		AwayToPresent: 700 * time.Millisecond,
	}
}

// Detector is an asymmetric-hysteresis debouncer. It is not safe for
// concurrent use; the session loop owns it.
type Detector struct {
	config Config

	current        bool
	candidate      *bool
	candidateSince time.Time
}

// New creates a detector that starts AWAY.
func New(config Config) *Detector {
	return &Detector{config: config}
}

// Update feeds one raw reading taken at now and returns the committed state.
func (d *Detector) Update(detected bool, now time.Time) State {
	switch {
	case detected == d.current:
		d.reset()

	case d.candidate == nil:
		c := detected
		d.candidate = &c
		d.candidateSince = now

	case detected != *d.candidate:
		// flicker, start over
		d.reset()

	default:
		threshold := d.config.AwayToPresent
		if d.current && !*d.candidate {
			threshold = d.config.PresentToAway
		}
		if elapsed := now.Sub(d.candidateSince); elapsed >= threshold {
			d.current = *d.candidate
			d.reset()
			log.Info("presence changed", "state", stateOf(d.current), "after", elapsed, "at", now)
		}
	}

	return stateOf(d.current)
}

// State returns the committed state without feeding a reading.
func (d *Detector) State() State {
	return stateOf(d.current)
}

// Pending reports whether a transition candidate is being timed.
func (d *Detector) Pending() bool {
	return d.candidate != nil
}

func (d *Detector) reset() {
	d.candidate = nil
	d.candidateSince = time.Time{}
}
