// Package attention combines the presence, head pose and gaze signals into
// one attention state per frame.
package attention

import (
	"github.com/teslashibe/go-focus/pkg/gaze"
	"github.com/teslashibe/go-focus/pkg/headpose"
	"github.com/teslashibe/go-focus/pkg/presence"
)

// State is the final per-frame attention state.
type State string

const (
	Attentive  State = "ATTENTIVE"
	Distracted State = "DISTRACTED"
	Away       State = "AWAY"
)

// States lists every state in report order.
var States = []State{Attentive, Distracted, Away}

// Classify applies the precedence presence > head pose > gaze. Presence gates
// everything; a head turned away makes gaze irrelevant. Any non-ATTENTIVE
// pose or gaze label, including the no-signal ones, counts as DISTRACTED.
func Classify(p presence.State, pose headpose.Label, g gaze.Label) State {
	switch {
	case p != presence.Present:
		return Away
	case pose != headpose.Attentive:
		return Distracted
	case g != gaze.Attentive:
		return Distracted
	default:
		return Attentive
	}
}
