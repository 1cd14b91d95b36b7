// Package session runs an attention-tracking session: it applies control
// commands, drives the per-frame classification cascade, accrues time per
// attention state and persists status, a time-series log and a summary.
package session

import (
	"errors"
	"math"
	"time"

	"github.com/teslashibe/go-focus/pkg/attention"
	"github.com/teslashibe/go-focus/pkg/gaze"
	"github.com/teslashibe/go-focus/pkg/headpose"
	"github.com/teslashibe/go-focus/pkg/presence"
)

var (
	// ErrRejected is wrapped by Handle when a command is not valid in the
	// current phase. The rejection is reported on the status channel and
	// leaves the session untouched.
	ErrRejected = errors.New("session: command rejected")

	// ErrSourceFailed is wrapped by Run when the frame source fails.
	ErrSourceFailed = errors.New("session: frame source failed")
)

// Phase is the controller phase.
type Phase string

const (
	Idle        Phase = "IDLE"
	Running     Phase = "RUNNING"
	Calibrating Phase = "CALIBRATING"
	Ended       Phase = "ENDED"
	Failed      Phase = "ERROR"
	Done        Phase = "DONE"
)

// Active reports whether the phase accrues time.
func (p Phase) Active() bool {
	return p == Running || p == Calibrating
}

// Accrual is the time spent in each attention state.
type Accrual struct {
	Attentive  time.Duration
	Distracted time.Duration
	Away       time.Duration
}

// Total returns the sum of all buckets.
func (a Accrual) Total() time.Duration {
	return a.Attentive + a.Distracted + a.Away
}

// Add credits dt to the bucket for state.
func (a *Accrual) Add(state attention.State, dt time.Duration) {
	switch state {
	case attention.Attentive:
		a.Attentive += dt
	case attention.Distracted:
		a.Distracted += dt
	default:
		a.Away += dt
	}
}

// Seconds holds an Accrual in seconds rounded to 10ms. Total is the sum of
// the rounded buckets, so the buckets always add up to it exactly.
type Seconds struct {
	Attentive  float64
	Distracted float64
	Away       float64
	Total      float64
}

// Seconds converts the accrual for persistence.
func (a Accrual) Seconds() Seconds {
	att, dis, away := centis(a.Attentive), centis(a.Distracted), centis(a.Away)
	return Seconds{
		Attentive:  float64(att) / 100,
		Distracted: float64(dis) / 100,
		Away:       float64(away) / 100,
		Total:      float64(att+dis+away) / 100,
	}
}

// FocusPercent returns attentive time as a share of total time, clamped to
// [0, 100] and 0 for an empty session.
func (a Accrual) FocusPercent() float64 {
	total := a.Total()
	if total <= 0 {
		return 0
	}
	p := float64(a.Attentive) / float64(total) * 100
	return math.Round(math.Max(0, math.Min(100, p))*100) / 100
}

func centis(d time.Duration) int64 {
	return d.Round(10*time.Millisecond).Milliseconds() / 10
}

// Status is what the controller reports on every phase change and rejection.
type Status struct {
	Phase     Phase
	Message   string
	SessionID string
	At        time.Time
}

// Record is one row of the time-series log.
type Record struct {
	Timestamp time.Time
	Presence  presence.State
	HeadPose  headpose.Label
	Gaze      gaze.Label
	Final     attention.State
	Accrued   Seconds
}

// Summary is written once when a session ends.
type Summary struct {
	SessionID    string
	Start        time.Time
	End          time.Time
	Accrued      Seconds
	FocusPercent float64
	LogPath      string
}

// Result describes one tick.
type Result struct {
	Phase Phase
	At    time.Time

	// Evaluated is false when the tick ran outside an active session.
	Evaluated bool

	Presence presence.State
	HeadPose headpose.Reading
	Gaze     gaze.Reading
	Final    attention.State

	// Calibration is true when this tick carried the calibration trigger.
	Calibration bool

	DT      time.Duration
	Accrual Accrual

	// Logged is true when a Record was appended this tick.
	Logged bool
}

// Recorder persists session output. Errors are logged by the controller and
// never stop the session.
type Recorder interface {
	WriteStatus(Status) error

	// OpenLog opens the time-series log for a session and returns its path.
	OpenLog(sessionID string, start time.Time) (string, error)
	AppendRecord(Record) error
	CloseLog() error

	WriteSummary(Summary) error
}

// Observer receives live session events. Calls are made from the session
// loop and must not block.
type Observer interface {
	OnStatus(Status)
	OnTick(Result)
	OnSummary(Summary)
}
