package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-focus/internal/log"
	"github.com/teslashibe/go-focus/pkg/attention"
	"github.com/teslashibe/go-focus/pkg/control"
	"github.com/teslashibe/go-focus/pkg/frame"
	"github.com/teslashibe/go-focus/pkg/gaze"
	"github.com/teslashibe/go-focus/pkg/headpose"
	"github.com/teslashibe/go-focus/pkg/presence"
)

// Config configures the controller and the components it builds for each
// session.
type Config struct {
	Presence presence.Config
	HeadPose headpose.Config
	Gaze     gaze.Config

	// LogInterval is the minimum time between time-series rows.
	LogInterval time.Duration

	// IdlePoll is how often commands are polled while no session runs.
	IdlePoll time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Presence:    presence.DefaultConfig(),
		HeadPose:    headpose.DefaultConfig(),
		Gaze:        gaze.DefaultConfig(),
		LogInterval: time.Second,
		IdlePoll:    100 * time.Millisecond,
	}
}

// Snapshot is a consistent view of the controller for readers outside the
// session loop.
type Snapshot struct {
	Status    Status
	StartedAt time.Time
	Accrual   Accrual
	LogPath   string

	// Last is the most recent evaluated tick, nil before the first one.
	Last *Result
}

// Controller is the session state machine. Run drives it from a frame source
// and a control channel; Handle and Tick expose the same steps for callers
// that drive it themselves.
type Controller struct {
	config    Config
	source    frame.Source
	control   control.Channel
	recorder  Recorder
	observers []Observer
	now       func() time.Time

	mu sync.Mutex

	phase     Phase
	status    Status
	sessionID string
	startedAt time.Time
	endedAt   time.Time
	accrual   Accrual
	last      *Result
	summary   *Summary

	lastTickAt time.Time
	lastLogAt  time.Time
	logPath    string
	logOpen    bool

	lastCmd control.Command
	seenCmd bool

	presence *presence.Detector
	pose     *headpose.Estimator
	gaze     *gaze.Scorer
}

// New creates an idle controller. A nil channel means commands only arrive
// through Handle.
func New(config Config, source frame.Source, ch control.Channel, rec Recorder) *Controller {
	if config.LogInterval <= 0 {
		config.LogInterval = DefaultConfig().LogInterval
	}
	if config.IdlePoll <= 0 {
		config.IdlePoll = DefaultConfig().IdlePoll
	}
	if ch == nil {
		ch = control.NewMailbox()
	}
	return &Controller{
		config:   config,
		source:   source,
		control:  ch,
		recorder: rec,
		now:      time.Now,
		phase:    Idle,
		status:   Status{Phase: Idle},
	}
}

// Observe registers o for live events. Call before Run.
func (c *Controller) Observe(o Observer) {
	c.observers = append(c.observers, o)
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Status:    c.status,
		StartedAt: c.startedAt,
		Accrual:   c.accrual,
		LogPath:   c.logPath,
	}
	if c.last != nil {
		last := *c.last
		s.Last = &last
	}
	return s
}

// Summary returns the summary of the finished session.
func (c *Controller) Summary() (Summary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.summary == nil {
		return Summary{}, false
	}
	return *c.summary, true
}

// Run reports IDLE, then loops until the session is done or ctx is
// cancelled. Each iteration applies at most one new command and, while a
// session is active, evaluates one frame. Cancelling ctx ends an active
// session normally. A failing frame source ends the session with an ERROR
// status and Run returns an error wrapping ErrSourceFailed.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	c.setPhase(Idle, "Waiting for commands")
	c.mu.Unlock()

	idle := time.NewTicker(c.config.IdlePoll)
	defer idle.Stop()

	for {
		if ctx.Err() != nil {
			c.Quit("Interrupted")
			return nil
		}

		c.poll()

		switch c.Phase() {
		case Done:
			return nil
		case Idle:
			select {
			case <-ctx.Done():
			case <-idle.C:
			}
			continue
		}

		f, err := c.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.Quit("Interrupted")
				return nil
			}
			c.fail(err)
			return fmt.Errorf("%w: %w", ErrSourceFailed, err)
		}
		c.Tick(f)
	}
}

// poll applies the channel's latest command if it is a new value.
func (c *Controller) poll() {
	cmd, ok := c.control.Latest()
	if !ok {
		return
	}

	c.mu.Lock()
	if c.seenCmd && cmd.Same(c.lastCmd) {
		c.mu.Unlock()
		return
	}
	c.lastCmd = cmd
	c.seenCmd = true
	c.mu.Unlock()

	// rejections are already reported on the status channel
	_ = c.Handle(cmd)
}

// Handle applies one command. Commands that are not valid in the current
// phase are reported and return an error wrapping ErrRejected.
func (c *Controller) Handle(cmd control.Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	log.Debug("command received", "command", cmd.Kind, "phase", c.phase)

	switch cmd.Kind {
	case control.StartSession:
		switch {
		case c.phase == Idle:
			c.start()
			return nil
		case c.phase.Active():
			return c.reject(cmd, "Session already running")
		}

	case control.Calibrate:
		switch c.phase {
		case Running:
			c.setPhase(Calibrating, "Calibration requested")
			return nil
		case Calibrating:
			return c.reject(cmd, "Calibration already pending")
		case Idle:
			return c.reject(cmd, "Cannot calibrate, start a session first")
		}

	case control.EndSession:
		switch {
		case c.phase.Active():
			c.end(Ended, "Session ended")
			return nil
		case c.phase == Idle:
			return c.reject(cmd, "No session running to end")
		}

	default:
		return c.reject(cmd, fmt.Sprintf("Unknown command %q", cmd.Kind))
	}

	return c.reject(cmd, "Session already finished")
}

// Quit ends the session from a local signal. An active session is ended and
// summarised; an idle controller goes straight to DONE.
func (c *Controller) Quit(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.phase.Active():
		c.end(Ended, reason)
	case c.phase == Idle:
		c.setPhase(Done, reason)
	}
}

// Tick evaluates one frame. Outside an active session the frame is ignored.
func (c *Controller) Tick(f frame.Frame) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.phase.Active() {
		return Result{Phase: c.phase, At: f.Timestamp}
	}

	now := f.Timestamp
	if now.IsZero() {
		now = c.now()
	}
	calibrate := c.phase == Calibrating

	r := Result{At: now, Evaluated: true, Calibration: calibrate}

	r.Presence = c.presence.Update(f.Detected, now)

	r.HeadPose = headpose.Reading{Label: headpose.NoFace}
	if pts, ok := headpose.PointsFromMesh(f.Mesh, f.Width, f.Height); ok {
		r.HeadPose = c.pose.Update(pts, f.Width, f.Height, now, calibrate)
	}

	// missing eye landmarks score like closed eyes
	eyes, _ := gaze.EyesFromMesh(f.Mesh, f.Height)
	r.Gaze = c.gaze.Update(eyes, calibrate, now)

	r.Final = attention.Classify(r.Presence, r.HeadPose.Label, r.Gaze.Label)

	if !c.lastTickAt.IsZero() && now.After(c.lastTickAt) {
		r.DT = now.Sub(c.lastTickAt)
	}
	if c.lastTickAt.IsZero() || now.After(c.lastTickAt) {
		c.lastTickAt = now
	}
	c.accrual.Add(r.Final, r.DT)
	r.Accrual = c.accrual

	secs := c.accrual.Seconds()
	log.Debug(fmt.Sprintf("[%s]", r.Final),
		"presence", r.Presence,
		"head", r.HeadPose.Label,
		"eyes", r.Gaze.Label,
		"t_att", secs.Attentive,
		"t_dis", secs.Distracted,
		"t_away", secs.Away)

	if calibrate {
		c.setPhase(Running, calibrationMessage(r))
	}

	if c.lastLogAt.IsZero() {
		c.lastLogAt = now
	} else if now.Sub(c.lastLogAt) >= c.config.LogInterval {
		rec := Record{
			Timestamp: now,
			Presence:  r.Presence,
			HeadPose:  r.HeadPose.Label,
			Gaze:      r.Gaze.Label,
			Final:     r.Final,
			Accrued:   secs,
		}
		if c.appendRecord(rec) {
			c.lastLogAt = now
			r.Logged = true
		}
	}

	r.Phase = c.phase
	last := r
	c.last = &last

	for _, o := range c.observers {
		o.OnTick(r)
	}
	return r
}

func calibrationMessage(r Result) string {
	var skipped []string
	if r.HeadPose.Label == headpose.NoFace {
		skipped = append(skipped, "head pose")
	}
	if r.Gaze.Skipped {
		skipped = append(skipped, "eye gaze")
	}
	if len(skipped) > 0 {
		return "Calibration skipped for " + strings.Join(skipped, " and ") + ", no face"
	}
	return "Calibration applied"
}

// fail ends the session after a frame source error.
func (c *Controller) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	log.Error("frame source failed", "error", err, "phase", c.phase)
	if !c.phase.Active() {
		c.setPhase(Failed, "Frame source failed: "+err.Error())
		c.setPhase(Done, "No session to summarise")
		return
	}
	c.end(Failed, "Frame source failed: "+err.Error())
}

// start begins a session with fresh components. Caller holds mu.
func (c *Controller) start() {
	now := c.now()

	c.sessionID = uuid.NewString()
	c.startedAt = now
	c.endedAt = time.Time{}
	c.accrual = Accrual{}
	c.last = nil
	c.summary = nil
	c.lastTickAt = time.Time{}
	c.lastLogAt = time.Time{}

	c.presence = presence.New(c.config.Presence)
	c.pose = headpose.New(c.config.HeadPose)
	c.gaze = gaze.New(c.config.Gaze)

	c.openLog()

	log.Info("session started", "session_id", c.sessionID, "log", c.logPath)
	c.setPhase(Running, "Session started")
}

// end closes the log, reports phase, writes the summary and reports DONE.
// Caller holds mu.
func (c *Controller) end(phase Phase, message string) {
	c.endedAt = c.now()

	if c.logOpen {
		if err := c.recorder.CloseLog(); err != nil {
			log.Warn("close session log failed", "error", err)
		}
		c.logOpen = false
	}

	c.setPhase(phase, message)

	secs := c.accrual.Seconds()
	s := Summary{
		SessionID:    c.sessionID,
		Start:        c.startedAt,
		End:          c.endedAt,
		Accrued:      secs,
		FocusPercent: c.accrual.FocusPercent(),
		LogPath:      c.logPath,
	}
	c.summary = &s

	done := "Summary written"
	if err := c.recorder.WriteSummary(s); err != nil {
		log.Warn("write summary failed", "error", err)
		done = "Summary could not be written: " + err.Error()
	}
	for _, o := range c.observers {
		o.OnSummary(s)
	}

	log.Info("session ended",
		"session_id", c.sessionID,
		"reason", message,
		"total_s", secs.Total,
		"attentive_s", secs.Attentive,
		"distracted_s", secs.Distracted,
		"away_s", secs.Away,
		"focus_percent", s.FocusPercent)

	c.setPhase(Done, done)
}

// reject reports an invalid command without changing state. Caller holds mu.
func (c *Controller) reject(cmd control.Command, message string) error {
	log.Warn("command rejected", "command", cmd.Kind, "phase", c.phase, "reason", message)
	c.setPhase(c.phase, message)
	return fmt.Errorf("%w: %s in %s: %s", ErrRejected, cmd.Kind, c.phase, message)
}

// setPhase records and publishes a status. Caller holds mu.
func (c *Controller) setPhase(p Phase, message string) {
	c.phase = p
	c.status = Status{
		Phase:     p,
		Message:   message,
		SessionID: c.sessionID,
		At:        c.now(),
	}
	if err := c.recorder.WriteStatus(c.status); err != nil {
		log.Warn("write status failed", "error", err)
	}
	for _, o := range c.observers {
		o.OnStatus(c.status)
	}
}

func (c *Controller) openLog() {
	path, err := c.recorder.OpenLog(c.sessionID, c.startedAt)
	if err != nil {
		log.Warn("open session log failed", "error", err)
		return
	}
	c.logPath = path
	c.logOpen = true
}

// appendRecord writes a row, reopening the log if an earlier open or write
// failed. A failed write closes the log so the next row starts from a fresh
// file handle. It reports whether the row was written.
func (c *Controller) appendRecord(rec Record) bool {
	if !c.logOpen {
		c.openLog()
		if !c.logOpen {
			return false
		}
	}
	if err := c.recorder.AppendRecord(rec); err != nil {
		log.Warn("append session log failed, reopening on next row", "error", err)
		if err := c.recorder.CloseLog(); err != nil {
			log.Debug("close broken session log", "error", err)
		}
		c.logOpen = false
		return false
	}
	return true
}
