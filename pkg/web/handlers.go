package web

import (
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-focus/internal/log"
	"github.com/teslashibe/go-focus/pkg/control"
	"github.com/teslashibe/go-focus/pkg/hub"
	"github.com/teslashibe/go-focus/pkg/report"
	"github.com/teslashibe/go-focus/pkg/session"
)

// TickView is the JSON form of one evaluated tick.
type TickView struct {
	TS          float64 `json:"ts"`
	Phase       string  `json:"phase"`
	Presence    string  `json:"presence_label"`
	HeadPose    string  `json:"head_pose_label"`
	Gaze        string  `json:"eye_gaze_label"`
	Final       string  `json:"final_state"`
	Yaw         float64 `json:"yaw"`
	Pitch       float64 `json:"pitch"`
	EyeScore    float64 `json:"eye_score"`
	Calibration bool    `json:"calibration,omitempty"`

	AttentiveSeconds  float64 `json:"attentive_seconds"`
	DistractedSeconds float64 `json:"distracted_seconds"`
	AwaySeconds       float64 `json:"away_seconds"`
}

// NewTickView converts a tick result.
func NewTickView(r session.Result) TickView {
	secs := r.Accrual.Seconds()
	return TickView{
		TS:                float64(r.At.UnixMilli()) / 1000,
		Phase:             string(r.Phase),
		Presence:          string(r.Presence),
		HeadPose:          string(r.HeadPose.Label),
		Gaze:              string(r.Gaze.Label),
		Final:             string(r.Final),
		Yaw:               round1(r.HeadPose.Pose.Yaw),
		Pitch:             round1(r.HeadPose.Pose.Pitch),
		EyeScore:          math.Round(r.Gaze.Score*1000) / 1000,
		Calibration:       r.Calibration,
		AttentiveSeconds:  secs.Attentive,
		DistractedSeconds: secs.Distracted,
		AwaySeconds:       secs.Away,
	}
}

// SessionView is the response of GET /api/session.
type SessionView struct {
	Status       report.StatusDoc `json:"status"`
	StartedAt    string           `json:"started_at,omitempty"`
	TotalSeconds float64          `json:"total_seconds"`
	Attentive    float64          `json:"attentive_seconds"`
	Distracted   float64          `json:"distracted_seconds"`
	Away         float64          `json:"away_seconds"`
	FocusPercent float64          `json:"focus_percent"`
	LogPath      string           `json:"csv_path,omitempty"`
	Last         *TickView        `json:"last,omitempty"`
}

// ControlRequest is the body of POST /api/control.
type ControlRequest struct {
	Command string `json:"command" validate:"required,oneof=START_SESSION CALIBRATE END_SESSION"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"ok":      true,
		"clients": s.hub.ClientCount(),
	})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(report.NewStatusDoc(s.session.Snapshot().Status))
}

func (s *Server) handleSession(c *fiber.Ctx) error {
	snap := s.session.Snapshot()
	secs := snap.Accrual.Seconds()

	view := SessionView{
		Status:       report.NewStatusDoc(snap.Status),
		TotalSeconds: secs.Total,
		Attentive:    secs.Attentive,
		Distracted:   secs.Distracted,
		Away:         secs.Away,
		FocusPercent: snap.Accrual.FocusPercent(),
		LogPath:      snap.LogPath,
	}
	if !snap.StartedAt.IsZero() {
		view.StartedAt = snap.StartedAt.Local().Format(report.TimeLayout)
	}
	if snap.Last != nil {
		last := NewTickView(*snap.Last)
		view.Last = &last
	}
	return c.JSON(view)
}

func (s *Server) handleSummary(c *fiber.Ctx) error {
	sum, ok := s.session.Summary()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No summary yet",
		})
	}
	return c.JSON(report.NewSummaryDoc(sum))
}

func (s *Server) handleControl(c *fiber.Ctx) error {
	if s.mailbox == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Control not configured",
		})
	}

	var req ControlRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	req.Command = strings.ToUpper(strings.TrimSpace(req.Command))

	if err := s.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "Invalid command",
			"fields": validationFields(err),
		})
	}

	cmd := s.mailbox.Submit(control.Kind(req.Command))
	log.Info("command submitted", "command", cmd.Kind, "remote", c.IP())

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"command":   cmd.Kind,
		"issued_at": cmd.IssuedAt.Format(time.RFC3339Nano),
	})
}

func validationFields(err error) map[string]string {
	out := map[string]string{}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		out["_"] = err.Error()
		return out
	}
	for _, fe := range verrs {
		out[strings.ToLower(fe.Field())] = fe.Tag()
	}
	return out
}

// handleStatusWS streams status, tick and summary messages. ?topics=status,summary
// limits the stream; clients can change it later with a hub.Subscription.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	client, err := hub.NewClient(s.hub, c, hub.ParseTopics(c.Query("topics"))...)
	if err != nil {
		log.Debug("websocket refused", "error", err)
		c.Close()
		return
	}
	client.Serve()
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
