// Package web serves the session status over HTTP and websocket and accepts
// session commands from the dashboard.
package web

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"golang.org/x/time/rate"

	"github.com/teslashibe/go-focus/internal/log"
	"github.com/teslashibe/go-focus/pkg/control"
	"github.com/teslashibe/go-focus/pkg/hub"
	"github.com/teslashibe/go-focus/pkg/report"
	"github.com/teslashibe/go-focus/pkg/session"
)

// Websocket message types.
const (
	TopicStatus  = "status"
	TopicTick    = "tick"
	TopicSummary = "summary"
)

// Config configures the server.
type Config struct {
	Addr         string
	AllowOrigins string

	// TickInterval throttles tick broadcasts. Zero sends every tick.
	TickInterval time.Duration

	// ControlRate limits POST /api/control per client IP. Zero disables
	// the limit.
	ControlRate  rate.Limit
	ControlBurst int
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8090",
		AllowOrigins: "*",
		TickInterval: 200 * time.Millisecond,
		ControlRate:  2,
		ControlBurst: 5,
	}
}

// Session is the part of the session controller the server reads.
type Session interface {
	Snapshot() session.Snapshot
	Summary() (session.Summary, bool)
}

// Server is the status server. It implements session.Observer.
type Server struct {
	config   Config
	app      *fiber.App
	hub      *hub.Hub
	session  Session
	mailbox  *control.Mailbox
	validate *validator.Validate

	lastTick time.Time
}

var _ session.Observer = (*Server)(nil)

// New creates a server reading from sess and submitting commands to mb.
// A nil mailbox disables POST /api/control.
func New(config Config, sess Session, mb *control.Mailbox) *Server {
	s := &Server{
		config:   config,
		hub:      hub.New("status"),
		session:  sess,
		mailbox:  mb,
		validate: validator.New(),
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-focus",
		DisableStartupMessage: true,
	})

	app.Use(cors.New(cors.Config{AllowOrigins: config.AllowOrigins}))

	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Get("/status", s.handleStatus)
	api.Get("/session", s.handleSession)
	api.Get("/summary", s.handleSummary)
	if config.ControlRate > 0 {
		api.Post("/control", newRateLimiter(config.ControlRate, config.ControlBurst).middleware, s.handleControl)
	} else {
		api.Post("/control", s.handleControl)
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// App returns the fiber app, for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the broadcast hub.
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

// Start runs the hub and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info("status server listening", "addr", s.config.Addr)
		errCh <- s.app.Listen(s.config.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := s.app.Shutdown(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

// StartAsync starts the server in a goroutine and logs failures.
func (s *Server) StartAsync(ctx context.Context) {
	go func() {
		if err := s.Start(ctx); err != nil {
			log.Error("status server failed", "error", err)
		}
	}()
}

// OnStatus implements session.Observer.
func (s *Server) OnStatus(st session.Status) {
	s.publish(TopicStatus, report.NewStatusDoc(st), true)
}

// OnTick implements session.Observer.
func (s *Server) OnTick(r session.Result) {
	if !r.Evaluated {
		return
	}
	if s.config.TickInterval > 0 && !s.lastTick.IsZero() && r.At.Sub(s.lastTick) < s.config.TickInterval && !r.Calibration {
		return
	}
	s.lastTick = r.At
	s.publish(TopicTick, NewTickView(r), false)
}

// OnSummary implements session.Observer.
func (s *Server) OnSummary(sum session.Summary) {
	s.publish(TopicSummary, report.NewSummaryDoc(sum), true)
}

func (s *Server) publish(topic string, v any, retain bool) {
	if err := s.hub.BroadcastJSON(topic, v, retain); err != nil {
		log.Warn("encode websocket message failed", "topic", topic, "error", err)
	}
}
