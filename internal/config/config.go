// Package config loads go-focus daemon configuration from defaults, an
// optional .env file and FOCUS_* environment variables, and validates it.
// Flag parsing is done in cmd/focusd; this package is data only.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/teslashibe/go-focus/pkg/frame/worker"
	"github.com/teslashibe/go-focus/pkg/gaze"
	"github.com/teslashibe/go-focus/pkg/headpose"
	"github.com/teslashibe/go-focus/pkg/presence"
	"github.com/teslashibe/go-focus/pkg/report"
	"github.com/teslashibe/go-focus/pkg/session"
	"github.com/teslashibe/go-focus/pkg/web"
)

// DefaultModelPath is the YuNet face detector used by the camera source.
const DefaultModelPath = "models/face_detection_yunet.onnx"

// Frame sources.
const (
	SourceWorker = "worker"
	SourceCamera = "camera"
	SourceReplay = "replay"
)

// Config holds all daemon configuration.
type Config struct {
	// Logging.
	LogLevel string `validate:"oneof=debug info warn error"`
	LogFile  string

	// Frame source.
	Source        string `validate:"oneof=worker camera replay"`
	WorkerCommand string `validate:"required_if=Source worker"`
	WorkerArgs    []string
	ReplayPath    string `validate:"required_if=Source replay"`
	CameraDevice  int    `validate:"gte=0"`
	ModelPath     string `validate:"required_if=Source camera"`

	// Outputs and control.
	OutputDir   string `validate:"required"`
	ControlFile string `validate:"required"`
	HTTPAddr    string // empty disables the status server
	AutoStart   bool   // start a session without waiting for a command

	// Classification.
	PresentToAway  time.Duration `validate:"gt=0"`
	AwayToPresent  time.Duration `validate:"gt=0"`
	YawThreshold   float64       `validate:"gt=0,lte=90"`
	PitchThreshold float64       `validate:"gt=0,lte=90"`
	GazeThreshold  float64       `validate:"lt=0,gt=-1"`

	// LogInterval is the minimum time between time-series rows.
	LogInterval time.Duration `validate:"gt=0"`
}

// DefaultConfig returns the daemon defaults.
func DefaultConfig() Config {
	p := presence.DefaultConfig()
	h := headpose.DefaultConfig()
	return Config{
		LogLevel:       "info",
		Source:         SourceWorker,
		WorkerCommand:  worker.DefaultConfig().Command,
		CameraDevice:   0,
		ModelPath:      DefaultModelPath,
		OutputDir:      ".",
		ControlFile:    "control.json",
		PresentToAway:  p.PresentToAway,
		AwayToPresent:  p.AwayToPresent,
		YawThreshold:   h.YawThreshold,
		PitchThreshold: h.PitchThreshold,
		GazeThreshold:  gaze.DefaultConfig().Threshold,
		LogInterval:    session.DefaultConfig().LogInterval,
	}
}

// Error is a configuration error for one field.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// LoadEnv applies FOCUS_* variables from the process environment and from
// the given dotenv files. Process variables win over file values; missing
// files are ignored.
func (c *Config) LoadEnv(files ...string) error {
	vars := map[string]string{}
	for _, f := range files {
		m, err := godotenv.Read(f)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: read %s: %w", f, err)
		}
		for k, v := range m {
			vars[k] = v
		}
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, envPrefix) {
			vars[k] = v
		}
	}
	return c.apply(envMap(vars))
}

// Validate checks the configuration. The first invalid field is returned
// as an *Error.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	return &Error{Field: fe.Field(), Message: describe(fe)}
}

var validate = validator.New()

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %v", fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("must satisfy %s=%s, got %v", fe.Tag(), fe.Param(), fe.Value())
	}
}

// Warnings lists settings that are valid but will give poor results.
func (c Config) Warnings() []string {
	var w []string
	if c.Source == SourceCamera {
		w = append(w, "camera source only detects presence; head pose and gaze have no landmarks, so every present tick counts as DISTRACTED. Use -source worker for attention scoring")
	}
	return w
}

// Session returns the session controller configuration.
func (c Config) Session() session.Config {
	cfg := session.DefaultConfig()
	cfg.Presence = presence.Config{PresentToAway: c.PresentToAway, AwayToPresent: c.AwayToPresent}
	cfg.HeadPose = headpose.Config{YawThreshold: c.YawThreshold, PitchThreshold: c.PitchThreshold}
	cfg.Gaze = gaze.Config{Threshold: c.GazeThreshold}
	cfg.LogInterval = c.LogInterval
	return cfg
}

// Report returns the output file configuration.
func (c Config) Report() report.Config {
	cfg := report.DefaultConfig()
	cfg.Dir = c.OutputDir
	return cfg
}

// Worker returns the landmark worker configuration.
func (c Config) Worker() worker.Config {
	cfg := worker.DefaultConfig()
	cfg.Command = c.WorkerCommand
	cfg.Args = c.WorkerArgs
	return cfg
}

// Web returns the status server configuration.
func (c Config) Web() web.Config {
	cfg := web.DefaultConfig()
	cfg.Addr = c.HTTPAddr
	return cfg
}
