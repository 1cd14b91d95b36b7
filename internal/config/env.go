package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "FOCUS_"

type envMap map[string]string

func (m envMap) get(name string) (string, bool) {
	v, ok := m[envPrefix+name]
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (m envMap) str(name string, dst *string) {
	if v, ok := m.get(name); ok {
		*dst = v
	}
}

func (m envMap) boolean(name string, dst *bool) error {
	v, ok := m.get(name)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return &Error{Field: envPrefix + name, Message: fmt.Sprintf("invalid boolean %q", v)}
	}
	*dst = b
	return nil
}

func (m envMap) integer(name string, dst *int) error {
	v, ok := m.get(name)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return &Error{Field: envPrefix + name, Message: fmt.Sprintf("invalid integer %q", v)}
	}
	*dst = n
	return nil
}

func (m envMap) float(name string, dst *float64) error {
	v, ok := m.get(name)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return &Error{Field: envPrefix + name, Message: fmt.Sprintf("invalid number %q", v)}
	}
	*dst = f
	return nil
}

func (m envMap) duration(name string, dst *time.Duration) error {
	v, ok := m.get(name)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return &Error{Field: envPrefix + name, Message: fmt.Sprintf("invalid duration %q", v)}
	}
	*dst = d
	return nil
}

func (c *Config) apply(m envMap) error {
	m.str("LOG_LEVEL", &c.LogLevel)
	m.str("LOG_FILE", &c.LogFile)
	m.str("SOURCE", &c.Source)
	m.str("WORKER_COMMAND", &c.WorkerCommand)
	if v, ok := m.get("WORKER_ARGS"); ok {
		c.WorkerArgs = strings.Fields(v)
	}
	m.str("REPLAY_PATH", &c.ReplayPath)
	m.str("MODEL_PATH", &c.ModelPath)
	m.str("OUTPUT_DIR", &c.OutputDir)
	m.str("CONTROL_FILE", &c.ControlFile)
	m.str("HTTP_ADDR", &c.HTTPAddr)

	for _, err := range []error{
		m.integer("CAMERA_DEVICE", &c.CameraDevice),
		m.boolean("AUTO_START", &c.AutoStart),
		m.duration("PRESENT_TO_AWAY", &c.PresentToAway),
		m.duration("AWAY_TO_PRESENT", &c.AwayToPresent),
		m.float("YAW_THRESHOLD", &c.YawThreshold),
		m.float("PITCH_THRESHOLD", &c.PitchThreshold),
		m.float("GAZE_THRESHOLD", &c.GazeThreshold),
		m.duration("LOG_INTERVAL", &c.LogInterval),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}
