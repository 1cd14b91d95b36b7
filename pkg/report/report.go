// Package report persists session output as flat files for dashboards:
// status.json and summary.json rewritten atomically, and an append-only
// CSV time-series log.
package report

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/teslashibe/go-focus/pkg/session"
)

// TimeLayout is used for every human-readable timestamp written to disk.
const TimeLayout = "2006-01-02 15:04:05"

// StatusDoc is the on-disk status.
type StatusDoc struct {
	State     string  `json:"state"`
	Message   string  `json:"message"`
	SessionID string  `json:"session_id,omitempty"`
	TS        float64 `json:"ts"`
}

// NewStatusDoc converts a session status.
func NewStatusDoc(s session.Status) StatusDoc {
	return StatusDoc{
		State:     string(s.Phase),
		Message:   s.Message,
		SessionID: s.SessionID,
		TS:        unixSeconds(s.At),
	}
}

// SummaryDoc is the on-disk session summary.
type SummaryDoc struct {
	SessionID         string  `json:"session_id"`
	SessionStart      string  `json:"session_start"`
	SessionEnd        string  `json:"session_end"`
	TotalSeconds      float64 `json:"total_seconds"`
	AttentiveSeconds  float64 `json:"attentive_seconds"`
	DistractedSeconds float64 `json:"distracted_seconds"`
	AwaySeconds       float64 `json:"away_seconds"`
	FocusPercent      float64 `json:"focus_percent"`
	CSVPath           string  `json:"csv_path"`
}

// NewSummaryDoc converts a session summary.
func NewSummaryDoc(s session.Summary) SummaryDoc {
	return SummaryDoc{
		SessionID:         s.SessionID,
		SessionStart:      formatTime(s.Start),
		SessionEnd:        formatTime(s.End),
		TotalSeconds:      s.Accrued.Total,
		AttentiveSeconds:  s.Accrued.Attentive,
		DistractedSeconds: s.Accrued.Distracted,
		AwaySeconds:       s.Accrued.Away,
		FocusPercent:      s.FocusPercent,
		CSVPath:           s.LogPath,
	}
}

// ReadStatus reads a status file.
func ReadStatus(path string) (StatusDoc, error) {
	var doc StatusDoc
	err := readJSON(path, &doc)
	return doc, err
}

// ReadSummary reads a summary file.
func ReadSummary(path string) (SummaryDoc, error) {
	var doc SummaryDoc
	err := readJSON(path, &doc)
	return doc, err
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("report: parse %s: %w", path, err)
	}
	return nil
}

// writeJSON writes v to a temp file and renames it over path, so pollers
// never see a partial document.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("report: marshal: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("report: write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("report: rename temp file: %w", err)
	}
	return nil
}

// FormatSeconds renders whole seconds as "1h 2m 3s".
func FormatSeconds(seconds float64) string {
	s := int64(math.Max(0, seconds))
	return fmt.Sprintf("%dh %dm %ds", s/3600, (s%3600)/60, s%60)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.Local().Format(TimeLayout)
}

func unixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

func resolve(dir, name string) string {
	if filepath.IsAbs(name) || dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}
