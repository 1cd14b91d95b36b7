package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/teslashibe/go-focus/internal/log"
	"github.com/teslashibe/go-focus/pkg/session"
)

// ErrLogClosed is returned when appending without an open log.
var ErrLogClosed = errors.New("report: log not open")

// Header is the first row of a new time-series log.
var Header = []string{
	"timestamp",
	"presence_label",
	"head_pose_label",
	"eye_gaze_label",
	"final_state",
	"attentive_seconds",
	"distracted_seconds",
	"away_seconds",
}

// Config names the output files. Relative names are resolved against Dir.
type Config struct {
	Dir         string
	StatusFile  string
	SummaryFile string
	LogFile     string
}

// DefaultConfig writes to the working directory with the dashboard's
// file names.
func DefaultConfig() Config {
	return Config{
		Dir:         ".",
		StatusFile:  "status.json",
		SummaryFile: "summary.json",
		LogFile:     "dashboard.csv",
	}
}

// Files is a session.Recorder backed by the local filesystem.
type Files struct {
	config Config

	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
}

var _ session.Recorder = (*Files)(nil)

// New creates the output directory if needed.
func New(config Config) (*Files, error) {
	def := DefaultConfig()
	if config.StatusFile == "" {
		config.StatusFile = def.StatusFile
	}
	if config.SummaryFile == "" {
		config.SummaryFile = def.SummaryFile
	}
	if config.LogFile == "" {
		config.LogFile = def.LogFile
	}
	if config.Dir != "" {
		if err := os.MkdirAll(config.Dir, 0755); err != nil {
			return nil, fmt.Errorf("report: create directory: %w", err)
		}
	}
	return &Files{config: config}, nil
}

// StatusPath returns the status file path.
func (f *Files) StatusPath() string { return resolve(f.config.Dir, f.config.StatusFile) }

// SummaryPath returns the summary file path.
func (f *Files) SummaryPath() string { return resolve(f.config.Dir, f.config.SummaryFile) }

// LogPath returns the time-series log path.
func (f *Files) LogPath() string { return resolve(f.config.Dir, f.config.LogFile) }

// WriteStatus implements session.Recorder.
func (f *Files) WriteStatus(s session.Status) error {
	return writeJSON(f.StatusPath(), NewStatusDoc(s))
}

// WriteSummary implements session.Recorder.
func (f *Files) WriteSummary(s session.Summary) error {
	return writeJSON(f.SummaryPath(), NewSummaryDoc(s))
}

// OpenLog opens the log for appending, writing the header when the file is
// new or empty.
func (f *Files) OpenLog(sessionID string, start time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file != nil {
		f.closeLocked()
	}

	path := f.LogPath()
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("report: open log: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return "", fmt.Errorf("report: stat log: %w", err)
	}

	w := csv.NewWriter(file)
	if info.Size() == 0 {
		w.Write(Header)
		w.Flush()
		if err := w.Error(); err != nil {
			file.Close()
			return "", fmt.Errorf("report: write header: %w", err)
		}
	}

	f.file = file
	f.w = w
	log.Debug("session log opened", "path", path, "session_id", sessionID, "start", start)
	return path, nil
}

// AppendRecord implements session.Recorder. Each row is flushed so readers
// see it immediately. A csv.Writer keeps its first write error, so a failed
// row closes the log; later appends return ErrLogClosed until OpenLog is
// called again.
func (f *Files) AppendRecord(r session.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.w == nil {
		return ErrLogClosed
	}
	f.w.Write([]string{
		r.Timestamp.Local().Format(TimeLayout),
		string(r.Presence),
		string(r.HeadPose),
		string(r.Gaze),
		string(r.Final),
		formatFloat(r.Accrued.Attentive),
		formatFloat(r.Accrued.Distracted),
		formatFloat(r.Accrued.Away),
	})
	f.w.Flush()
	if err := f.w.Error(); err != nil {
		if cerr := f.closeLocked(); cerr != nil {
			log.Debug("close session log after failed row", "error", cerr)
		}
		return fmt.Errorf("report: append row: %w", err)
	}
	return nil
}

// CloseLog implements session.Recorder.
func (f *Files) CloseLog() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeLocked()
}

func (f *Files) closeLocked() error {
	if f.file == nil {
		return nil
	}
	f.w.Flush()
	err := f.file.Close()
	f.file = nil
	f.w = nil
	if err != nil {
		return fmt.Errorf("report: close log: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
