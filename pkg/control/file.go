package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/teslashibe/go-focus/internal/log"
)

// fileCommand is the on-disk form of a command:
//
//	{"command": "START_SESSION", "ts": 1700000000.123}
type fileCommand struct {
	Command string  `json:"command"`
	TS      float64 `json:"ts"`
}

// FileChannel polls a JSON control file written by another process. A
// missing, partially written or invalid file reads as no command.
type FileChannel struct {
	path  string
	since time.Time

	lastErr string
}

// NewFileChannel polls path. Commands issued before since are treated as
// already applied, so a stale file left by an earlier run is ignored.
func NewFileChannel(path string, since time.Time) *FileChannel {
	return &FileChannel{path: path, since: since}
}

// Path returns the polled file.
func (f *FileChannel) Path() string {
	return f.path
}

// Latest implements Channel.
func (f *FileChannel) Latest() (Command, bool) {
	cmd, err := ReadFile(f.path)
	if err != nil {
		// log each distinct failure once, polling repeats it every tick
		if !errors.Is(err, fs.ErrNotExist) && err.Error() != f.lastErr {
			log.Debug("control file unreadable", "path", f.path, "error", err)
		}
		f.lastErr = err.Error()
		return Command{}, false
	}
	f.lastErr = ""
	if cmd.IssuedAt.Before(f.since) {
		return Command{}, false
	}
	return cmd, true
}

// ReadFile reads one command from a control file.
func ReadFile(path string) (Command, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Command{}, err
	}
	var fc fileCommand
	if err := json.Unmarshal(data, &fc); err != nil {
		return Command{}, fmt.Errorf("control: parse %s: %w", path, err)
	}
	kind, err := ParseKind(fc.Command)
	if err != nil {
		return Command{}, err
	}
	return Command{Kind: kind, IssuedAt: fromUnix(fc.TS)}, nil
}

// WriteFile writes cmd to path, replacing it atomically.
func WriteFile(path string, cmd Command) error {
	data, err := json.Marshal(fileCommand{
		Command: string(cmd.Kind),
		TS:      float64(cmd.IssuedAt.UnixNano()) / 1e9,
	})
	if err != nil {
		return fmt.Errorf("control: marshal: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("control: create directory: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("control: write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("control: rename temp file: %w", err)
	}
	return nil
}

// fromUnix converts float unix seconds, rounded to the microsecond so a
// value survives a JSON round trip unchanged.
func fromUnix(ts float64) time.Time {
	return time.UnixMicro(int64(math.Round(ts * 1e6)))
}
