package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-focus/pkg/attention"
	"github.com/teslashibe/go-focus/pkg/gaze"
	"github.com/teslashibe/go-focus/pkg/headpose"
	"github.com/teslashibe/go-focus/pkg/presence"
	"github.com/teslashibe/go-focus/pkg/session"
)

func newFiles(t *testing.T) *Files {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Dir = filepath.Join(t.TempDir(), "out")
	f, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return f
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0h 0m 0s"},
		{59.9, "0h 0m 59s"},
		{61, "0h 1m 1s"},
		{3723, "1h 2m 3s"},
		{-4, "0h 0m 0s"},
	}
	for _, tt := range tests {
		if got := FormatSeconds(tt.in); got != tt.want {
			t.Errorf("FormatSeconds(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStatusRoundTrip(t *testing.T) {
	f := newFiles(t)
	at := time.Unix(1700000000, 500_000_000)

	err := f.WriteStatus(session.Status{Phase: session.Running, Message: "Session started", SessionID: "abc", At: at})
	if err != nil {
		t.Fatalf("WriteStatus() error = %v", err)
	}

	doc, err := ReadStatus(f.StatusPath())
	if err != nil {
		t.Fatalf("ReadStatus() error = %v", err)
	}
	want := StatusDoc{State: "RUNNING", Message: "Session started", SessionID: "abc", TS: 1700000000.5}
	if doc != want {
		t.Errorf("status = %+v, want %+v", doc, want)
	}

	if _, err := os.Stat(f.StatusPath() + ".tmp"); !errors.Is(err, fs.ErrNotExist) {
		t.Error("temp file left behind")
	}
}

func TestReadMissingStatus(t *testing.T) {
	_, err := ReadStatus(filepath.Join(t.TempDir(), "status.json"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("ReadStatus() error = %v, want not exist", err)
	}
}

func TestSummary(t *testing.T) {
	f := newFiles(t)
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.Local)
	a := session.Accrual{Attentive: 30 * time.Second, Distracted: 10 * time.Second}

	s := session.Summary{
		SessionID:    "abc",
		Start:        start,
		End:          start.Add(40 * time.Second),
		Accrued:      a.Seconds(),
		FocusPercent: a.FocusPercent(),
		LogPath:      f.LogPath(),
	}
	if err := f.WriteSummary(s); err != nil {
		t.Fatalf("WriteSummary() error = %v", err)
	}

	doc, err := ReadSummary(f.SummaryPath())
	if err != nil {
		t.Fatalf("ReadSummary() error = %v", err)
	}
	if doc.FocusPercent != 75 {
		t.Errorf("focus_percent = %v, want 75", doc.FocusPercent)
	}
	if doc.TotalSeconds != 40 || doc.AttentiveSeconds != 30 || doc.DistractedSeconds != 10 || doc.AwaySeconds != 0 {
		t.Errorf("seconds = %+v", doc)
	}
	if doc.SessionStart != "2024-03-01 09:00:00" || doc.SessionEnd != "2024-03-01 09:00:40" {
		t.Errorf("times = %q / %q", doc.SessionStart, doc.SessionEnd)
	}
	if doc.CSVPath != f.LogPath() {
		t.Errorf("csv_path = %q", doc.CSVPath)
	}

	var buf bytes.Buffer
	PrintSummary(&buf, doc)
	out := buf.String()
	for _, want := range []string{"Total Time    : 0h 0m 40s", "Attentive     : 0h 0m 30s", "Focus         : 75.0%"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func record(at time.Time, att float64) session.Record {
	return session.Record{
		Timestamp: at,
		Presence:  presence.Present,
		HeadPose:  headpose.Attentive,
		Gaze:      gaze.NotCalibrated,
		Final:     attention.Distracted,
		Accrued:   session.Seconds{Attentive: att, Distracted: 1.5, Total: att + 1.5},
	}
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestLogHeaderOnlyWhenNew(t *testing.T) {
	f := newFiles(t)
	at := time.Date(2024, 3, 1, 9, 0, 1, 0, time.Local)

	path, err := f.OpenLog("first", at)
	if err != nil {
		t.Fatalf("OpenLog() error = %v", err)
	}
	if path != f.LogPath() {
		t.Errorf("OpenLog() path = %q, want %q", path, f.LogPath())
	}
	if err := f.AppendRecord(record(at, 2)); err != nil {
		t.Fatalf("AppendRecord() error = %v", err)
	}
	if err := f.CloseLog(); err != nil {
		t.Fatalf("CloseLog() error = %v", err)
	}

	// A second session appends without a second header.
	if _, err := f.OpenLog("second", at); err != nil {
		t.Fatal(err)
	}
	if err := f.AppendRecord(record(at.Add(time.Second), 3)); err != nil {
		t.Fatal(err)
	}
	f.CloseLog()

	rows := readRows(t, path)
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if strings.Join(rows[0], ",") != strings.Join(Header, ",") {
		t.Errorf("header = %v", rows[0])
	}
	want := []string{"2024-03-01 09:00:01", "PRESENT", "ATTENTIVE", "NOT_CALIBRATED", "DISTRACTED", "2.00", "1.50", "0.00"}
	if strings.Join(rows[1], ",") != strings.Join(want, ",") {
		t.Errorf("row = %v, want %v", rows[1], want)
	}
}

func TestAppendWithoutOpenLog(t *testing.T) {
	f := newFiles(t)
	if err := f.AppendRecord(record(time.Now(), 1)); !errors.Is(err, ErrLogClosed) {
		t.Errorf("AppendRecord() error = %v, want ErrLogClosed", err)
	}
	if err := f.CloseLog(); err != nil {
		t.Errorf("CloseLog() on closed log error = %v", err)
	}
}

// flakyWriter fails its first n writes, then passes through.
type flakyWriter struct {
	w     io.Writer
	fails int
}

func (fw *flakyWriter) Write(p []byte) (int, error) {
	if fw.fails > 0 {
		fw.fails--
		return 0, errors.New("no space left on device")
	}
	return fw.w.Write(p)
}

func TestFailedRowClosesLogForReopen(t *testing.T) {
	f := newFiles(t)
	at := time.Date(2024, 3, 1, 9, 0, 1, 0, time.Local)

	path, err := f.OpenLog("s", at)
	if err != nil {
		t.Fatal(err)
	}
	f.mu.Lock()
	f.w = csv.NewWriter(&flakyWriter{w: f.file, fails: 1})
	f.mu.Unlock()

	if err := f.AppendRecord(record(at, 1)); err == nil {
		t.Fatal("AppendRecord() error = nil, want write failure")
	}
	if err := f.AppendRecord(record(at, 1)); !errors.Is(err, ErrLogClosed) {
		t.Fatalf("AppendRecord() after failure error = %v, want ErrLogClosed", err)
	}

	if _, err := f.OpenLog("s", at); err != nil {
		t.Fatalf("OpenLog() after failure error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := f.AppendRecord(record(at.Add(time.Duration(i+1)*time.Second), float64(i+2))); err != nil {
			t.Fatalf("AppendRecord() %d after reopen error = %v", i, err)
		}
	}
	f.CloseLog()

	if rows := readRows(t, path); len(rows) != 3 {
		t.Errorf("rows = %d, want header + 2", len(rows))
	}
}

func TestFilesDriveSession(t *testing.T) {
	f := newFiles(t)
	c := session.New(session.DefaultConfig(), nil, nil, f)
	c.Quit("Interrupted")

	doc, err := ReadStatus(f.StatusPath())
	if err != nil {
		t.Fatal(err)
	}
	if doc.State != "DONE" || doc.Message != "Interrupted" {
		t.Errorf("status = %+v", doc)
	}
}
