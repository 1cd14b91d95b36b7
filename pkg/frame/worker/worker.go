// Package worker runs an external landmark detector as a subprocess and
// exposes its output as a frame.Source.
//
// The subprocess owns the camera and the face model. It writes one JSON
// object per line on stdout (see frame.Record) and logs on stderr using
// "[LEVEL] message" lines. Only the newest unread frame is kept: if the
// pipeline falls behind, older frames are overwritten rather than queued, so
// ticks always see the current face.
package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-focus/internal/log"
	"github.com/teslashibe/go-focus/pkg/frame"
)

var (
	// ErrExited is returned by Next after the subprocess exits.
	ErrExited = errors.New("worker: landmark process exited")

	// ErrStalled is returned by Next when no frame arrives within StallTimeout.
	ErrStalled = errors.New("worker: no frames received")
)

// Config configures the landmark worker.
type Config struct {
	Command string   // executable, e.g. "scripts/run_landmarks.sh"
	Args    []string // extra arguments
	Dir     string   // working directory, empty for current

	// StallTimeout fails Next when the process stops producing frames.
	StallTimeout time.Duration

	// StopTimeout bounds graceful shutdown before the process is killed.
	StopTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Command:      "scripts/run_landmarks.sh",
		StallTimeout: 5 * time.Second,
		StopTimeout:  2 * time.Second,
	}
}

// Stats are cumulative worker counters.
type Stats struct {
	Received    uint64
	Overwritten uint64
	ParseErrors uint64
	LastSeenAt  time.Time
}

// Worker is a frame.Source backed by a subprocess.
type Worker struct {
	config Config

	cmd   *exec.Cmd
	stdin io.WriteCloser

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	readers sync.WaitGroup

	mu      sync.Mutex
	latest  *frame.Frame
	ready   chan struct{}
	exited  chan struct{}
	exitErr error

	received    atomic.Uint64
	overwritten atomic.Uint64
	parseErrors atomic.Uint64
	lastSeenAt  atomic.Value // time.Time
}

// New validates the config and creates a stopped worker.
func New(config Config) (*Worker, error) {
	if config.Command == "" {
		return nil, fmt.Errorf("worker: command is required")
	}
	if config.StallTimeout <= 0 {
		config.StallTimeout = DefaultConfig().StallTimeout
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = DefaultConfig().StopTimeout
	}
	return &Worker{
		config: config,
		ready:  make(chan struct{}, 1),
		exited: make(chan struct{}),
	}, nil
}

// Start spawns the subprocess and its reader goroutines.
func (w *Worker) Start(ctx context.Context) error {
	if w.cmd != nil {
		return fmt.Errorf("worker: already started")
	}
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.cmd = exec.CommandContext(w.ctx, w.config.Command, w.config.Args...)
	w.cmd.Dir = w.config.Dir

	stdin, err := w.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("worker: stdin pipe: %w", err)
	}
	w.stdin = stdin

	stdout, err := w.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("worker: stdout pipe: %w", err)
	}
	stderr, err := w.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("worker: stderr pipe: %w", err)
	}

	if err := w.cmd.Start(); err != nil {
		return fmt.Errorf("worker: start %s: %w", w.config.Command, err)
	}
	w.lastSeenAt.Store(time.Now())

	log.Info("landmark worker started", "command", w.config.Command, "pid", w.cmd.Process.Pid)

	w.readers.Add(2)
	go w.readFrames(stdout)
	go w.logStderr(stderr)

	w.wg.Add(1)
	go w.waitProcess()

	return nil
}

// Next returns the newest frame not yet returned.
func (w *Worker) Next(ctx context.Context) (frame.Frame, error) {
	stall := time.NewTimer(w.config.StallTimeout)
	defer stall.Stop()

	for {
		if f, ok := w.take(); ok {
			return f, nil
		}
		select {
		case <-ctx.Done():
			return frame.Frame{}, ctx.Err()
		case <-w.ready:
		case <-w.exited:
			if f, ok := w.take(); ok {
				return f, nil
			}
			w.mu.Lock()
			err := w.exitErr
			w.mu.Unlock()
			if err != nil {
				return frame.Frame{}, fmt.Errorf("%w: %v", ErrExited, err)
			}
			return frame.Frame{}, ErrExited
		case <-stall.C:
			return frame.Frame{}, fmt.Errorf("%w for %v", ErrStalled, w.config.StallTimeout)
		}
	}
}

// Stats returns a snapshot of the worker counters.
func (w *Worker) Stats() Stats {
	s := Stats{
		Received:    w.received.Load(),
		Overwritten: w.overwritten.Load(),
		ParseErrors: w.parseErrors.Load(),
	}
	if t, ok := w.lastSeenAt.Load().(time.Time); ok {
		s.LastSeenAt = t
	}
	return s
}

// Close stops the subprocess, killing it if it does not exit in time.
func (w *Worker) Close() error {
	if w.cmd == nil {
		return nil
	}
	if w.stdin != nil {
		w.stdin.Close()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(w.config.StopTimeout):
		log.Warn("landmark worker did not stop, killing", "pid", w.cmd.Process.Pid)
		w.cancel()
		if w.cmd.Process != nil {
			w.cmd.Process.Kill()
		}
		<-done
	}
	w.cancel()

	st := w.Stats()
	log.Info("landmark worker stopped",
		"received", st.Received,
		"overwritten", st.Overwritten,
		"parse_errors", st.ParseErrors)
	return nil
}

func (w *Worker) take() (frame.Frame, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.latest == nil {
		return frame.Frame{}, false
	}
	f := *w.latest
	w.latest = nil
	return f, true
}

// publish stores f as the newest frame, overwriting any unread one.
func (w *Worker) publish(f frame.Frame) {
	w.mu.Lock()
	if w.latest != nil {
		w.overwritten.Add(1)
	}
	w.latest = &f
	w.mu.Unlock()

	w.received.Add(1)
	w.lastSeenAt.Store(time.Now())

	select {
	case w.ready <- struct{}{}:
	default:
	}
}

func (w *Worker) readFrames(stdout io.Reader) {
	defer w.readers.Done()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		f, err := frame.ParseLine(line)
		if err != nil {
			w.parseErrors.Add(1)
			log.Warn("landmark worker sent bad record", "error", err)
			continue
		}
		if f.Timestamp.Unix() <= 0 {
			f.Timestamp = time.Now()
		}
		w.publish(f)
	}
	if err := scanner.Err(); err != nil && w.ctx.Err() == nil {
		log.Error("landmark worker stdout read failed", "error", err)
	}
}

// logStderr maps "[LEVEL]" prefixed lines to log levels.
func (w *Worker) logStderr(stderr io.Reader) {
	defer w.readers.Done()

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case containsAny(line, "[ERROR]", "[CRITICAL]"):
			log.Error("landmark worker", "log", line)
		case containsAny(line, "[WARNING]", "[WARN]"):
			log.Warn("landmark worker", "log", line)
		default:
			log.Debug("landmark worker", "log", line)
		}
	}
}

func (w *Worker) waitProcess() {
	defer w.wg.Done()

	// Pipes must be drained before Wait closes them.
	w.readers.Wait()
	err := w.cmd.Wait()
	if err != nil && w.ctx.Err() != nil {
		// expected during shutdown
		err = nil
	}
	if err != nil {
		log.Error("landmark worker exited", "error", err)
	}

	w.mu.Lock()
	w.exitErr = err
	w.mu.Unlock()
	close(w.exited)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
