package worker

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"
)

func shell(t *testing.T, script string) Config {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	return Config{
		Command:      "sh",
		Args:         []string{"-c", script},
		StallTimeout: 2 * time.Second,
		StopTimeout:  500 * time.Millisecond,
	}
}

func start(t *testing.T, cfg Config) *Worker {
	t.Helper()
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func TestNewRequiresCommand(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New() with empty command should fail")
	}
}

func TestWorkerFrames(t *testing.T) {
	script := `printf '%s\n' \
'{"seq":1,"ts":1700000000.0,"width":640,"height":480,"detected":true}' \
'not json' \
'{"seq":2,"ts":1700000000.1,"width":640,"height":480,"detected":false}'
echo '[WARNING] camera slow' >&2
sleep 0.2`
	w := start(t, shell(t, script))
	ctx := context.Background()

	f, err := w.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if f.Seq != 1 && f.Seq != 2 {
		t.Fatalf("Seq = %d, want 1 or 2", f.Seq)
	}

	// Drain until the process exits.
	for {
		_, err = w.Next(ctx)
		if err != nil {
			break
		}
	}
	if !errors.Is(err, ErrExited) {
		t.Fatalf("Next() after exit error = %v, want ErrExited", err)
	}

	st := w.Stats()
	if st.Received != 2 {
		t.Errorf("Received = %d, want 2", st.Received)
	}
	if st.ParseErrors != 1 {
		t.Errorf("ParseErrors = %d, want 1", st.ParseErrors)
	}
}

func TestWorkerKeepsNewest(t *testing.T) {
	script := `printf '%s\n' \
'{"seq":1,"ts":1700000000.0,"detected":true}' \
'{"seq":2,"ts":1700000000.1,"detected":true}' \
'{"seq":3,"ts":1700000000.2,"detected":true}'
sleep 1`
	w := start(t, shell(t, script))

	deadline := time.Now().Add(2 * time.Second)
	for w.Stats().Received < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	f, err := w.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if f.Seq != 3 {
		t.Errorf("Seq = %d, want 3", f.Seq)
	}
	if got := w.Stats().Overwritten; got != 2 {
		t.Errorf("Overwritten = %d, want 2", got)
	}
}

func TestWorkerStall(t *testing.T) {
	cfg := shell(t, "exec sleep 5")
	cfg.StallTimeout = 100 * time.Millisecond
	w := start(t, cfg)

	_, err := w.Next(context.Background())
	if !errors.Is(err, ErrStalled) {
		t.Errorf("Next() error = %v, want ErrStalled", err)
	}
}

func TestWorkerContextCancel(t *testing.T) {
	w := start(t, shell(t, "exec sleep 5"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := w.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next() error = %v, want DeadlineExceeded", err)
	}
}

func TestWorkerExitError(t *testing.T) {
	w := start(t, shell(t, "exit 3"))

	_, err := w.Next(context.Background())
	if !errors.Is(err, ErrExited) {
		t.Fatalf("Next() error = %v, want ErrExited", err)
	}
}
