// focusd tracks attention from a webcam feed. It waits for session
// commands, classifies every frame while a session runs and writes
// status.json, summary.json and a CSV time-series log for the dashboard.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/teslashibe/go-focus/internal/config"
	"github.com/teslashibe/go-focus/internal/log"
	"github.com/teslashibe/go-focus/pkg/control"
	"github.com/teslashibe/go-focus/pkg/frame"
	"github.com/teslashibe/go-focus/pkg/frame/camera"
	"github.com/teslashibe/go-focus/pkg/frame/worker"
	"github.com/teslashibe/go-focus/pkg/report"
	"github.com/teslashibe/go-focus/pkg/session"
	"github.com/teslashibe/go-focus/pkg/web"
)

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}
	log.InitWithOptions(log.Options{Level: cfg.LogLevel, File: cfg.LogFile})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}

	for _, w := range cfg.Warnings() {
		log.Warn("configuration warning", "source", cfg.Source, "warning", w)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Error("focusd failed", "error", err)
		os.Exit(1)
	}
}

// parseFlags layers defaults, .env and FOCUS_* variables, then flags.
func parseFlags() (config.Config, error) {
	cfg := config.DefaultConfig()
	if err := cfg.LoadEnv(".env"); err != nil {
		return cfg, err
	}

	debug := flag.Bool("debug", false, "Enable per-frame debug logging")
	logFile := flag.String("log-file", cfg.LogFile, "Also write logs to this rotated file")
	source := flag.String("source", cfg.Source, "Frame source: worker, camera, replay")
	workerCmd := flag.String("worker", cfg.WorkerCommand, "Landmark worker command")
	replay := flag.String("replay", cfg.ReplayPath, "Recorded JSON-lines frames for -source replay")
	device := flag.Int("camera", cfg.CameraDevice, "Webcam device for -source camera")
	model := flag.String("model", cfg.ModelPath, "YuNet model for -source camera")
	out := flag.String("out", cfg.OutputDir, "Directory for status, summary and log files")
	controlFile := flag.String("control", cfg.ControlFile, "Control file polled for commands")
	httpAddr := flag.String("http", cfg.HTTPAddr, "Status server address, e.g. :8090 (empty disables)")
	autoStart := flag.Bool("autostart", cfg.AutoStart, "Start a session immediately")
	flag.Parse()

	if *debug {
		cfg.LogLevel = "debug"
	}
	cfg.LogFile = *logFile
	cfg.Source = *source
	cfg.WorkerCommand = *workerCmd
	if args := flag.Args(); len(args) > 0 {
		cfg.WorkerArgs = args
	}
	cfg.ReplayPath = *replay
	cfg.CameraDevice = *device
	cfg.ModelPath = *model
	cfg.OutputDir = *out
	cfg.ControlFile = *controlFile
	cfg.HTTPAddr = *httpAddr
	cfg.AutoStart = *autoStart
	return cfg, nil
}

func run(ctx context.Context, cfg config.Config) error {
	files, err := report.New(cfg.Report())
	if err != nil {
		return err
	}

	src, err := openSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	controlPath := cfg.ControlFile
	if !filepath.IsAbs(controlPath) {
		controlPath = filepath.Join(cfg.OutputDir, controlPath)
	}
	mailbox := control.NewMailbox()
	commands := control.Newest(control.NewFileChannel(controlPath, time.Now()), mailbox)

	ctrl := session.New(cfg.Session(), src, commands, files)

	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.Web(), ctrl, mailbox)
		ctrl.Observe(srv)
		srv.StartAsync(serverCtx)
	}

	log.Info("focusd ready",
		"source", cfg.Source,
		"control", controlPath,
		"status", files.StatusPath(),
		"http", cfg.HTTPAddr)

	if cfg.AutoStart {
		mailbox.Submit(control.StartSession)
	}

	runErr := ctrl.Run(ctx)

	if sum, ok := ctrl.Summary(); ok {
		report.PrintSummary(os.Stdout, report.NewSummaryDoc(sum))
	}

	// a finished recording is a normal end
	if cfg.Source == config.SourceReplay && errors.Is(runErr, frame.ErrClosed) {
		return nil
	}
	return runErr
}

func openSource(ctx context.Context, cfg config.Config) (frame.Source, error) {
	switch cfg.Source {
	case config.SourceWorker:
		w, err := worker.New(cfg.Worker())
		if err != nil {
			return nil, err
		}
		if err := w.Start(ctx); err != nil {
			return nil, err
		}
		return w, nil

	case config.SourceCamera:
		cam := camera.DefaultConfig()
		cam.Device = cfg.CameraDevice
		cam.Detector.ModelPath = cfg.ModelPath
		return camera.Open(cam)

	case config.SourceReplay:
		f, err := os.Open(cfg.ReplayPath)
		if err != nil {
			return nil, fmt.Errorf("open replay: %w", err)
		}
		return frame.NewReplay(f), nil
	}
	return nil, fmt.Errorf("unknown source %q", cfg.Source)
}
