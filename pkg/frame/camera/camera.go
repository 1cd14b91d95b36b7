package camera

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-focus/internal/log"
	"github.com/teslashibe/go-focus/pkg/frame"
)

// ErrReadFailed is returned when the webcam stops delivering frames.
var ErrReadFailed = errors.New("camera: read failed")

// Config configures the webcam source.
type Config struct {
	Device   int
	Width    int // requested capture width, 0 for driver default
	Height   int // requested capture height, 0 for driver default
	Detector DetectorConfig
}

// DefaultConfig returns the default webcam configuration.
func DefaultConfig() Config {
	return Config{
		Device:   0,
		Width:    640,
		Height:   480,
		Detector: DefaultDetectorConfig(),
	}
}

// Source captures webcam frames and runs presence detection on each one.
type Source struct {
	capture  *gocv.VideoCapture
	detector *YuNet
	img      gocv.Mat
	seq      uint64
}

// Open opens the webcam and loads the detector.
func Open(cfg Config) (*Source, error) {
	det, err := NewYuNet(cfg.Detector)
	if err != nil {
		return nil, err
	}

	capture, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("camera: open device %d: %w", cfg.Device, err)
	}
	if cfg.Width > 0 && cfg.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}

	log.Info("camera opened", "device", cfg.Device, "model", cfg.Detector.ModelPath)

	return &Source{
		capture:  capture,
		detector: det,
		img:      gocv.NewMat(),
	}, nil
}

// Next reads one frame and reports whether a face is in it.
func (s *Source) Next(ctx context.Context) (frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return frame.Frame{}, err
	}
	if ok := s.capture.Read(&s.img); !ok || s.img.Empty() {
		return frame.Frame{}, ErrReadFailed
	}
	now := time.Now()
	s.seq++

	f := frame.Frame{
		Seq:       s.seq,
		Timestamp: now,
		Width:     s.img.Cols(),
		Height:    s.img.Rows(),
	}

	dets, err := s.detector.Detect(s.img)
	if err != nil {
		// A failed detection is an absent face, not a dead camera.
		log.Debug("face detection failed", "error", err)
		return f, nil
	}
	if best := SelectBest(dets); best != nil {
		box := best.Box
		f.Detected = true
		f.Box = &box
	}
	return f, nil
}

// Close releases the webcam and the detector.
func (s *Source) Close() error {
	s.img.Close()
	s.detector.Close()
	return s.capture.Close()
}
