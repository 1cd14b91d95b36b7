// Package camera reads a local webcam with OpenCV and reports face presence
// using the YuNet face detector.
//
// It produces presence-only frames (Detected plus Box); it does not produce a
// face mesh, so head pose and gaze report their no-signal labels when it is
// the only source.
package camera

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-focus/pkg/frame"
)

// Detection is one detected face, normalised to the frame.
type Detection struct {
	Box        frame.Box
	Confidence float64
}

// DetectorConfig holds YuNet configuration.
type DetectorConfig struct {
	ModelPath        string  // Path to ONNX model
	ConfidenceThresh float64 // Minimum confidence (default 0.5)
	InputWidth       int     // Model input width
	InputHeight      int     // Model input height
}

// DefaultDetectorConfig returns production defaults for YuNet.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.5,
		InputWidth:       320,
		InputHeight:      320,
	}
}

// YuNet wraps OpenCV's FaceDetectorYN.
type YuNet struct {
	detector gocv.FaceDetectorYN
	mu       sync.Mutex
}

// NewYuNet loads the YuNet model.
func NewYuNet(cfg DetectorConfig) (*YuNet, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("camera: model file not found: %s", cfg.ModelPath)
	}

	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		0.3,  // NMS threshold
		5000, // top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNet{detector: detector}, nil
}

// Detect finds faces in img.
func (y *YuNet) Detect(img gocv.Mat) ([]Detection, error) {
	y.mu.Lock()
	defer y.mu.Unlock()

	if img.Empty() {
		return nil, fmt.Errorf("camera: empty image")
	}

	imgW := float64(img.Cols())
	imgH := float64(img.Rows())
	y.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	y.detector.Detect(img, &faces)

	// Rows: x, y, w, h, 5 landmark pairs, score.
	var dets []Detection
	for r := 0; r < faces.Rows(); r++ {
		dets = append(dets, Detection{
			Box: frame.Box{
				X: float64(faces.GetFloatAt(r, 0)) / imgW,
				Y: float64(faces.GetFloatAt(r, 1)) / imgH,
				W: float64(faces.GetFloatAt(r, 2)) / imgW,
				H: float64(faces.GetFloatAt(r, 3)) / imgH,
			},
			Confidence: float64(faces.GetFloatAt(r, 14)),
		})
	}
	return dets, nil
}

// Close releases the detector.
func (y *YuNet) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	y.detector.Close()
	return nil
}

// SelectBest picks the primary subject from several detections.
// Score: confidence * 0.7 + relative area * 0.3.
func SelectBest(dets []Detection) *Detection {
	if len(dets) == 0 {
		return nil
	}
	if len(dets) == 1 {
		return &dets[0]
	}

	maxArea := 0.0
	for _, d := range dets {
		if a := d.Box.Area(); a > maxArea {
			maxArea = a
		}
	}

	bestScore := -1.0
	var best *Detection
	for i := range dets {
		score := dets[i].Confidence * 0.7
		if maxArea > 0 {
			score += (dets[i].Box.Area() / maxArea) * 0.3
		}
		if score > bestScore {
			bestScore = score
			best = &dets[i]
		}
	}
	return best
}
