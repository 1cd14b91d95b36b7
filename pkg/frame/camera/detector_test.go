package camera

import (
	"testing"

	"github.com/teslashibe/go-focus/pkg/frame"
)

func TestSelectBest(t *testing.T) {
	tests := []struct {
		name string
		dets []Detection
		want int // index, -1 for nil
	}{
		{"none", nil, -1},
		{"single", []Detection{{Confidence: 0.6}}, 0},
		{
			"larger face wins on close confidence",
			[]Detection{
				{Box: frame.Box{W: 0.1, H: 0.1}, Confidence: 0.92},
				{Box: frame.Box{W: 0.4, H: 0.4}, Confidence: 0.88},
			},
			1,
		},
		{
			"confident face wins over slightly larger",
			[]Detection{
				{Box: frame.Box{W: 0.3, H: 0.3}, Confidence: 0.95},
				{Box: frame.Box{W: 0.32, H: 0.32}, Confidence: 0.55},
			},
			0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectBest(tt.dets)
			if tt.want < 0 {
				if got != nil {
					t.Fatalf("SelectBest() = %+v, want nil", got)
				}
				return
			}
			if got != &tt.dets[tt.want] {
				t.Errorf("SelectBest() = %+v, want index %d", got, tt.want)
			}
		})
	}
}

func TestNewYuNetMissingModel(t *testing.T) {
	cfg := DefaultDetectorConfig()
	cfg.ModelPath = t.TempDir() + "/missing.onnx"
	if _, err := NewYuNet(cfg); err == nil {
		t.Fatal("NewYuNet() with missing model should fail")
	}
}
