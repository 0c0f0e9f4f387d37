package sheetness

import (
	"math"
	"testing"

	"krcahbone/pkg/volume"
)

// TestPreprocessUniform verifies that a constant volume passes through
// the unsharp mask unchanged: the smoothed image equals the input, so
// the sharpening term vanishes
func TestPreprocessUniform(t *testing.T) {
	v, _ := volume.New(10, 10, 10)
	for i := range v.Data {
		v.Data[i] = 300
	}

	out, err := Preprocess(v, DefaultPreprocessConfig(), nil)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	for i, got := range out.Data {
		if math.Abs(got-300) > 1e-9 {
			t.Fatalf("voxel %d: got %g, want 300", i, got)
		}
	}
}

// TestPreprocessSharpens verifies that the stage amplifies the contrast
// of a step edge
func TestPreprocessSharpens(t *testing.T) {
	v, _ := volume.New(16, 8, 8)
	for z := 0; z < v.Depth; z++ {
		for y := 0; y < v.Height; y++ {
			for x := 0; x < v.Width; x++ {
				if x >= 8 {
					v.Set(x, y, z, 1000)
				}
			}
		}
	}

	cfg := DefaultPreprocessConfig()
	cfg.ClampMin, cfg.ClampMax = 0, 0 // no clamping
	out, err := Preprocess(v, cfg, nil)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}

	// The bright side of the edge is boosted above the original value,
	// the dark side is pushed below.
	if got := out.At(8, 4, 4); got <= 1000 {
		t.Errorf("bright edge voxel: got %g, want > 1000", got)
	}
	if got := out.At(7, 4, 4); got >= 0 {
		t.Errorf("dark edge voxel: got %g, want < 0", got)
	}
}

// TestPreprocessClamps verifies the output range clamp
func TestPreprocessClamps(t *testing.T) {
	v, _ := volume.New(16, 8, 8)
	for z := 0; z < v.Depth; z++ {
		for y := 0; y < v.Height; y++ {
			for x := 8; x < v.Width; x++ {
				v.Set(x, y, z, 30000)
			}
		}
	}

	out, err := Preprocess(v, DefaultPreprocessConfig(), nil)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	for i, got := range out.Data {
		if got < math.MinInt16 || got > math.MaxInt16 {
			t.Fatalf("voxel %d: %g escaped the int16 clamp", i, got)
		}
	}
}

// TestPreprocessRejectsBadSigma verifies the eager configuration check
func TestPreprocessRejectsBadSigma(t *testing.T) {
	v, _ := volume.New(4, 4, 4)
	cfg := DefaultPreprocessConfig()
	cfg.Sigma = 0
	if _, err := Preprocess(v, cfg, nil); err == nil {
		t.Errorf("Expected error for sigma=0")
	}
}

// TestPreprocessReportsProgress verifies the observer sees a
// non-decreasing fraction ending at 1
func TestPreprocessReportsProgress(t *testing.T) {
	v, _ := volume.New(6, 6, 6)
	var fracs []float64
	_, err := Preprocess(v, DefaultPreprocessConfig(), func(stage string, f float64) {
		if stage != "preprocessing" {
			t.Errorf("unexpected stage %q", stage)
		}
		fracs = append(fracs, f)
	})
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	if len(fracs) == 0 || fracs[len(fracs)-1] != 1 {
		t.Fatalf("progress fractions %v should end at 1", fracs)
	}
	for i := 1; i < len(fracs); i++ {
		if fracs[i] < fracs[i-1] {
			t.Fatalf("progress went backwards: %v", fracs)
		}
	}
}
