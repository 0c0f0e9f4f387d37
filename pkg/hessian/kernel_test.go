package hessian

import (
	"math"
	"testing"
)

// TestKernelSmoothingGain verifies that the smoothing kernel has unit
// gain so constant regions pass through unchanged
func TestKernelSmoothingGain(t *testing.T) {
	for _, sigma := range []float64{0.5, 1.0, 2.0} {
		k, err := newKernel(sigma, 1.0, 0)
		if err != nil {
			t.Fatalf("newKernel(%f): %v", sigma, err)
		}
		var sum float64
		for _, v := range k.taps {
			sum += v
		}
		if math.Abs(sum-1) > 1e-12 {
			t.Errorf("sigma=%f: smoothing kernel gain %g, want 1", sigma, sum)
		}
	}
}

// TestKernelDerivativeMoments verifies the moment renormalization: the
// derivative kernels have zero gain and reproduce exact derivatives of
// polynomial ramps
func TestKernelDerivativeMoments(t *testing.T) {
	for _, tc := range []struct {
		sigma, spacing float64
	}{
		{0.7, 1.0},
		{1.0, 0.5},
		{2.0, 1.5},
	} {
		for _, order := range []int{1, 2} {
			k, err := newKernel(tc.sigma, tc.spacing, order)
			if err != nil {
				t.Fatalf("newKernel(%f,%f,%d): %v", tc.sigma, tc.spacing, order, err)
			}

			var gain float64
			for _, v := range k.taps {
				gain += v
			}
			if math.Abs(gain) > 1e-10 {
				t.Errorf("sigma=%f spacing=%f order=%d: gain %g, want 0", tc.sigma, tc.spacing, order, gain)
			}

			// Convolving the matching monomial must give its exact
			// derivative: d/dt of t is 1, d2/dt2 of t^2/2 is 1.
			var response float64
			for i := -k.radius; i <= k.radius; i++ {
				tt := -float64(i) * tc.spacing
				if order == 1 {
					response += k.taps[i+k.radius] * tt
				} else {
					response += k.taps[i+k.radius] * tt * tt / 2
				}
			}
			if math.Abs(response-1) > 1e-10 {
				t.Errorf("sigma=%f spacing=%f order=%d: ramp response %g, want 1", tc.sigma, tc.spacing, order, response)
			}
		}
	}
}

// TestKernelRejectsBadInput verifies degenerate-input failures
func TestKernelRejectsBadInput(t *testing.T) {
	if _, err := newKernel(0, 1, 0); err == nil {
		t.Errorf("Expected error for sigma=0")
	}
	if _, err := newKernel(-1, 1, 2); err == nil {
		t.Errorf("Expected error for negative sigma")
	}
	if _, err := newKernel(1, 0, 0); err == nil {
		t.Errorf("Expected error for spacing=0")
	}
	if _, err := newKernel(1, 1, 3); err == nil {
		t.Errorf("Expected error for unsupported order")
	}
}

// TestMirrorIndex verifies the boundary reflection policy
func TestMirrorIndex(t *testing.T) {
	cases := []struct {
		i, n, want int
	}{
		{0, 5, 0},
		{4, 5, 4},
		{-1, 5, 1},
		{-2, 5, 2},
		{5, 5, 3},
		{6, 5, 2},
		{-1, 1, 0},
		{3, 1, 0},
	}
	for _, c := range cases {
		if got := mirrorIndex(c.i, c.n); got != c.want {
			t.Errorf("mirrorIndex(%d, %d) = %d, want %d", c.i, c.n, got, c.want)
		}
	}
}
