package hessian

import (
	"fmt"
	"math"
)

// kernel is a sampled 1D Gaussian-derivative operator. Taps are stored
// from -radius to +radius and act in physical units: the first- and
// second-derivative kernels are renormalized so that they reproduce
// the exact derivative of linear and quadratic ramps regardless of the
// voxel spacing they were sampled at.
type kernel struct {
	taps   []float64
	radius int
}

// kernelTruncation controls how far, in standard deviations, the
// sampled Gaussian extends before being cut off.
const kernelTruncation = 4.0

// newKernel samples the Gaussian of standard deviation sigma (physical
// units) and its requested derivative order (0, 1 or 2) on a grid with
// the given spacing.
func newKernel(sigma, spacing float64, order int) (kernel, error) {
	if sigma <= 0 {
		return kernel{}, fmt.Errorf("gaussian kernel requires sigma > 0, got %g", sigma)
	}
	if spacing <= 0 {
		return kernel{}, fmt.Errorf("gaussian kernel requires spacing > 0, got %g", spacing)
	}

	radius := int(math.Ceil(kernelTruncation * sigma / spacing))
	if radius < 1 {
		radius = 1
	}
	taps := make([]float64, 2*radius+1)

	norm := 1.0 / (sigma * math.Sqrt(2*math.Pi))
	s2 := sigma * sigma
	for i := -radius; i <= radius; i++ {
		t := float64(i) * spacing
		g := norm * math.Exp(-t*t/(2*s2))
		switch order {
		case 0:
			taps[i+radius] = g
		case 1:
			taps[i+radius] = -t / s2 * g
		case 2:
			taps[i+radius] = (t*t - s2) / (s2 * s2) * g
		default:
			return kernel{}, fmt.Errorf("unsupported derivative order %d", order)
		}
	}

	k := kernel{taps: taps, radius: radius}
	k.normalize(order, spacing)
	return k, nil
}

// normalize corrects the sampled taps so their discrete moments match
// the continuous operator: the smoothing kernel has unit gain, the
// derivative kernels have zero gain and unit response to the matching
// polynomial ramp. Without this correction a uniform region would leak
// a small nonzero second derivative from the truncation.
func (k *kernel) normalize(order int, spacing float64) {
	switch order {
	case 0:
		var sum float64
		for _, v := range k.taps {
			sum += v
		}
		for i := range k.taps {
			k.taps[i] /= sum
		}
	case 1:
		// Antisymmetry already gives zero gain; scale so a linear
		// ramp of unit slope yields exactly 1.
		var m1 float64
		for i := -k.radius; i <= k.radius; i++ {
			m1 -= float64(i) * spacing * k.taps[i+k.radius]
		}
		for i := range k.taps {
			k.taps[i] /= m1
		}
	case 2:
		var sum float64
		for _, v := range k.taps {
			sum += v
		}
		mean := sum / float64(len(k.taps))
		for i := range k.taps {
			k.taps[i] -= mean
		}
		// Scale so the parabola t^2/2 yields exactly 1.
		var m2 float64
		for i := -k.radius; i <= k.radius; i++ {
			t := float64(i) * spacing
			m2 += t * t * k.taps[i+k.radius] / 2
		}
		for i := range k.taps {
			k.taps[i] /= m2
		}
	}
}
