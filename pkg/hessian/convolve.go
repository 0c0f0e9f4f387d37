package hessian

import (
	"fmt"

	"krcahbone/pkg/volume"
)

const (
	axisX = iota
	axisY
	axisZ
)

// mirrorIndex reflects an out-of-range coordinate back into [0, n).
// The reflection excludes the boundary sample itself (ITK-style
// mirror), so index -1 maps to 1 and index n maps to n-2.
func mirrorIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}

// convolveAxis convolves src with the 1D kernel k along one axis,
// writing into a fresh volume. Boundaries are mirrored. The work is
// split over z-slabs (or y-rows for the z axis) so every output voxel
// is written by exactly one goroutine.
func convolveAxis(src *volume.Volume, k kernel, axis, workers int) (*volume.Volume, error) {
	dst, err := volume.NewLike(src)
	if err != nil {
		return nil, err
	}

	w, h, d := src.Width, src.Height, src.Depth
	r := k.radius

	src.ParallelOverZ(workers, func(z0, z1 int) {
		for z := z0; z < z1; z++ {
			for y := 0; y < h; y++ {
				row := (z*h + y) * w
				for x := 0; x < w; x++ {
					var acc float64
					switch axis {
					case axisX:
						for i := -r; i <= r; i++ {
							acc += k.taps[i+r] * src.Data[row+mirrorIndex(x-i, w)]
						}
					case axisY:
						for i := -r; i <= r; i++ {
							yy := mirrorIndex(y-i, h)
							acc += k.taps[i+r] * src.Data[(z*h+yy)*w+x]
						}
					case axisZ:
						for i := -r; i <= r; i++ {
							zz := mirrorIndex(z-i, d)
							acc += k.taps[i+r] * src.Data[(zz*h+y)*w+x]
						}
					}
					dst.Data[row+x] = acc
				}
			}
		}
	})

	return dst, nil
}

// separableConvolve applies per-axis kernels of the given derivative
// orders (orders[0] along x, etc.) at scale sigma.
func separableConvolve(src *volume.Volume, sigma float64, orders [3]int, workers int) (*volume.Volume, error) {
	spacings := [3]float64{src.Spacing.X, src.Spacing.Y, src.Spacing.Z}
	out := src
	for axis := 0; axis < 3; axis++ {
		k, err := newKernel(sigma, spacings[axis], orders[axis])
		if err != nil {
			return nil, err
		}
		out, err = convolveAxis(out, k, axis, workers)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Smooth convolves the volume with a plain Gaussian of standard
// deviation sigma along all three axes. It is used both by the
// preprocessing stage and as the zeroth-order part of the Hessian
// computation.
func Smooth(src *volume.Volume, sigma float64, workers int) (*volume.Volume, error) {
	if src == nil || len(src.Data) == 0 {
		return nil, fmt.Errorf("smoothing requires a non-empty volume")
	}
	return separableConvolve(src, sigma, [3]int{0, 0, 0}, workers)
}
