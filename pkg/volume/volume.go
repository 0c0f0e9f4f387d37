// Package volume provides the dense 3D scalar grid shared by every
// stage of the bone-enhancement pipeline. A Volume carries its voxel
// data in a flat row-major array together with the physical spacing
// and origin of the grid, so that derived images (Hessian components,
// eigenvalue images, the final measure) keep the same physical frame
// as the input.
package volume

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// Vec3 is a physical-space vector in the same units as the input
// metadata (typically millimetres).
type Vec3 struct {
	X, Y, Z float64
}

// Volume is a dense 3D grid of scalar samples.
//
// Data is stored in row-major order: index = (z*Height + y)*Width + x.
// Spacing and Origin are carried through unchanged by every stage.
type Volume struct {
	// Data is the voxel data as a 1D array in row-major order
	Data []float64

	// Width, Height, Depth are the grid dimensions in voxels
	Width, Height, Depth int

	// Spacing is the physical size of one voxel along each axis
	Spacing Vec3

	// Origin is the physical position of voxel (0,0,0)
	Origin Vec3
}

// maxVoxels bounds the working-buffer size so that a misconfigured
// header cannot ask for more memory than a flat float64 slice can hold.
const maxVoxels = math.MaxInt64 / 16

// New allocates a zero-filled volume with unit spacing at the origin.
func New(width, height, depth int) (*Volume, error) {
	if width <= 0 || height <= 0 || depth <= 0 {
		return nil, fmt.Errorf("volume dimensions must be positive, got %dx%dx%d", width, height, depth)
	}
	n := uint64(width) * uint64(height) * uint64(depth)
	if n > maxVoxels {
		return nil, fmt.Errorf("volume of %dx%dx%d voxels exceeds addressable buffer size", width, height, depth)
	}
	return &Volume{
		Data:    make([]float64, n),
		Width:   width,
		Height:  height,
		Depth:   depth,
		Spacing: Vec3{1, 1, 1},
	}, nil
}

// NewLike allocates a zero-filled volume on the same grid as v,
// propagating dimensions, spacing and origin.
func NewLike(v *Volume) (*Volume, error) {
	out, err := New(v.Width, v.Height, v.Depth)
	if err != nil {
		return nil, err
	}
	out.Spacing = v.Spacing
	out.Origin = v.Origin
	return out, nil
}

// Index returns the flat Data index of voxel (x, y, z).
func (v *Volume) Index(x, y, z int) int {
	return (z*v.Height+y)*v.Width + x
}

// At returns the sample at voxel (x, y, z).
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[(z*v.Height+y)*v.Width+x]
}

// Set stores a sample at voxel (x, y, z).
func (v *Volume) Set(x, y, z int, value float64) {
	v.Data[(z*v.Height+y)*v.Width+x] = value
}

// NumVoxels returns the total number of samples in the volume.
func (v *Volume) NumVoxels() int {
	return v.Width * v.Height * v.Depth
}

// SameGrid reports whether two volumes share dimensions. Physical
// metadata is intentionally not compared; stages that require matching
// spacing check it explicitly.
func (v *Volume) SameGrid(o *Volume) bool {
	return v.Width == o.Width && v.Height == o.Height && v.Depth == o.Depth
}

// Clone returns a deep copy of the volume.
func (v *Volume) Clone() *Volume {
	out := *v
	out.Data = make([]float64, len(v.Data))
	copy(out.Data, v.Data)
	return &out
}

// Summary holds descriptive statistics of a volume's samples.
type Summary struct {
	Min, Max, Mean, StdDev float64
}

// Summarize computes min/max/mean/stddev over all samples.
func (v *Volume) Summarize() Summary {
	s := Summary{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, val := range v.Data {
		if val < s.Min {
			s.Min = val
		}
		if val > s.Max {
			s.Max = val
		}
	}
	s.Mean = stat.Mean(v.Data, nil)
	s.StdDev = stat.StdDev(v.Data, nil)
	return s
}

// ParallelOverZ splits [0, depth) into contiguous z-slabs and runs fn
// on each slab from its own goroutine. Every voxel belongs to exactly
// one slab, so stages that write disjoint output voxels need no
// further synchronization. workers <= 0 runs everything on the calling
// goroutine.
func (v *Volume) ParallelOverZ(workers int, fn func(z0, z1 int)) {
	if workers <= 1 || v.Depth == 1 {
		fn(0, v.Depth)
		return
	}
	if workers > v.Depth {
		workers = v.Depth
	}
	slabSize := (v.Depth + workers - 1) / workers

	var wg sync.WaitGroup
	for z0 := 0; z0 < v.Depth; z0 += slabSize {
		z1 := z0 + slabSize
		if z1 > v.Depth {
			z1 = v.Depth
		}
		wg.Add(1)
		go func(z0, z1 int) {
			defer wg.Done()
			fn(z0, z1)
		}(z0, z1)
	}
	wg.Wait()
}
