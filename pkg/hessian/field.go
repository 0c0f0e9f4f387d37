// Package hessian computes the dense second-derivative structure of a
// 3D volume at a given smoothing scale. Derivatives are taken by
// convolution with sampled Gaussian-derivative kernels and are scale
// normalized (multiplied by sigma^2) so that responses at different
// sigma values are directly comparable, as the multiscale combiner
// requires.
package hessian

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"krcahbone/pkg/volume"
)

// Field holds the six unique components of the symmetric 3x3 Hessian
// at every voxel, all on the input's grid.
type Field struct {
	XX, YY, ZZ *volume.Volume
	XY, XZ, YZ *volume.Volume

	// Sigma is the smoothing scale the field was computed at.
	Sigma float64
}

// EigenField holds the three Hessian eigenvalues per voxel, ordered
// ascending by absolute value (|L1| <= |L2| <= |L3|) with signs kept.
type EigenField struct {
	L1, L2, L3 *volume.Volume
	Sigma      float64
}

// ComputeField computes the scale-normalized Gaussian Hessian of src
// at scale sigma. The six derivative components are each produced by
// three separable convolution passes with mirrored boundaries.
func ComputeField(src *volume.Volume, sigma float64, workers int) (*Field, error) {
	if src == nil || len(src.Data) == 0 {
		return nil, fmt.Errorf("hessian requires a non-empty volume")
	}
	if sigma <= 0 {
		return nil, fmt.Errorf("hessian requires sigma > 0, got %g", sigma)
	}

	components := []struct {
		orders [3]int
		dst    **volume.Volume
	}{
		{[3]int{2, 0, 0}, nil},
		{[3]int{0, 2, 0}, nil},
		{[3]int{0, 0, 2}, nil},
		{[3]int{1, 1, 0}, nil},
		{[3]int{1, 0, 1}, nil},
		{[3]int{0, 1, 1}, nil},
	}
	f := &Field{Sigma: sigma}
	components[0].dst = &f.XX
	components[1].dst = &f.YY
	components[2].dst = &f.ZZ
	components[3].dst = &f.XY
	components[4].dst = &f.XZ
	components[5].dst = &f.YZ

	norm := sigma * sigma
	for _, c := range components {
		out, err := separableConvolve(src, sigma, c.orders, workers)
		if err != nil {
			return nil, err
		}
		for i := range out.Data {
			out.Data[i] *= norm
		}
		*c.dst = out
	}
	return f, nil
}

// Eigenvalues decomposes the symmetric matrix at every voxel and
// returns the eigenvalues ordered ascending by magnitude with original
// signs. Ties in magnitude keep the algebraic (ascending) order the
// symmetric solver produces, which is deterministic on recomputation.
// A voxel whose factorization fails (which the symmetric solver does
// not do for finite input) yields the all-zero triple.
func (f *Field) Eigenvalues(workers int) (*EigenField, error) {
	l1, err := volume.NewLike(f.XX)
	if err != nil {
		return nil, err
	}
	l2, err := volume.NewLike(f.XX)
	if err != nil {
		return nil, err
	}
	l3, err := volume.NewLike(f.XX)
	if err != nil {
		return nil, err
	}

	f.XX.ParallelOverZ(workers, func(z0, z1 int) {
		// Solver state is reused across the slab to avoid per-voxel
		// allocation.
		sym := mat.NewSymDense(3, nil)
		var eig mat.EigenSym
		vals := make([]float64, 3)

		w, h := f.XX.Width, f.XX.Height
		for z := z0; z < z1; z++ {
			for y := 0; y < h; y++ {
				row := (z*h + y) * w
				for x := 0; x < w; x++ {
					i := row + x
					sym.SetSym(0, 0, f.XX.Data[i])
					sym.SetSym(1, 1, f.YY.Data[i])
					sym.SetSym(2, 2, f.ZZ.Data[i])
					sym.SetSym(0, 1, f.XY.Data[i])
					sym.SetSym(0, 2, f.XZ.Data[i])
					sym.SetSym(1, 2, f.YZ.Data[i])

					if !eig.Factorize(sym, false) {
						l1.Data[i], l2.Data[i], l3.Data[i] = 0, 0, 0
						continue
					}
					eig.Values(vals)
					a, b, c := orderByMagnitude(vals[0], vals[1], vals[2])
					l1.Data[i], l2.Data[i], l3.Data[i] = a, b, c
				}
			}
		}
	})

	return &EigenField{L1: l1, L2: l2, L3: l3, Sigma: f.Sigma}, nil
}

// orderByMagnitude sorts three values ascending by absolute value,
// keeping signs. The input arrives in ascending algebraic order, so
// equal-magnitude pairs resolve the same way on every call.
func orderByMagnitude(a, b, c float64) (float64, float64, float64) {
	if math.Abs(a) > math.Abs(b) {
		a, b = b, a
	}
	if math.Abs(b) > math.Abs(c) {
		b, c = c, b
	}
	if math.Abs(a) > math.Abs(b) {
		a, b = b, a
	}
	return a, b, c
}

// EigenAt decomposes the Hessian at a single voxel, returning the
// magnitude-ordered eigenvalues together with the matching
// eigenvectors as columns of a 3x3 matrix. Bulk consumers use
// Eigenvalues and discard the vectors; this entry point serves
// diagnostics that need the local plate orientation.
func (f *Field) EigenAt(x, y, z int) (values [3]float64, vectors *mat.Dense, err error) {
	i := f.XX.Index(x, y, z)
	sym := mat.NewSymDense(3, nil)
	sym.SetSym(0, 0, f.XX.Data[i])
	sym.SetSym(1, 1, f.YY.Data[i])
	sym.SetSym(2, 2, f.ZZ.Data[i])
	sym.SetSym(0, 1, f.XY.Data[i])
	sym.SetSym(0, 2, f.XZ.Data[i])
	sym.SetSym(1, 2, f.YZ.Data[i])

	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		return values, nil, fmt.Errorf("eigendecomposition failed at voxel (%d,%d,%d)", x, y, z)
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// Reorder columns alongside the values.
	type pair struct {
		val float64
		col int
	}
	p := []pair{{vals[0], 0}, {vals[1], 1}, {vals[2], 2}}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2-i; j++ {
			if math.Abs(p[j].val) > math.Abs(p[j+1].val) {
				p[j], p[j+1] = p[j+1], p[j]
			}
		}
	}
	ordered := mat.NewDense(3, 3, nil)
	for c, q := range p {
		values[c] = q.val
		for r := 0; r < 3; r++ {
			ordered.Set(r, c, vecs.At(r, q.col))
		}
	}
	return values, ordered, nil
}
