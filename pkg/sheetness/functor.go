// Package sheetness implements the Krcah bone-enhancement measure: a
// per-voxel score of how well the local Hessian eigenvalue structure
// matches the thin-plate geometry of cortical bone, combined across
// smoothing scales by maximal absolute response.
//
// The pipeline is a fixed data flow of concrete stages rather than a
// filter-object graph: Preprocess -> EstimateParameters (once) -> per
// scale {hessian.ComputeField -> Functor} -> multiscale fold. Stage
// selection (parameter recipe, polarity) happens through enumerated
// configuration values.
package sheetness

import (
	"math"

	"krcahbone/pkg/volume"
)

// Polarity selects whether bright or dark structures are enhanced.
// Bone is bright in CT, so EnhanceBright is the usual choice.
type Polarity int

const (
	// EnhanceBright responds to bright plates on a dark background,
	// which requires the dominant eigenvalue to be negative.
	EnhanceBright Polarity = iota

	// EnhanceDark responds to dark plates on a bright background,
	// which requires the dominant eigenvalue to be positive.
	EnhanceDark
)

func (p Polarity) String() string {
	if p == EnhanceDark {
		return "dark"
	}
	return "bright"
}

// eps is the threshold below which an eigenvalue magnitude counts as
// zero for division guards; ratio terms with such denominators are
// treated as fully suppressive instead of producing NaN or Inf.
const eps = 1e-12

// Functor maps a magnitude-ordered eigenvalue triple to the scalar
// sheetness response. It is pure and safe to evaluate concurrently.
type Functor struct {
	// Alpha, Beta, Gamma are the adaptive suppression thresholds from
	// the parameter estimation stage.
	Alpha, Beta, Gamma float64

	// Polarity is the sign convention for the dominant eigenvalue.
	Polarity Polarity
}

// NewFunctor builds the per-voxel functor from an estimated parameter
// set and the requested polarity.
func NewFunctor(p ParameterSet, polarity Polarity) Functor {
	return Functor{Alpha: p.Alpha, Beta: p.Beta, Gamma: p.Gamma, Polarity: polarity}
}

// Response evaluates the sheetness measure on one eigenvalue triple,
// which must be ordered ascending by magnitude (|a1| <= |a2| <= |a3|)
// with signs preserved.
//
// The measure is the product of three smooth suppression terms over
// the ratios
//
//	Rsheet = |a2|/|a3|          (plate vs. blob)
//	Rtube  = |a1|/(|a2||a3|)    (plate vs. tube)
//	Rnoise = |a1|+|a2|+|a3|     (structure vs. noise floor)
//
// Triples whose dominant eigenvalue sign does not match the polarity
// return exactly 0, as do triples whose denominators vanish.
func (f Functor) Response(a1, a2, a3 float64) float64 {
	if f.Polarity == EnhanceBright {
		if a3 >= 0 {
			return 0
		}
	} else {
		if a3 <= 0 {
			return 0
		}
	}

	l1 := math.Abs(a1)
	l2 := math.Abs(a2)
	l3 := math.Abs(a3)
	if l3 < eps || l2 < eps {
		return 0
	}

	rSheet := l2 / l3
	rTube := l1 / (l2 * l3)
	rNoise := l1 + l2 + l3

	s := math.Exp(-(rSheet * rSheet) / (2 * f.Alpha * f.Alpha))
	s *= math.Exp(-(rTube * rTube) / (2 * f.Beta * f.Beta))
	if f.Gamma > eps {
		s *= 1 - math.Exp(-(rNoise*rNoise)/(2*f.Gamma*f.Gamma))
	}
	return s
}

// Apply evaluates the functor over a whole eigen field, producing a
// response volume on the same grid.
func (f Functor) Apply(l1, l2, l3 *volume.Volume, workers int) (*volume.Volume, error) {
	out, err := volume.NewLike(l1)
	if err != nil {
		return nil, &ResourceError{Stage: "functor", Err: err}
	}
	out.ParallelOverZ(workers, func(z0, z1 int) {
		lo := l1.Index(0, 0, z0)
		hi := l1.Index(0, 0, z1-1) + l1.Width*l1.Height
		for i := lo; i < hi; i++ {
			out.Data[i] = f.Response(l1.Data[i], l2.Data[i], l3.Data[i])
		}
	})
	return out, nil
}
