package sheetness

import (
	"fmt"
	"math"
	"runtime"

	"krcahbone/pkg/hessian"
	"krcahbone/pkg/volume"
)

// ProgressFunc observes pipeline progress. It receives the stage name
// and a monotonically non-decreasing completion fraction in [0, 1].
// It is purely observational and may be nil.
type ProgressFunc func(stage string, fraction float64)

func report(p ProgressFunc, stage string, fraction float64) {
	if p != nil {
		p(stage, fraction)
	}
}

// Pipeline drives the multiscale bone-enhancement computation over a
// caller-supplied list of smoothing scales.
type Pipeline struct {
	// Sigmas are the smoothing scales, each > 0, length >= 1.
	Sigmas []float64

	// Polarity selects bright or dark enhancement.
	Polarity Polarity

	// Recipe selects the parameter-estimation formula.
	Recipe Recipe

	// Mask optionally restricts parameter estimation; Foreground and
	// Background are its pixel labels.
	Mask       *volume.Volume
	Foreground float64
	Background float64

	// Workers is the parallelism for every stage; <= 0 uses NumCPU.
	Workers int

	// KeepScales additionally records the winning sigma per voxel.
	KeepScales bool

	// Progress is the optional observer callback.
	Progress ProgressFunc
}

// Result is the pipeline output.
type Result struct {
	// Measure holds, per voxel, the signed response of greatest
	// absolute magnitude across all scales.
	Measure *volume.Volume

	// BestScale holds the sigma that produced the selected response,
	// or 0 where every scale responded with 0. Nil unless KeepScales
	// was set.
	BestScale *volume.Volume

	// Params is the parameter set estimated before the first scale.
	Params ParameterSet
}

// Validate checks the configuration eagerly, before any heavy
// computation. All violations are ConfigErrors.
func (p *Pipeline) Validate() error {
	if len(p.Sigmas) == 0 {
		return &ConfigError{Stage: "multiscale", Reason: "scale list is empty"}
	}
	for i, s := range p.Sigmas {
		if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return &ConfigError{Stage: "multiscale", Reason: fmt.Sprintf("sigma[%d] = %g is not a positive finite value", i, s)}
		}
	}
	if p.Mask != nil && p.Foreground == p.Background {
		return &ConfigError{Stage: "parameter estimation", Reason: "mask foreground and background values are equal"}
	}
	return nil
}

func (p *Pipeline) workers() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return runtime.NumCPU()
}

// Run executes the multiscale measure on a preprocessed volume.
//
// The parameter set is estimated exactly once, from the eigen field of
// the smallest scale, then reused for every scale. Tying estimation to
// the smallest sigma rather than the first list entry keeps the output
// invariant under permutation of the scale list. Scales are processed
// sequentially; each produces an independent response buffer that is
// folded into the accumulator by strict greater-in-absolute-value
// comparison, keeping the signed value. The fold is commutative and
// associative over magnitudes, so the result does not depend on the
// order of the scale list.
func (p *Pipeline) Run(in *volume.Volume) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if in == nil || len(in.Data) == 0 {
		return nil, &ConfigError{Stage: "multiscale", Reason: "input volume is empty"}
	}
	if p.Mask != nil && !p.Mask.SameGrid(in) {
		return nil, &ConfigError{Stage: "parameter estimation", Reason: "mask dimensions do not match the volume"}
	}
	workers := p.workers()

	measure, err := volume.NewLike(in)
	if err != nil {
		return nil, &ResourceError{Stage: "multiscale", Err: err}
	}
	res := &Result{Measure: measure}
	if p.KeepScales {
		if res.BestScale, err = volume.NewLike(in); err != nil {
			return nil, &ResourceError{Stage: "multiscale", Err: err}
		}
	}

	minIdx := 0
	for i, s := range p.Sigmas {
		if s < p.Sigmas[minIdx] {
			minIdx = i
		}
	}
	minEig, err := p.eigenField(in, p.Sigmas[minIdx], workers)
	if err != nil {
		return nil, err
	}
	res.Params, err = EstimateParameters(minEig, EstimatorConfig{
		Recipe:     p.Recipe,
		Mask:       p.Mask,
		Foreground: p.Foreground,
		Background: p.Background,
		Workers:    workers,
	})
	if err != nil {
		return nil, err
	}
	functor := NewFunctor(res.Params, p.Polarity)

	total := float64(len(p.Sigmas))
	for i, sigma := range p.Sigmas {
		report(p.Progress, "multiscale", float64(i)/total)

		eig := minEig
		if i != minIdx {
			if eig, err = p.eigenField(in, sigma, workers); err != nil {
				return nil, err
			}
		}

		response, err := functor.Apply(eig.L1, eig.L2, eig.L3, workers)
		if err != nil {
			return nil, err
		}
		foldResponse(res, response, sigma, workers)
	}
	report(p.Progress, "multiscale", 1)
	return res, nil
}

func (p *Pipeline) eigenField(in *volume.Volume, sigma float64, workers int) (*hessian.EigenField, error) {
	field, err := hessian.ComputeField(in, sigma, workers)
	if err != nil {
		return nil, &ResourceError{Stage: "hessian", Err: err}
	}
	eig, err := field.Eigenvalues(workers)
	if err != nil {
		return nil, &ResourceError{Stage: "hessian", Err: err}
	}
	return eig, nil
}

// foldResponse merges one scale's response into the accumulator:
// replace if strictly greater in absolute value, keeping the sign.
// Ties keep the already-stored value; both candidates carry the same
// magnitude, so either choice satisfies the order-invariance contract.
func foldResponse(res *Result, response *volume.Volume, sigma float64, workers int) {
	res.Measure.ParallelOverZ(workers, func(z0, z1 int) {
		lo := res.Measure.Index(0, 0, z0)
		hi := res.Measure.Index(0, 0, z1-1) + res.Measure.Width*res.Measure.Height
		for i := lo; i < hi; i++ {
			if math.Abs(response.Data[i]) > math.Abs(res.Measure.Data[i]) {
				res.Measure.Data[i] = response.Data[i]
				if res.BestScale != nil {
					res.BestScale.Data[i] = sigma
				}
			}
		}
	})
}
