package sheetness

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"krcahbone/pkg/hessian"
	"krcahbone/pkg/volume"
)

// Recipe selects which closed-form formula derives the suppression
// thresholds from the eigenvalue statistics. The two recipes exist
// because Krcah's released implementation and the journal article use
// slightly different constants; neither is inferred, callers choose.
type Recipe int

const (
	// RecipeJournal uses the constants from the journal article:
	// alpha = beta = 0.5, gamma = 0.25 * mean(|l1 + l2 + l3|).
	RecipeJournal Recipe = iota

	// RecipeImplementation uses the constants from the released
	// implementation: alpha = beta = sqrt2/2 and
	// gamma = sqrt2/2 * mean(|l1| + |l2| + |l3|). The sqrt2 factors
	// fold the implementation's missing 1/2 exponent denominator into
	// the common functor form.
	RecipeImplementation
)

func (r Recipe) String() string {
	if r == RecipeImplementation {
		return "implementation"
	}
	return "journal"
}

// ParameterSet holds the three adaptive thresholds consumed by the
// functor. It is computed once per run and immutable afterwards.
type ParameterSet struct {
	Alpha, Beta, Gamma float64
	Recipe             Recipe
}

// EstimatorConfig configures the single statistics pass.
type EstimatorConfig struct {
	Recipe Recipe

	// Mask restricts the statistics to voxels whose mask sample equals
	// Foreground. A nil mask includes every voxel.
	Mask       *volume.Volume
	Foreground float64
	Background float64

	Workers int
}

// EstimateParameters scans the eigen field once and derives the
// {alpha, beta, gamma} thresholds for the selected recipe. The scan is
// a parallel reduction: each worker accumulates a partial trace sum
// and count over its z-slab, and the partials merge through a
// count-weighted mean.
func EstimateParameters(eig *hessian.EigenField, cfg EstimatorConfig) (ParameterSet, error) {
	if cfg.Mask != nil {
		if !cfg.Mask.SameGrid(eig.L1) {
			return ParameterSet{}, &ConfigError{
				Stage:  "parameter estimation",
				Reason: "mask dimensions do not match the volume",
			}
		}
		if cfg.Foreground == cfg.Background {
			return ParameterSet{}, &ConfigError{
				Stage:  "parameter estimation",
				Reason: "mask foreground and background values are equal",
			}
		}
	}

	l1, l2, l3 := eig.L1, eig.L2, eig.L3
	w, h := l1.Width, l1.Height

	type partial struct {
		sum   float64
		count float64
	}
	// One slot per z plane; slabs touch disjoint slots so the workers
	// need no locking.
	partials := make([]partial, l1.Depth)

	l1.ParallelOverZ(cfg.Workers, func(z0, z1 int) {
		for z := z0; z < z1; z++ {
			var p partial
			for y := 0; y < h; y++ {
				row := (z*h + y) * w
				for x := 0; x < w; x++ {
					i := row + x
					if cfg.Mask != nil && cfg.Mask.Data[i] != cfg.Foreground {
						continue
					}
					var trace float64
					switch cfg.Recipe {
					case RecipeImplementation:
						trace = math.Abs(l1.Data[i]) + math.Abs(l2.Data[i]) + math.Abs(l3.Data[i])
					default:
						trace = math.Abs(l1.Data[i] + l2.Data[i] + l3.Data[i])
					}
					p.sum += trace
					p.count++
				}
			}
			partials[z] = p
		}
	})

	means := make([]float64, 0, len(partials))
	weights := make([]float64, 0, len(partials))
	for _, p := range partials {
		if p.count == 0 {
			continue
		}
		means = append(means, p.sum/p.count)
		weights = append(weights, p.count)
	}
	if len(means) == 0 {
		return ParameterSet{}, &ConfigError{
			Stage:  "parameter estimation",
			Reason: "mask selects zero foreground voxels",
		}
	}
	meanTrace := stat.Mean(means, weights)

	p := ParameterSet{Recipe: cfg.Recipe}
	switch cfg.Recipe {
	case RecipeImplementation:
		p.Alpha = math.Sqrt2 * 0.5
		p.Beta = math.Sqrt2 * 0.5
		p.Gamma = math.Sqrt2 * 0.5 * meanTrace
	default:
		p.Alpha = 0.5
		p.Beta = 0.5
		p.Gamma = 0.25 * meanTrace
	}
	return p, nil
}
