// Package calibrate derives the absolute-intensity scale factor (K-factor)
// by comparing a measured profile against a reference standard.
//
// The estimator interpolates the measured profile onto the reference grid
// inside the overlap region, forms point-wise I_ref/I_meas ratios, and
// applies median / MAD outlier rejection so that a handful of corrupted
// points cannot drag the scale factor.
package calibrate

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"

	"github.com/beamline-data/saxsabs/internal/profile"
	"github.com/beamline-data/saxsabs/internal/standards"
)

// ErrInsufficientOverlap indicates fewer than MinPoints usable points
// remain after restricting to the measured/reference/window intersection.
var ErrInsufficientOverlap = errors.New("insufficient overlap with reference standard")

// MinPoints is the minimum number of usable ratio points at every stage of
// the estimation.
const MinPoints = 3

// PositiveFloor is the interpolated-intensity threshold below which a
// measured point cannot contribute a ratio.
const PositiveFloor = 1e-9

// madScale makes the MAD-based dispersion estimate consistent with the
// standard deviation for Gaussian data.
const madScale = 1.4826

// Options tune the estimation. The zero value applies no explicit q window
// and uses the package defaults for everything else.
type Options struct {
	// QMin/QMax bound the comparison region. They are applied only when
	// QMax > QMin; otherwise the full domain intersection is used.
	QMin, QMax float64
}

// windowed reports whether an explicit window was requested.
func (o Options) windowed() bool { return o.QMax > o.QMin }

// Result holds a K-factor estimate and the statistics behind it.
//
// Grid, Ratios, and InlierMask are aligned: one entry per reference point
// in the overlap region. A point excluded before ratio formation (below the
// positive floor) has a NaN ratio and a false mask entry.
type Result struct {
	KFactor     float64 // absolute-scale multiplier, > 0
	KStd        float64 // robust dispersion of the inlier ratios, >= 0
	QMinOverlap float64
	QMaxOverlap float64
	PointsTotal int // reference points in the overlap region
	PointsUsed  int // inlier points contributing to KFactor

	Grid       []float64
	Ratios     []float64
	InlierMask []bool

	// DegenerateFallback is set when the MAD filter left too few inliers
	// and the estimate fell back to the full overlap point set. Callers
	// must surface this: the result is not equivalent to a clean fit.
	DegenerateFallback bool
}

// EstimateK estimates the K-factor of a measured profile against a
// resolved reference. The measured profile is regularized first, so raw
// ingested data may be passed directly.
func EstimateK(measured profile.Profile, ref standards.Reference, opts Options) (Result, error) {
	meas, err := profile.Regularize(measured, profile.DefaultMergeTolerance, MinPoints)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInsufficientOverlap, err)
	}
	if len(ref.Grid) != len(ref.Values) || len(ref.Grid) < MinPoints {
		return Result{}, fmt.Errorf("reference %q: malformed or undersized grid", ref.Name)
	}

	// Overlap: intersection of measured domain, reference domain, and the
	// optional explicit window.
	lo := math.Max(meas.X[0], ref.Grid[0])
	hi := math.Min(meas.X[len(meas.X)-1], ref.Grid[len(ref.Grid)-1])
	if opts.windowed() {
		lo = math.Max(lo, opts.QMin)
		hi = math.Min(hi, opts.QMax)
	}

	var grid, refVals []float64
	for i, q := range ref.Grid {
		if q >= lo && q <= hi {
			grid = append(grid, q)
			refVals = append(refVals, ref.Values[i])
		}
	}
	if len(grid) < MinPoints {
		return Result{}, fmt.Errorf("%w: %d reference points in [%g, %g], need %d",
			ErrInsufficientOverlap, len(grid), lo, hi, MinPoints)
	}

	// Linear interpolation of the measured profile onto the reference
	// grid. The overlap restriction guarantees no extrapolation.
	var pl interp.PiecewiseLinear
	if err := pl.Fit(meas.X, meas.I); err != nil {
		return Result{}, fmt.Errorf("interpolating measured profile: %w", err)
	}

	ratios := make([]float64, len(grid))
	valid := make([]bool, len(grid))
	var validRatios []float64
	for i, q := range grid {
		im := pl.Predict(q)
		if !finite(im) || im <= PositiveFloor {
			ratios[i] = math.NaN()
			continue
		}
		r := refVals[i] / im
		if !finite(r) || r <= 0 {
			ratios[i] = math.NaN()
			continue
		}
		ratios[i] = r
		valid[i] = true
		validRatios = append(validRatios, r)
	}
	if len(validRatios) < MinPoints {
		return Result{}, fmt.Errorf("%w: measured signal too weak or non-positive in overlap region", ErrInsufficientOverlap)
	}

	med := median(validRatios)
	sigma := madScale * medianAbsDev(validRatios, med)

	// Inlier classification at 3 robust sigma. With zero dispersion only
	// ratios exactly at the median pass, which is the correct degenerate
	// reading of the rule.
	mask := make([]bool, len(grid))
	var inliers []float64
	for i := range grid {
		if valid[i] && math.Abs(ratios[i]-med) <= 3.0*sigma {
			mask[i] = true
			inliers = append(inliers, ratios[i])
		}
	}

	degenerate := false
	if len(inliers) < MinPoints {
		// Pathological data: the filter rejected essentially everything.
		// Fall back to the full valid set and flag the condition so the
		// caller can distinguish this from a clean fit.
		degenerate = true
		inliers = inliers[:0]
		for i := range grid {
			mask[i] = valid[i]
			if valid[i] {
				inliers = append(inliers, ratios[i])
			}
		}
	}

	k := median(inliers)
	kStd := madScale * medianAbsDev(inliers, k)
	if !finite(k) || k <= 0 {
		return Result{}, fmt.Errorf("estimated K factor %g is non-positive", k)
	}

	used := 0
	for _, m := range mask {
		if m {
			used++
		}
	}

	return Result{
		KFactor:            k,
		KStd:               kStd,
		QMinOverlap:        lo,
		QMaxOverlap:        hi,
		PointsTotal:        len(grid),
		PointsUsed:         used,
		Grid:               grid,
		Ratios:             ratios,
		InlierMask:         mask,
		DegenerateFallback: degenerate,
	}, nil
}

// EstimateKByName resolves a registered standard and estimates against it.
func EstimateKByName(reg *standards.Registry, measured profile.Profile, name string, resolveOpts standards.ResolveOptions, opts Options) (Result, error) {
	ref, err := reg.Resolve(name, resolveOpts)
	if err != nil {
		return Result{}, err
	}
	return EstimateK(measured, ref, opts)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// median returns the interpolating median (mean of the two central order
// statistics for even-length input).
func median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return 0.5 * (sorted[n/2-1] + sorted[n/2])
}

// medianAbsDev returns median(|x - center|).
func medianAbsDev(xs []float64, center float64) float64 {
	devs := make([]float64, len(xs))
	for i, x := range xs {
		devs[i] = math.Abs(x - center)
	}
	return median(devs)
}
