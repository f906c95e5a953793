// Package subtract removes a scaled buffer/solvent curve from a sample
// curve with rigorous uncertainty propagation:
//
//	I_solute(x)     = I_sample(x) - alpha * I_buffer(x)
//	sigma_solute(x) = sqrt(sigma_sample(x)^2 + alpha^2 * sigma_buffer(x)^2)
//
// Both profiles must already share the same x grid; a mismatched grid is an
// upstream pipeline error and fails rather than silently re-interpolating.
package subtract

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/beamline-data/saxsabs/internal/monitoring"
	"github.com/beamline-data/saxsabs/internal/profile"
)

// ErrGridMismatch indicates sample and buffer profiles are not on the same
// x grid within tolerance.
var ErrGridMismatch = errors.New("sample and buffer x grids do not match")

// GridTolerance is the per-point x agreement required between sample and
// buffer grids.
const GridTolerance = 1e-8

// High-q diagnostic window: the subtracted signal should average to zero
// here if the buffer level was right.
const (
	diagQMin = 0.15
	diagQMax = 0.25
)

// Result carries the subtracted profile and the diagnostics of the
// subtraction.
type Result struct {
	Profile profile.Profile
	Alpha   float64

	// ResidualMean is the mean subtracted intensity in the high-q
	// diagnostic window; ResidualOK is false when it sits further than 3
	// standard deviations from zero. With fewer than 3 window points the
	// check is inconclusive and reported as passed.
	ResidualMean float64
	ResidualOK   bool
}

// Subtract removes alpha-scaled buffer intensity from the sample. Fails
// with ErrGridMismatch when the two x grids diverge beyond GridTolerance.
// A scale factor far outside the usual range logs an advisory (capillary
// mismatch and concentration errors are the usual culprits) but does not
// fail.
func Subtract(sample, buffer profile.Profile, alpha float64) (Result, error) {
	if !profile.GridsMatch(sample, buffer, GridTolerance) {
		return Result{}, fmt.Errorf("%w: %d vs %d points", ErrGridMismatch, sample.Len(), buffer.Len())
	}
	if alpha < 0.8 || alpha > 1.2 {
		monitoring.Logf("buffer scale alpha=%.4f is far from 1.0; this usually indicates an experimental problem", alpha)
	}

	out := subtractVectorized(sample, buffer, alpha)
	res := Result{Profile: out, Alpha: alpha}
	res.ResidualMean, res.ResidualOK = highQDiagnostic(out)
	return res, nil
}

// subtractVectorized computes the subtraction with gonum vector kernels.
// It must agree with subtractScalar to within floating-point rounding;
// the tests hold both paths to that.
func subtractVectorized(sample, buffer profile.Profile, alpha float64) profile.Profile {
	n := sample.Len()
	out := profile.Profile{
		X:    append([]float64(nil), sample.X...),
		I:    make([]float64, n),
		Err:  make([]float64, n),
		Axis: sample.Axis,
	}
	copy(out.I, sample.I)
	floats.AddScaled(out.I, -alpha, buffer.I)

	for i := 0; i < n; i++ {
		es := errOrZero(sample.Err, i)
		eb := errOrZero(buffer.Err, i)
		out.Err[i] = math.Sqrt(es*es + alpha*alpha*eb*eb)
	}
	return out
}

// subtractScalar is the dependency-free fallback path: a plain loop
// applying the identical formulas.
func subtractScalar(sample, buffer profile.Profile, alpha float64) profile.Profile {
	n := sample.Len()
	out := profile.Profile{
		X:    append([]float64(nil), sample.X...),
		I:    make([]float64, n),
		Err:  make([]float64, n),
		Axis: sample.Axis,
	}
	for i := 0; i < n; i++ {
		out.I[i] = sample.I[i] - alpha*buffer.I[i]
		es := errOrZero(sample.Err, i)
		eb := errOrZero(buffer.Err, i)
		out.Err[i] = math.Sqrt(es*es + alpha*alpha*eb*eb)
	}
	return out
}

// errOrZero treats a missing or unknown (NaN) uncertainty as zero so that
// one error-free input does not poison the propagated error.
func errOrZero(errs []float64, i int) float64 {
	if i >= len(errs) || math.IsNaN(errs[i]) {
		return 0
	}
	return errs[i]
}

// highQDiagnostic checks that the subtracted intensity averages to about
// zero in the high-q window.
func highQDiagnostic(p profile.Profile) (mean float64, ok bool) {
	var vals []float64
	for i, q := range p.X {
		if q >= diagQMin && q <= diagQMax && !math.IsNaN(p.I[i]) && !math.IsInf(p.I[i], 0) {
			vals = append(vals, p.I[i])
		}
	}
	if len(vals) < 3 {
		return 0, true
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	mean = sum / float64(len(vals))
	varSum := 0.0
	for _, v := range vals {
		varSum += (v - mean) * (v - mean)
	}
	std := math.Sqrt(varSum / float64(len(vals)))
	return mean, math.Abs(mean) < 3.0*math.Max(std, 1e-30)
}
