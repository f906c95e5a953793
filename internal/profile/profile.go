// Package profile provides the shared 1D scattering profile representation
// used throughout the calibration pipeline.
package profile

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// AxisSemantics identifies what the x column of a profile means. Calibrated
// export requires MomentumTransfer; azimuthal (chi) profiles must never be
// written into a momentum-transfer schema.
type AxisSemantics string

// Axis semantics values
const (
	MomentumTransfer AxisSemantics = "momentum_transfer"
	AzimuthalAngle   AxisSemantics = "azimuthal_angle"
	OtherAxis        AxisSemantics = "other"
)

// DefaultMergeTolerance is the x spacing below which two rows are treated as
// duplicates of the same grid point.
const DefaultMergeTolerance = 1e-12

// ErrInsufficientPoints indicates a profile has too few valid points to be
// usable after cleaning.
var ErrInsufficientPoints = errors.New("insufficient valid profile points")

// Profile is an ordered sequence of (x, intensity, error) triples plus an
// axis-semantics tag. After Regularize, X is strictly increasing and all
// three slices have equal length. A NaN entry in Err means the uncertainty
// for that point is unknown.
type Profile struct {
	X    []float64
	I    []float64
	Err  []float64
	Axis AxisSemantics
}

// Len returns the number of points in the profile.
func (p Profile) Len() int { return len(p.X) }

// Clone returns a deep copy of the profile.
func (p Profile) Clone() Profile {
	out := Profile{
		X:    append([]float64(nil), p.X...),
		I:    append([]float64(nil), p.I...),
		Err:  append([]float64(nil), p.Err...),
		Axis: p.Axis,
	}
	return out
}

// Scaled returns a copy of the profile with intensity and error multiplied
// by factor. The x grid and axis semantics are unchanged.
func (p Profile) Scaled(factor float64) Profile {
	out := p.Clone()
	for i := range out.I {
		out.I[i] *= factor
		if !math.IsNaN(out.Err[i]) {
			out.Err[i] *= factor
		}
	}
	return out
}

// Validate checks the structural invariants: equal slice lengths and
// strictly increasing x.
func (p Profile) Validate() error {
	if len(p.X) != len(p.I) || (p.Err != nil && len(p.Err) != len(p.X)) {
		return fmt.Errorf("profile column length mismatch: x=%d i=%d err=%d", len(p.X), len(p.I), len(p.Err))
	}
	for i := 1; i < len(p.X); i++ {
		if !(p.X[i] > p.X[i-1]) {
			return fmt.Errorf("profile x not strictly increasing at index %d (%g then %g)", i, p.X[i-1], p.X[i])
		}
	}
	return nil
}

// point pairs a row with its error for sorting during regularization.
type point struct {
	x, y, e float64
}

// Regularize cleans a raw profile: non-finite x or intensity rows are
// dropped, rows are sorted by ascending x, and rows whose x values agree
// within tol are merged. Merged intensity is the arithmetic mean of the
// contributing rows; merged error is the quadrature mean
// sqrt(sum(sigma_i^2))/n, which is the propagated uncertainty of the mean
// for independent measurements. Returns ErrInsufficientPoints when fewer
// than minPoints unique points survive.
func Regularize(p Profile, tol float64, minPoints int) (Profile, error) {
	if tol <= 0 {
		tol = DefaultMergeTolerance
	}
	if minPoints < 1 {
		minPoints = 1
	}

	pts := make([]point, 0, len(p.X))
	for i := range p.X {
		if !math.IsInf(p.X[i], 0) && !math.IsNaN(p.X[i]) &&
			!math.IsInf(p.I[i], 0) && !math.IsNaN(p.I[i]) {
			e := math.NaN()
			if i < len(p.Err) {
				e = p.Err[i]
			}
			pts = append(pts, point{p.X[i], p.I[i], e})
		}
	}
	if len(pts) < minPoints {
		return Profile{}, fmt.Errorf("%w: %d finite points, need %d", ErrInsufficientPoints, len(pts), minPoints)
	}

	sort.Slice(pts, func(i, j int) bool { return pts[i].x < pts[j].x })

	out := Profile{Axis: p.Axis}
	for i := 0; i < len(pts); {
		j := i + 1
		for j < len(pts) && pts[j].x-pts[i].x <= tol {
			j++
		}
		group := pts[i:j]
		out.X = append(out.X, group[0].x)
		out.I = append(out.I, meanIntensity(group))
		out.Err = append(out.Err, quadratureMeanError(group))
		i = j
	}

	if out.Len() < minPoints {
		return Profile{}, fmt.Errorf("%w: %d unique points, need %d", ErrInsufficientPoints, out.Len(), minPoints)
	}
	return out, nil
}

func meanIntensity(group []point) float64 {
	sum := 0.0
	for _, g := range group {
		sum += g.y
	}
	return sum / float64(len(group))
}

// quadratureMeanError combines duplicate-row uncertainties as
// sqrt(sum(sigma_i^2))/n. Rows with unknown (NaN) errors make the merged
// error unknown as well.
func quadratureMeanError(group []point) float64 {
	sumSq := 0.0
	for _, g := range group {
		if math.IsNaN(g.e) {
			return math.NaN()
		}
		sumSq += g.e * g.e
	}
	return math.Sqrt(sumSq) / float64(len(group))
}

// GridsMatch reports whether two profiles share the same x grid within tol
// at every point. Length disagreement always counts as a mismatch.
func GridsMatch(a, b Profile, tol float64) bool {
	if a.Len() != b.Len() {
		return false
	}
	for i := range a.X {
		if math.Abs(a.X[i]-b.X[i]) > tol {
			return false
		}
	}
	return true
}
