package calibrate

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamline-data/saxsabs/internal/header"
	"github.com/beamline-data/saxsabs/internal/normalize"
	"github.com/beamline-data/saxsabs/internal/profile"
	"github.com/beamline-data/saxsabs/internal/standards"
)

// denseReference builds a synthetic reference curve on a dense grid.
func denseReference(n int) standards.Reference {
	ref := standards.Reference{Name: "synthetic"}
	for i := 0; i < n; i++ {
		q := 0.01 + float64(i)*0.01
		ref.Grid = append(ref.Grid, q)
		ref.Values = append(ref.Values, 100.0/(1.0+20.0*q))
	}
	return ref
}

// measuredFrom scales a reference pointwise by 1/k to fabricate a measured
// profile whose true K-factor is k.
func measuredFrom(ref standards.Reference, k float64) profile.Profile {
	p := profile.Profile{Axis: profile.MomentumTransfer}
	for i := range ref.Grid {
		p.X = append(p.X, ref.Grid[i])
		p.I = append(p.I, ref.Values[i]/k)
		p.Err = append(p.Err, 0.01)
	}
	return p
}

func TestEstimateKNoiseFree(t *testing.T) {
	ref := denseReference(20)
	meas := measuredFrom(ref, 2.0)

	res, err := EstimateK(meas, ref, Options{})
	require.NoError(t, err)

	assert.InDelta(t, 2.0, res.KFactor, 1e-9, "noise-free K should be exact")
	assert.Equal(t, res.PointsTotal, res.PointsUsed, "all overlap points should be inliers")
	assert.Equal(t, 20, res.PointsTotal)
	assert.False(t, res.DegenerateFallback)
	assert.InDelta(t, 0.0, res.KStd, 1e-12, "noise-free dispersion should vanish")
	for i, in := range res.InlierMask {
		assert.True(t, in, "point %d should be an inlier", i)
	}
}

func TestEstimateKRejectsCorruptedPoint(t *testing.T) {
	ref := denseReference(21)
	meas := measuredFrom(ref, 2.0)
	// Corrupt one measured point so its ratio lands 100x above the rest.
	meas.I[10] /= 100.0

	res, err := EstimateK(meas, ref, Options{})
	require.NoError(t, err)

	assert.InDelta(t, 2.0, res.KFactor, 1e-6, "corrupted point must not move K")
	assert.False(t, res.InlierMask[10], "corrupted point should be masked out")
	assert.Equal(t, res.PointsTotal-1, res.PointsUsed)
	assert.False(t, res.DegenerateFallback)
}

func TestEstimateKRobustToNoise(t *testing.T) {
	ref := denseReference(30)
	meas := measuredFrom(ref, 2.0)
	// Deterministic +-0.5% multiplicative ripple.
	for i := range meas.I {
		meas.I[i] *= 1.0 + 0.005*math.Sin(float64(i)*1.7)
	}

	res, err := EstimateK(meas, ref, Options{})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, res.KFactor, 0.02)
	assert.Greater(t, res.KStd, 0.0, "noisy data must yield nonzero data-derived dispersion")
}

func TestEstimateKWindow(t *testing.T) {
	ref := denseReference(20) // grid 0.01..0.20
	meas := measuredFrom(ref, 3.0)

	res, err := EstimateK(meas, ref, Options{QMin: 0.045, QMax: 0.105})
	require.NoError(t, err)
	assert.Equal(t, 6, res.PointsTotal, "window 0.045..0.105 holds 6 grid points")
	assert.GreaterOrEqual(t, res.QMinOverlap, 0.045)
	assert.LessOrEqual(t, res.QMaxOverlap, 0.105)
	assert.InDelta(t, 3.0, res.KFactor, 1e-9)
}

func TestEstimateKInsufficientOverlap(t *testing.T) {
	ref := denseReference(20)

	meas := profile.Profile{
		X:   []float64{1.0, 1.1, 1.2, 1.3},
		I:   []float64{5, 4, 3, 2},
		Err: []float64{1, 1, 1, 1},
	}
	_, err := EstimateK(meas, ref, Options{})
	assert.ErrorIs(t, err, ErrInsufficientOverlap, "disjoint domains")

	meas2 := measuredFrom(ref, 2.0)
	_, err = EstimateK(meas2, ref, Options{QMin: 0.012, QMax: 0.013})
	assert.ErrorIs(t, err, ErrInsufficientOverlap, "window excludes nearly everything")
}

func TestEstimateKBelowPositiveFloor(t *testing.T) {
	ref := denseReference(10)
	meas := measuredFrom(ref, 2.0)
	for i := range meas.I {
		meas.I[i] = 1e-12 // below the positive floor everywhere
	}
	_, err := EstimateK(meas, ref, Options{})
	assert.ErrorIs(t, err, ErrInsufficientOverlap)
}

func TestEstimateKDegenerateFallback(t *testing.T) {
	// Three wildly spread ratios: the MAD filter keeps fewer than the
	// minimum, so the estimator must fall back to the full set and say so.
	ref := standards.Reference{
		Name:   "spread",
		Grid:   []float64{0.01, 0.02, 0.03},
		Values: []float64{1.0, 5.0, 100.0},
	}
	meas := profile.Profile{
		X:   []float64{0.01, 0.02, 0.03},
		I:   []float64{1.0, 1.0, 1.0},
		Err: []float64{0.1, 0.1, 0.1},
	}
	res, err := EstimateK(meas, ref, Options{})
	require.NoError(t, err)
	assert.True(t, res.DegenerateFallback, "fallback must be reported, not silent")
	assert.Equal(t, 3, res.PointsUsed)
	assert.InDelta(t, 5.0, res.KFactor, 1e-12, "median of the full ratio set")
}

func TestEstimateKByNameUnknownStandard(t *testing.T) {
	reg := standards.NewRegistry()
	meas := measuredFrom(denseReference(10), 2.0)
	_, err := EstimateKByName(reg, meas, "Nope", standards.ResolveOptions{}, Options{})
	assert.ErrorIs(t, err, standards.ErrUnknownStandard)
}

func TestEstimateKAgainstWaterModel(t *testing.T) {
	reg := standards.NewRegistry()
	ref, err := reg.Resolve("Water", standards.ResolveOptions{})
	require.NoError(t, err)

	meas := measuredFrom(ref, 4.0)
	res, err := EstimateKByName(reg, meas, "Water", standards.ResolveOptions{}, Options{})
	require.NoError(t, err)
	assert.InDelta(t, 4.0, res.KFactor, 1e-9)
	// KStd must be data-derived for the flat standard too, not pinned.
	assert.InDelta(t, 0.0, res.KStd, 1e-12)
}

func TestTransformEndToEnd(t *testing.T) {
	reg := standards.NewRegistry()
	ref, err := reg.Resolve("SRM3600", standards.ResolveOptions{})
	require.NoError(t, err)

	// Fabricate a raw measured profile: absolute curve divided by K and
	// multiplied by the normalization factor N.
	const trueK = 2.5
	exp, mon, trans := 1.0, 100000.0, 0.8
	h := header.Header{ExposureTime: &exp, MonitorCounts: &mon, Transmission: &trans}
	n := exp * mon * trans

	raw := profile.Profile{Axis: profile.MomentumTransfer}
	for i := range ref.Grid {
		raw.X = append(raw.X, ref.Grid[i])
		raw.I = append(raw.I, ref.Values[i]/trueK*n)
		raw.Err = append(raw.Err, 0.01*n)
	}

	abs, res, err := Transform(reg, raw, h, Config{
		Standard: "SRM3600",
		Mode:     normalize.ModeRate,
	})
	require.NoError(t, err)
	assert.InDelta(t, trueK, res.KFactor, 1e-9)
	// The calibrated profile should reproduce the certificate curve.
	for i := range ref.Grid {
		assert.InDelta(t, ref.Values[i], abs.I[i], 1e-6, "point %d", i)
	}
	assert.Equal(t, profile.MomentumTransfer, abs.Axis)
}

func TestTransformPropagatesNormalizationFailure(t *testing.T) {
	reg := standards.NewRegistry()
	exp, mon, trans := 1.0, 100000.0, 1.2
	h := header.Header{ExposureTime: &exp, MonitorCounts: &mon, Transmission: &trans}
	meas := measuredFrom(denseReference(10), 2.0)

	_, _, err := Transform(reg, meas, h, Config{Standard: "SRM3600", Mode: normalize.ModeRate})
	if !errors.Is(err, normalize.ErrInvalidPhysicalValue) {
		t.Fatalf("expected ErrInvalidPhysicalValue, got %v", err)
	}
}
