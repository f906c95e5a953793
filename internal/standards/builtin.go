package standards

import (
	"fmt"

	"gonum.org/v1/gonum/interp"
)

// RecommendedSRM3600Window is the q window (1/angstrom) recommended by the
// SRM 3600 certificate for K-factor comparison.
var RecommendedSRM3600Window = [2]float64{0.01, 0.20}

// srm3600Table returns the NIST SRM 3600 glassy carbon certificate data:
// differential scattering cross-section (1/cm/sr) versus q (1/angstrom).
// Source: Allen et al. (2017) J. Appl. Cryst. 50, 462-474; NIST SP260-185.
func srm3600Table() FixedTable {
	return FixedTable{
		Name: "NIST SRM 3600 (Glassy Carbon)",
		Grid: []float64{
			0.008, 0.010, 0.020, 0.030, 0.040,
			0.050, 0.060, 0.080, 0.100, 0.120,
			0.150, 0.180, 0.200, 0.220, 0.250,
		},
		Values: []float64{
			35.0, 34.2, 30.8, 28.8, 27.5,
			26.8, 26.3, 25.4, 23.6, 20.8,
			15.8, 10.9, 8.4, 6.5, 4.2,
		},
		Citation: "Allen et al. (2017) J. Appl. Cryst. 50, 462-474; NIST SP260-185",
	}
}

// Water model constants. The reference cross-section at 20 degC is from
// Orthaber, Bergmann & Glatter (2000) J. Appl. Cryst. 33, 218-225.
const (
	waterRefTempC = 20.0
	waterRefDSDW  = 0.01632 // 1/cm at 20 degC

	// Default synthesized grid for the flat water curve.
	waterGridMin    = 0.005
	waterGridMax    = 0.50
	waterGridPoints = 100
)

// Isothermal compressibility of water (1e-10 1/Pa) at selected
// temperatures (degC), CRC Handbook 97th ed.
var (
	waterKappaTempsC = []float64{4, 5, 10, 15, 20, 25, 30, 35, 40}
	waterKappaValues = []float64{5.068, 4.920, 4.788, 4.524, 4.591, 4.524, 4.475, 4.422, 4.399}
)

// WaterDSDW returns the absolute differential scattering cross-section of
// water (1/cm) at the given temperature. The flat level scales with the
// product of isothermal compressibility and absolute temperature relative
// to the 20 degC reference condition. Valid range 4..40 degC.
func WaterDSDW(temperatureC float64) (float64, error) {
	if temperatureC < waterKappaTempsC[0] || temperatureC > waterKappaTempsC[len(waterKappaTempsC)-1] {
		return 0, fmt.Errorf("water temperature %.1f degC outside valid range 4-40 degC", temperatureC)
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(waterKappaTempsC, waterKappaValues); err != nil {
		return 0, fmt.Errorf("water compressibility table: %w", err)
	}
	kappa := pl.Predict(temperatureC)
	kappaRef := pl.Predict(waterRefTempC)

	tK := temperatureC + 273.15
	tRefK := waterRefTempC + 273.15
	return waterRefDSDW * (kappa * tK) / (kappaRef * tRefK), nil
}

// WaterModel is the parametric water standard: its scattering is flat
// across the SAXS regime, so Resolve synthesizes a constant curve at the
// temperature-corrected cross-section level.
type WaterModel struct{}

// Resolve evaluates the water model. Options select the temperature
// (default 20 degC) and the synthesized grid extent.
func (WaterModel) Resolve(opts ResolveOptions) (Reference, error) {
	tempC := waterRefTempC
	if opts.TemperatureC != nil {
		tempC = *opts.TemperatureC
	}
	level, err := WaterDSDW(tempC)
	if err != nil {
		return Reference{}, err
	}

	lo, hi, n := opts.GridMin, opts.GridMax, opts.GridPoints
	if lo <= 0 {
		lo = waterGridMin
	}
	if hi <= lo {
		hi = waterGridMax
	}
	if n < 2 {
		n = waterGridPoints
	}

	ref := Reference{
		Name:     fmt.Sprintf("Water (H2O) %.1f degC", tempC),
		Grid:     make([]float64, n),
		Values:   make([]float64, n),
		Citation: "Orthaber, Bergmann & Glatter (2000) J. Appl. Cryst. 33, 218-225",
	}
	step := (hi - lo) / float64(n-1)
	for i := 0; i < n; i++ {
		ref.Grid[i] = lo + float64(i)*step
		ref.Values[i] = level
	}
	return ref, nil
}
