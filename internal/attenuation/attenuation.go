// Package attenuation computes composition- and energy-dependent linear
// attenuation coefficients:
//
//	mu = rho * sum_i( w_i * (mu/rho)_i )
//
// Per-element mass attenuation coefficients come from an injected
// cross-section provider; this package owns only composition handling and
// the mixing rule.
package attenuation

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// ErrComposition indicates a malformed composition string or a weight
// fraction set violating its constraints.
var ErrComposition = errors.New("invalid composition")

// ErrPresetExists indicates an attempt to register a preset under a name
// already taken; presets are additive and shadowing is a configuration
// error.
var ErrPresetExists = errors.New("material preset already registered")

// DefaultSumTolerance is the allowed deviation of the weight-fraction sum
// from 1.0.
const DefaultSumTolerance = 1e-3

// LookupFunc is the injected cross-section capability: mass attenuation
// coefficient mu/rho (cm^2/g) for an element symbol at a photon energy in
// keV.
type LookupFunc func(element string, energyKeV float64) (float64, error)

// Result of a linear attenuation calculation.
type Result struct {
	MuLinear      float64            // linear attenuation coefficient (1/cm)
	MuRho         float64            // mass attenuation of the mixture (cm^2/g)
	Composition   map[string]float64 // element -> weight fraction
	Contributions map[string]float64 // element -> w_i * (mu/rho)_i (cm^2/g)
	Density       float64            // g/cm^3
	EnergyKeV     float64
}

var elementToken = regexp.MustCompile(`^[A-Z][a-z]?$`)

// ParseComposition parses "Element:fraction,Element:fraction,..." into a
// weight-fraction map. When every value exceeds 1 and the sum is near 100
// the values are taken as weight percent and divided by 100. After percent
// normalization each fraction must lie in (0,1] and the sum must agree
// with 1.0 within sumTol (<=0 selects DefaultSumTolerance).
func ParseComposition(text string, sumTol float64) (map[string]float64, error) {
	if sumTol <= 0 {
		sumTol = DefaultSumTolerance
	}
	comp := make(map[string]float64)
	sum := 0.0
	for _, tok := range strings.Split(text, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		parts := strings.SplitN(tok, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: token %q is not Element:fraction", ErrComposition, tok)
		}
		elem := strings.TrimSpace(parts[0])
		if !elementToken.MatchString(elem) {
			return nil, fmt.Errorf("%w: %q is not an element symbol", ErrComposition, elem)
		}
		frac, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: fraction %q for %s is not numeric", ErrComposition, parts[1], elem)
		}
		if _, dup := comp[elem]; dup {
			return nil, fmt.Errorf("%w: element %s listed twice", ErrComposition, elem)
		}
		comp[elem] = frac
		sum += frac
	}
	if len(comp) == 0 {
		return nil, fmt.Errorf("%w: no Element:fraction tokens in %q", ErrComposition, text)
	}

	// Weight-percent notation: all values above 1 and summing to ~100.
	if allAbove(comp, 1.0) && math.Abs(sum-100.0) < 5.0 {
		for k, v := range comp {
			comp[k] = v / 100.0
		}
		sum /= 100.0
	}

	for elem, frac := range comp {
		if frac <= 0 || frac > 1 {
			return nil, fmt.Errorf("%w: fraction %g for %s outside (0,1]", ErrComposition, frac, elem)
		}
	}
	if math.Abs(sum-1.0) > sumTol {
		return nil, fmt.Errorf("%w: weight fractions sum to %.4f, want 1.0 within %g", ErrComposition, sum, sumTol)
	}
	return comp, nil
}

func allAbove(comp map[string]float64, limit float64) bool {
	for _, v := range comp {
		if v <= limit {
			return false
		}
	}
	return true
}

// Calculate computes the bulk linear attenuation coefficient of a mixture.
func Calculate(comp map[string]float64, density, energyKeV float64, lookup LookupFunc) (Result, error) {
	if lookup == nil {
		return Result{}, fmt.Errorf("attenuation: nil cross-section lookup")
	}
	if len(comp) == 0 {
		return Result{}, fmt.Errorf("%w: empty composition", ErrComposition)
	}
	if density <= 0 {
		return Result{}, fmt.Errorf("attenuation: density %g must be positive", density)
	}
	if energyKeV <= 0 {
		return Result{}, fmt.Errorf("attenuation: energy %g keV must be positive", energyKeV)
	}

	// Deterministic iteration keeps lookup errors stable.
	elems := make([]string, 0, len(comp))
	for e := range comp {
		elems = append(elems, e)
	}
	sort.Strings(elems)

	contrib := make(map[string]float64, len(comp))
	muRho := 0.0
	for _, elem := range elems {
		v, err := lookup(elem, energyKeV)
		if err != nil {
			return Result{}, fmt.Errorf("mass attenuation lookup for %s at %g keV: %w", elem, energyKeV, err)
		}
		c := comp[elem] * v
		contrib[elem] = c
		muRho += c
	}

	out := Result{
		MuLinear:      muRho * density,
		MuRho:         muRho,
		Composition:   make(map[string]float64, len(comp)),
		Contributions: contrib,
		Density:       density,
		EnergyKeV:     energyKeV,
	}
	for k, v := range comp {
		out.Composition[k] = v
	}
	return out, nil
}

// CalculateFromString parses a composition string and computes the bulk
// attenuation in one step.
func CalculateFromString(text string, density, energyKeV float64, lookup LookupFunc) (Result, error) {
	comp, err := ParseComposition(text, 0)
	if err != nil {
		return Result{}, err
	}
	return Calculate(comp, density, energyKeV, lookup)
}

// Preset couples a named material to its default composition and density.
type Preset struct {
	Name        string
	Composition map[string]float64
	Density     float64 // g/cm^3
}

// presetLibrary is populated once with the built-ins; RegisterPreset
// serializes additions.
var (
	presetMu      sync.RWMutex
	presetLibrary = map[string]Preset{
		"Ti-6Al-4V": {"Ti-6Al-4V (Grade 5)", map[string]float64{"Ti": 0.90, "Al": 0.06, "V": 0.04}, 4.43},
		"SS304":     {"Stainless Steel 304", map[string]float64{"Fe": 0.69, "Cr": 0.19, "Ni": 0.10, "Mn": 0.02}, 7.93},
		"SS316L":    {"Stainless Steel 316L", map[string]float64{"Fe": 0.65, "Cr": 0.17, "Ni": 0.12, "Mo": 0.025, "Mn": 0.02, "Si": 0.0075}, 7.99},
		"Al-7075":   {"Al 7075", map[string]float64{"Al": 0.895, "Zn": 0.058, "Mg": 0.025, "Cu": 0.016, "Cr": 0.002}, 2.81},
		"Pure-Fe":   {"Pure Fe", map[string]float64{"Fe": 1.0}, 7.874},
		"Pure-Cu":   {"Pure Cu", map[string]float64{"Cu": 1.0}, 8.96},
		"Pure-Ti":   {"Pure Ti", map[string]float64{"Ti": 1.0}, 4.506},
		"Pure-Al":   {"Pure Al", map[string]float64{"Al": 1.0}, 2.70},
		"H2O":       {"Water (H2O)", map[string]float64{"H": 0.1119, "O": 0.8881}, 1.00},
		"SiO2":      {"SiO2 (quartz capillary)", map[string]float64{"Si": 0.4674, "O": 0.5326}, 2.20},
		"Kapton":    {"Kapton (polyimide)", map[string]float64{"C": 0.6911, "H": 0.0265, "N": 0.0733, "O": 0.2091}, 1.42},
	}
)

// LookupPreset returns the preset registered under key.
func LookupPreset(key string) (Preset, bool) {
	presetMu.RLock()
	defer presetMu.RUnlock()
	p, ok := presetLibrary[key]
	if !ok {
		return Preset{}, false
	}
	comp := make(map[string]float64, len(p.Composition))
	for k, v := range p.Composition {
		comp[k] = v
	}
	return Preset{Name: p.Name, Composition: comp, Density: p.Density}, true
}

// PresetKeys returns the sorted preset keys.
func PresetKeys() []string {
	presetMu.RLock()
	defer presetMu.RUnlock()
	keys := make([]string, 0, len(presetLibrary))
	for k := range presetLibrary {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RegisterPreset adds a user material. Name collisions with built-in or
// previously registered presets fail with ErrPresetExists; silently
// shadowing a preset is never allowed.
func RegisterPreset(key string, p Preset) error {
	if key == "" || len(p.Composition) == 0 || p.Density <= 0 {
		return fmt.Errorf("preset %q requires a composition and a positive density", key)
	}
	presetMu.Lock()
	defer presetMu.Unlock()
	if _, exists := presetLibrary[key]; exists {
		return fmt.Errorf("%w: %q", ErrPresetExists, key)
	}
	comp := make(map[string]float64, len(p.Composition))
	for k, v := range p.Composition {
		comp[k] = v
	}
	presetLibrary[key] = Preset{Name: p.Name, Composition: comp, Density: p.Density}
	return nil
}
