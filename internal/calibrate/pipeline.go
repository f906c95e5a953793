package calibrate

import (
	"fmt"

	"github.com/beamline-data/saxsabs/internal/header"
	"github.com/beamline-data/saxsabs/internal/normalize"
	"github.com/beamline-data/saxsabs/internal/profile"
	"github.com/beamline-data/saxsabs/internal/standards"
)

// Config drives one per-profile calibration transform.
type Config struct {
	Standard string         // registered standard name
	Mode     normalize.Mode // monitor normalization mode
	Options  Options        // estimation window

	// Resolve parametrizes standard resolution (water temperature etc.).
	// When Resolve.TemperatureC is nil, the header temperature is used if
	// present.
	Resolve standards.ResolveOptions

	// DivideByThickness additionally scales by 1/thickness (cm) when the
	// header carries one, for pipelines whose reference was measured
	// without the sample path length folded in.
	DivideByThickness bool
}

// Transform converts one reduced measured profile to absolute scale:
// monitor normalization, K-factor estimation against the configured
// standard, then scaling. It is a pure function of its inputs plus the
// read-only registry, so batch callers may run transforms for different
// profiles concurrently.
func Transform(reg *standards.Registry, measured profile.Profile, h header.Header, cfg Config) (profile.Profile, Result, error) {
	n, err := normalize.Factor(cfg.Mode, h)
	if err != nil {
		return profile.Profile{}, Result{}, err
	}
	if err := normalize.ValidateThickness(h); err != nil {
		return profile.Profile{}, Result{}, err
	}

	normalized := measured.Scaled(1.0 / n)
	if cfg.DivideByThickness {
		if err := h.Require(header.FieldThickness); err != nil {
			return profile.Profile{}, Result{}, fmt.Errorf("thickness division requested: %w", err)
		}
		normalized = normalized.Scaled(1.0 / *h.Thickness)
	}

	resolve := cfg.Resolve
	if resolve.TemperatureC == nil && h.Temperature != nil {
		resolve.TemperatureC = h.Temperature
	}

	res, err := EstimateKByName(reg, normalized, cfg.Standard, resolve, cfg.Options)
	if err != nil {
		return profile.Profile{}, Result{}, err
	}

	abs := normalized.Scaled(res.KFactor)
	return abs, res, nil
}
