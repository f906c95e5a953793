// Package normalize computes monitor-based normalization factors for
// absolute-intensity conversion.
//
// Two monitor modes are supported:
//
//	rate:       the detector signal is a rate (counts/s), so the factor
//	            is exposure_time * monitor_counts * transmission;
//	integrated: the signal is already integrated over the acquisition
//	            window, so the factor is monitor_counts * transmission.
//
// Unlike the most permissive historical treatments of these inputs, a
// physically impossible value (transmission above 1, non-positive monitor
// counts) is a typed failure here, never a silent NaN.
package normalize

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/beamline-data/saxsabs/internal/header"
)

// Mode selects the monitor normalization formula.
type Mode string

// Supported normalization modes.
const (
	ModeRate       Mode = "rate"
	ModeIntegrated Mode = "integrated"
)

// ErrInvalidPhysicalValue indicates an input outside its physical bounds:
// transmission above 1, or a non-positive monitor count, exposure time, or
// thickness.
var ErrInvalidPhysicalValue = errors.New("invalid physical value")

// ErrUnknownMode indicates an unrecognized normalization mode.
var ErrUnknownMode = errors.New("unknown normalization mode")

// ParseMode normalizes a mode string, accepting any casing.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeRate:
		return ModeRate, nil
	case ModeIntegrated:
		return ModeIntegrated, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Formula returns a human-readable formula string for a mode, for display
// in diagnostics and reports.
func Formula(mode Mode) string {
	switch mode {
	case ModeRate:
		return "exp * I0 * T"
	case ModeIntegrated:
		return "I0 * T"
	default:
		return ""
	}
}

// Factor computes the normalization factor N from the header fields
// required by the mode. Monitor counts and transmission are always
// required; exposure time only for ModeRate.
func Factor(mode Mode, h header.Header) (float64, error) {
	if mode != ModeRate && mode != ModeIntegrated {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if err := h.Require(header.FieldMonitor, header.FieldTransmission); err != nil {
		return 0, err
	}

	mon := *h.MonitorCounts
	trans := *h.Transmission
	if !isFinite(mon) || mon <= 0 {
		return 0, fmt.Errorf("%w: monitor counts %g must be positive", ErrInvalidPhysicalValue, mon)
	}
	if !isFinite(trans) || trans <= 0 {
		return 0, fmt.Errorf("%w: transmission %g must be positive", ErrInvalidPhysicalValue, trans)
	}
	if trans > 1.0 {
		return 0, fmt.Errorf("%w: transmission %g exceeds 1 (physically impossible for standard absorption)", ErrInvalidPhysicalValue, trans)
	}

	switch mode {
	case ModeRate:
		if err := h.Require(header.FieldExposureTime); err != nil {
			return 0, err
		}
		exp := *h.ExposureTime
		if !isFinite(exp) || exp <= 0 {
			return 0, fmt.Errorf("%w: exposure time %g must be positive", ErrInvalidPhysicalValue, exp)
		}
		return exp * mon * trans, nil
	default: // ModeIntegrated
		return mon * trans, nil
	}
}

// ValidateThickness checks the optional sample thickness field; a present
// but non-positive thickness is a physical-value error.
func ValidateThickness(h header.Header) error {
	if h.Thickness == nil {
		return nil
	}
	if d := *h.Thickness; !isFinite(d) || d <= 0 {
		return fmt.Errorf("%w: thickness %g must be positive", ErrInvalidPhysicalValue, d)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
