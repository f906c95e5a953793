// Package export serializes calibrated profiles to interoperable formats:
// plain delimited text, canSAS 1D XML, and NXcanSAS HDF5.
//
// Standards-conformant exports are guarded: both schemas declare
// momentum-transfer x units, so a profile tagged with any other axis
// semantics (azimuthal chi in particular) is refused rather than silently
// written with wrong units.
package export

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/beamline-data/saxsabs/internal/profile"
)

// ErrUnitMismatch indicates an attempt to export a profile whose x axis is
// not momentum transfer into a momentum-transfer schema.
var ErrUnitMismatch = errors.New("profile axis semantics are not momentum transfer")

// Metadata carries the optional descriptive block written alongside the
// data arrays. Zero-valued fields are omitted or defaulted.
type Metadata struct {
	Title          string
	Run            string // defaults to a fresh UUID when empty
	SampleName     string
	InstrumentName string
	DetectorName   string
	ProcessName    string
	WavelengthA    float64 // angstrom; 0 means unknown
	SDDMeters      float64 // sample-detector distance; 0 means unknown
}

// withDefaults fills fallback values for the required metadata fields.
func (m Metadata) withDefaults() Metadata {
	if m.Title == "" {
		m.Title = "SAXS profile"
	}
	if m.Run == "" {
		m.Run = uuid.New().String()
	}
	if m.SampleName == "" {
		m.SampleName = "unknown"
	}
	if m.ProcessName == "" {
		m.ProcessName = "saxsabs absolute calibration"
	}
	return m
}

// Guard validates a profile for standards-conformant export: momentum
// transfer semantics and structural integrity.
func Guard(p profile.Profile) error {
	if p.Axis != profile.MomentumTransfer {
		return fmt.Errorf("%w: got %q", ErrUnitMismatch, p.Axis)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if p.Len() == 0 {
		return fmt.Errorf("refusing to export empty profile")
	}
	return nil
}
