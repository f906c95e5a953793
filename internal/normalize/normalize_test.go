package normalize

import (
	"errors"
	"math"
	"testing"

	"github.com/beamline-data/saxsabs/internal/header"
)

func hdr(exp, mon, trans float64) header.Header {
	h := header.Header{}
	if !math.IsNaN(exp) {
		h.ExposureTime = &exp
	}
	if !math.IsNaN(mon) {
		h.MonitorCounts = &mon
	}
	if !math.IsNaN(trans) {
		h.Transmission = &trans
	}
	return h
}

func TestFactorRate(t *testing.T) {
	n, err := Factor(ModeRate, hdr(1.0, 100000, 0.8))
	if err != nil {
		t.Fatalf("Factor failed: %v", err)
	}
	if n != 80000.0 {
		t.Errorf("rate factor = %g, want exactly 80000.0", n)
	}
}

func TestFactorIntegratedIgnoresExposure(t *testing.T) {
	// Integrated mode: exposure time plays no role, need not be present.
	n, err := Factor(ModeIntegrated, hdr(math.NaN(), 100000, 0.8))
	if err != nil {
		t.Fatalf("Factor failed: %v", err)
	}
	if n != 80000.0 {
		t.Errorf("integrated factor = %g, want 80000.0", n)
	}
}

func TestFactorRejectsUnphysicalValues(t *testing.T) {
	tests := []struct {
		name string
		mode Mode
		h    header.Header
	}{
		{"transmission above 1", ModeRate, hdr(1, 100000, 1.2)},
		{"zero transmission", ModeRate, hdr(1, 100000, 0)},
		{"negative monitor", ModeRate, hdr(1, -5, 0.8)},
		{"zero monitor", ModeIntegrated, hdr(math.NaN(), 0, 0.8)},
		{"zero exposure in rate mode", ModeRate, hdr(0, 100000, 0.8)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Factor(tt.mode, tt.h)
			if !errors.Is(err, ErrInvalidPhysicalValue) {
				t.Fatalf("expected ErrInvalidPhysicalValue, got %v", err)
			}
		})
	}
}

func TestFactorTransmissionExactlyOne(t *testing.T) {
	n, err := Factor(ModeRate, hdr(2.0, 1000, 1.0))
	if err != nil {
		t.Fatalf("transmission of exactly 1.0 must succeed: %v", err)
	}
	if n != 2000.0 {
		t.Errorf("factor = %g, want 2000.0", n)
	}
}

func TestFactorMissingRequiredField(t *testing.T) {
	_, err := Factor(ModeRate, hdr(math.NaN(), 100000, 0.8))
	if err == nil {
		t.Fatal("rate mode without exposure time should fail")
	}
	if errors.Is(err, ErrInvalidPhysicalValue) {
		t.Error("a missing field is a requirement failure, not a physical-value failure")
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("Rate"); err != nil || m != ModeRate {
		t.Errorf("ParseMode(Rate) = %v, %v", m, err)
	}
	if _, err := ParseMode("bogus"); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("expected ErrUnknownMode, got %v", err)
	}
}

func TestValidateThickness(t *testing.T) {
	d := 0.15
	if err := ValidateThickness(header.Header{Thickness: &d}); err != nil {
		t.Errorf("positive thickness should pass: %v", err)
	}
	z := 0.0
	if err := ValidateThickness(header.Header{Thickness: &z}); !errors.Is(err, ErrInvalidPhysicalValue) {
		t.Errorf("zero thickness should fail with ErrInvalidPhysicalValue, got %v", err)
	}
	if err := ValidateThickness(header.Header{}); err != nil {
		t.Errorf("absent thickness is not an error: %v", err)
	}
}

func TestFormula(t *testing.T) {
	if Formula(ModeRate) != "exp * I0 * T" {
		t.Errorf("rate formula = %q", Formula(ModeRate))
	}
	if Formula(ModeIntegrated) != "I0 * T" {
		t.Errorf("integrated formula = %q", Formula(ModeIntegrated))
	}
}
