package ingest

import (
	"errors"
	"math"
	"testing"

	"github.com/beamline-data/saxsabs/internal/profile"
)

func TestReadCommaWithHeader(t *testing.T) {
	text := "q,intensity,error\n0.01,100.0,1.0\n0.02,90.0,0.9\n0.03,80.0,0.8\n"
	p, err := ReadString(text)
	if err != nil {
		t.Fatalf("ReadString failed: %v", err)
	}
	if p.Len() != 3 {
		t.Fatalf("expected 3 points, got %d", p.Len())
	}
	if p.Axis != profile.MomentumTransfer {
		t.Errorf("axis = %v, want momentum transfer", p.Axis)
	}
	if p.X[0] != 0.01 || p.I[0] != 100.0 || p.Err[0] != 1.0 {
		t.Errorf("first row wrong: %v %v %v", p.X[0], p.I[0], p.Err[0])
	}
}

func TestReadWhitespaceNoHeader(t *testing.T) {
	text := "# reduced profile\n0.01 100.0 1.0\n0.02 90.0 0.9\n0.03 80.0 0.8\n"
	p, err := ReadString(text)
	if err != nil {
		t.Fatalf("ReadString failed: %v", err)
	}
	if p.Len() != 3 {
		t.Fatalf("expected 3 points, got %d", p.Len())
	}
}

func TestReadSemicolon(t *testing.T) {
	text := "0.01;100.0\n0.02;90.0\n0.03;80.0\n"
	p, err := ReadString(text)
	if err != nil {
		t.Fatalf("ReadString failed: %v", err)
	}
	if p.Len() != 3 {
		t.Fatal("expected 3 points")
	}
	// Two columns only: no uncertainties.
	if !math.IsNaN(p.Err[0]) {
		t.Errorf("error column should be unknown (NaN), got %v", p.Err[0])
	}
}

func TestReadShuffledColumnsByHeader(t *testing.T) {
	text := "intensity,sigma,q\n100.0,1.0,0.01\n90.0,0.9,0.02\n80.0,0.8,0.03\n"
	p, err := ReadString(text)
	if err != nil {
		t.Fatalf("ReadString failed: %v", err)
	}
	if p.X[0] != 0.01 || p.I[0] != 100.0 || p.Err[0] != 1.0 {
		t.Errorf("column inference wrong: x=%v i=%v err=%v", p.X[0], p.I[0], p.Err[0])
	}
}

func TestReadChiAxis(t *testing.T) {
	text := "chi,i\n10.0,5.0\n20.0,5.1\n30.0,5.2\n"
	p, err := ReadString(text)
	if err != nil {
		t.Fatalf("ReadString failed: %v", err)
	}
	if p.Axis != profile.AzimuthalAngle {
		t.Errorf("axis = %v, want azimuthal angle", p.Axis)
	}
}

func TestReadMergesDuplicateRows(t *testing.T) {
	text := "0.01 10.0 3.0\n0.01 12.0 4.0\n0.02 9.0 1.0\n0.03 8.0 1.0\n"
	p, err := ReadString(text)
	if err != nil {
		t.Fatalf("ReadString failed: %v", err)
	}
	if p.Len() != 3 {
		t.Fatalf("expected 3 points after merge, got %d", p.Len())
	}
	if math.Abs(p.Err[0]-2.5) > 1e-12 {
		t.Errorf("merged error = %g, want 2.5 (quadrature mean of 3 and 4)", p.Err[0])
	}
	if math.Abs(p.I[0]-11.0) > 1e-12 {
		t.Errorf("merged intensity = %g, want 11.0", p.I[0])
	}
}

func TestReadRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"free text", "this is not a profile\nat all\nreally\n"},
		{"single column", "0.01\n0.02\n0.03\n"},
		{"empty", "# only comments\n"},
		{"ragged", "0.01,1.0\n0.02,2.0,0.2\n0.03,3.0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadString(tt.text)
			if !errors.Is(err, ErrFormat) {
				t.Fatalf("expected ErrFormat, got %v", err)
			}
		})
	}
}

func TestScanMetadata(t *testing.T) {
	text := "# Exposure_Time: 1.5 s\n" +
		"#monitor = 250000\n" +
		"# just a note without separator\n" +
		"# : empty key ignored\n" +
		"0.01 12.0 0.4\n" +
		"0.02 11.0 0.4\n"

	meta := ScanMetadata(text)
	if len(meta) != 2 {
		t.Fatalf("expected 2 metadata entries, got %d: %v", len(meta), meta)
	}
	if meta["Exposure_Time"] != "1.5 s" {
		t.Errorf("Exposure_Time = %q", meta["Exposure_Time"])
	}
	if meta["monitor"] != "250000" {
		t.Errorf("monitor = %q", meta["monitor"])
	}
}
