// Package preflight scores batch run readiness before calibration starts.
// It keeps operators from launching a long beamline reduction over inputs
// that will fail or produce suspect results halfway through.
package preflight

import (
	"fmt"
	"os"

	"github.com/beamline-data/saxsabs/internal/header"
	"github.com/beamline-data/saxsabs/internal/ingest"
	"github.com/beamline-data/saxsabs/internal/profile"
)

// Gate levels, from safe to unsafe.
const (
	LevelReady   = "READY"
	LevelCaution = "CAUTION"
	LevelBlocked = "BLOCKED"
)

// Summary is the outcome of the preflight quality gate.
type Summary struct {
	Level        string `json:"level"`
	Score        int    `json:"score"`
	TotalFiles   int    `json:"total_files"`
	FailedFiles  int    `json:"failed_files"`
	WarningCount int    `json:"warning_count"`
	RiskyFiles   int    `json:"risky_files"`
}

// Blocked reports whether the gate forbids starting the run.
func (s Summary) Blocked() bool { return s.Level == LevelBlocked }

// EvaluateGate scores run readiness from lightweight signals. Scoring is
// intentionally conservative for beamline operations: a failed file
// contributes 5 points, a risky file 2, a warning 1. Any failed file, or
// an empty batch, blocks the run outright.
func EvaluateGate(totalFiles, failedFiles, warningCount, riskyFiles int) Summary {
	total := max(0, totalFiles)
	failed := max(0, failedFiles)
	warnings := max(0, warningCount)
	risky := max(0, riskyFiles)

	score := failed*5 + risky*2 + warnings

	var level string
	switch {
	case total <= 0 || failed > 0:
		level = LevelBlocked
	case score > 0:
		level = LevelCaution
	default:
		level = LevelReady
	}

	return Summary{
		Level:        level,
		Score:        score,
		TotalFiles:   total,
		FailedFiles:  failed,
		WarningCount: warnings,
		RiskyFiles:   risky,
	}
}

// FileReport is the per-file outcome of a preflight inspection.
type FileReport struct {
	Path     string   `json:"path"`
	Failed   bool     `json:"failed"`
	Risky    bool     `json:"risky"`
	Warnings []string `json:"warnings,omitempty"`
	Err      string   `json:"error,omitempty"`
}

// CheckFile inspects a single data file: it must ingest as a profile, and
// its header should carry the fields normalization needs. Missing header
// fields are warnings (they may be supplied on the command line); an
// unreadable or unparseable file is a failure. A file whose axis is not
// momentum transfer is risky since it cannot be exported as calibrated.
func CheckFile(path string) FileReport {
	rep := FileReport{Path: path}

	raw, err := os.ReadFile(path)
	if err != nil {
		rep.Failed = true
		rep.Err = err.Error()
		return rep
	}

	text := string(raw)
	p, err := ingest.ReadString(text)
	if err != nil {
		rep.Failed = true
		rep.Err = err.Error()
		return rep
	}
	if p.Axis != profile.MomentumTransfer {
		rep.Risky = true
		rep.Warnings = append(rep.Warnings, "abscissa is not momentum transfer")
	}

	h, err := header.Parse(ingest.ScanMetadata(text))
	if err != nil {
		rep.Risky = true
		rep.Warnings = append(rep.Warnings, err.Error())
	}
	needed := map[string]bool{
		header.FieldExposureTime: true,
		header.FieldMonitor:      true,
		header.FieldTransmission: true,
	}
	for _, field := range h.Missing() {
		if needed[field] {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("header field %q not found", field))
		}
	}
	return rep
}

// EvaluateFiles runs CheckFile over a batch and folds the results into a
// gate summary.
func EvaluateFiles(paths []string) (Summary, []FileReport) {
	reports := make([]FileReport, 0, len(paths))
	var failed, risky, warnings int
	for _, path := range paths {
		rep := CheckFile(path)
		if rep.Failed {
			failed++
		}
		if rep.Risky {
			risky++
		}
		warnings += len(rep.Warnings)
		reports = append(reports, rep)
	}
	return EvaluateGate(len(paths), failed, warnings, risky), reports
}
