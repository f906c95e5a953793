// Package config loads pipeline defaults from JSON. A site keeps one
// defaults file per instrument so batch invocations do not repeat the same
// flags; anything set on the command line still wins.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// PipelineConfig holds per-site calibration defaults. All fields are
// pointers so a partial JSON file only overrides what it names; the Get*
// methods provide fallback defaults for absent fields.
type PipelineConfig struct {
	Standard          *string  `json:"standard,omitempty"`
	Mode              *string  `json:"mode,omitempty"`
	QMin              *float64 `json:"q_min,omitempty"`
	QMax              *float64 `json:"q_max,omitempty"`
	TemperatureC      *float64 `json:"temperature_c,omitempty"`
	BufferAlpha       *float64 `json:"buffer_alpha,omitempty"`
	DivideByThickness *bool    `json:"divide_by_thickness,omitempty"`
	OutputFormat      *string  `json:"output_format,omitempty"`
	AuditDB           *string  `json:"audit_db,omitempty"`
}

// Empty returns a PipelineConfig with all fields unset.
func Empty() *PipelineConfig {
	return &PipelineConfig{}
}

// Load reads a PipelineConfig from a JSON file. The file must have a .json
// extension and stay under the max file size. Fields omitted from the JSON
// retain their defaults, so partial configs are safe.
func Load(path string) (*PipelineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *PipelineConfig) Validate() error {
	if c.Mode != nil {
		switch *c.Mode {
		case "rate", "integrated":
		default:
			return fmt.Errorf("mode must be \"rate\" or \"integrated\", got %q", *c.Mode)
		}
	}

	if c.QMin != nil && *c.QMin < 0 {
		return fmt.Errorf("q_min must be non-negative, got %f", *c.QMin)
	}
	if c.QMin != nil && c.QMax != nil && *c.QMax <= *c.QMin {
		return fmt.Errorf("q_max (%f) must exceed q_min (%f)", *c.QMax, *c.QMin)
	}

	if c.BufferAlpha != nil && *c.BufferAlpha <= 0 {
		return fmt.Errorf("buffer_alpha must be positive, got %f", *c.BufferAlpha)
	}

	if c.OutputFormat != nil {
		switch *c.OutputFormat {
		case "xml", "cansas", "h5", "nxcansas", "tsv", "csv":
		default:
			return fmt.Errorf("unknown output_format %q", *c.OutputFormat)
		}
	}

	return nil
}

// GetStandard returns the configured standard or the default.
func (c *PipelineConfig) GetStandard() string {
	if c.Standard == nil {
		return "SRM3600" // default
	}
	return *c.Standard
}

// GetMode returns the configured normalization mode or the default.
func (c *PipelineConfig) GetMode() string {
	if c.Mode == nil {
		return "rate" // default
	}
	return *c.Mode
}

// GetQWindow returns the configured fit window, falling back per bound.
func (c *PipelineConfig) GetQWindow(defMin, defMax float64) (float64, float64) {
	qmin, qmax := defMin, defMax
	if c.QMin != nil {
		qmin = *c.QMin
	}
	if c.QMax != nil {
		qmax = *c.QMax
	}
	return qmin, qmax
}

// GetBufferAlpha returns the configured buffer scale factor or 1.0.
func (c *PipelineConfig) GetBufferAlpha() float64 {
	if c.BufferAlpha == nil {
		return 1.0 // default
	}
	return *c.BufferAlpha
}

// GetDivideByThickness reports whether profiles should also be divided by
// the header thickness. Defaults to false.
func (c *PipelineConfig) GetDivideByThickness() bool {
	if c.DivideByThickness == nil {
		return false
	}
	return *c.DivideByThickness
}

// GetOutputFormat returns the configured export format or the default.
func (c *PipelineConfig) GetOutputFormat() string {
	if c.OutputFormat == nil {
		return "xml" // default
	}
	return *c.OutputFormat
}

// GetAuditDB returns the configured audit store path, empty when disabled.
func (c *PipelineConfig) GetAuditDB() string {
	if c.AuditDB == nil {
		return ""
	}
	return *c.AuditDB
}
