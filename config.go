package gofootprint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// EngineConfig holds the tunables for footprint creation, overlap
// computation and grid seeding. Every field is optional; the Get* methods
// return the default for any field left unset, so partial configs are safe.
type EngineConfig struct {
	// Boundary walk
	SampleIncrement     *int     `json:"sample_increment,omitempty"`
	LineIncrement       *int     `json:"line_increment,omitempty"`
	IncreasePrecision   *bool    `json:"increase_precision,omitempty"`
	SubpixelIterations  *int     `json:"subpixel_iterations,omitempty"`
	MaxRecursionDepth   *int     `json:"max_recursion_depth,omitempty"`
	CycleCheckThreshold *int     `json:"cycle_check_threshold,omitempty"`
	MaxEmission         *float64 `json:"max_emission,omitempty"`
	MaxIncidence        *float64 `json:"max_incidence,omitempty"`

	// Polygon repair
	MaxPrecisionDigits *int     `json:"max_precision_digits,omitempty"`
	MinPrecisionDigits *int     `json:"min_precision_digits,omitempty"`
	NegligibleArea     *float64 `json:"negligible_area,omitempty"`

	// Overlap computation
	AreaRatioThreshold *float64 `json:"area_ratio_threshold,omitempty"`
	FailFast           *bool    `json:"fail_fast,omitempty"`
	WriterYieldEvery   *int     `json:"writer_yield_every,omitempty"`

	// Grid seeding
	XSpacing         *float64 `json:"x_spacing,omitempty"`
	YSpacing         *float64 `json:"y_spacing,omitempty"`
	SubGrid          *bool    `json:"sub_grid,omitempty"`
	MinimumThickness *float64 `json:"minimum_thickness,omitempty"`
	MinimumArea      *float64 `json:"minimum_area,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }

// DefaultEngineConfig returns a config with every field unset.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{}
}

// LoadEngineConfig loads an EngineConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultEngineConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configured values are usable.
func (c *EngineConfig) Validate() error {
	if c.SampleIncrement != nil && *c.SampleIncrement < 1 {
		return fmt.Errorf("sample_increment must be 1 or greater, got %d", *c.SampleIncrement)
	}
	if c.LineIncrement != nil && *c.LineIncrement < 1 {
		return fmt.Errorf("line_increment must be 1 or greater, got %d", *c.LineIncrement)
	}
	if c.MaxRecursionDepth != nil && *c.MaxRecursionDepth < 1 {
		return fmt.Errorf("max_recursion_depth must be positive, got %d", *c.MaxRecursionDepth)
	}
	if c.AreaRatioThreshold != nil {
		if *c.AreaRatioThreshold < 0 || *c.AreaRatioThreshold > 1 {
			return fmt.Errorf("area_ratio_threshold must be between 0 and 1, got %f", *c.AreaRatioThreshold)
		}
	}
	maxDigits, minDigits := c.GetMaxPrecisionDigits(), c.GetMinPrecisionDigits()
	if minDigits < 1 || maxDigits > 17 || minDigits > maxDigits {
		return fmt.Errorf("precision digits must satisfy 1 <= min <= max <= 17, got min %d max %d", minDigits, maxDigits)
	}
	if c.XSpacing != nil && *c.XSpacing <= 0 {
		return fmt.Errorf("x_spacing must be positive, got %f", *c.XSpacing)
	}
	if c.YSpacing != nil && *c.YSpacing <= 0 {
		return fmt.Errorf("y_spacing must be positive, got %f", *c.YSpacing)
	}
	if c.MinimumThickness != nil && *c.MinimumThickness < 0 {
		return fmt.Errorf("minimum_thickness must be non-negative, got %f", *c.MinimumThickness)
	}
	if c.WriterYieldEvery != nil && *c.WriterYieldEvery < 1 {
		return fmt.Errorf("writer_yield_every must be positive, got %d", *c.WriterYieldEvery)
	}
	return nil
}

// GetSampleIncrement returns the sample_increment value or the default.
func (c *EngineConfig) GetSampleIncrement() int {
	if c.SampleIncrement == nil {
		return 1
	}
	return *c.SampleIncrement
}

// GetLineIncrement returns the line_increment value or the default.
func (c *EngineConfig) GetLineIncrement() int {
	if c.LineIncrement == nil {
		return 1
	}
	return *c.LineIncrement
}

func (c *EngineConfig) GetIncreasePrecision() bool {
	if c.IncreasePrecision == nil {
		return true
	}
	return *c.IncreasePrecision
}

// GetSubpixelIterations returns the bisection count used by the refiner.
func (c *EngineConfig) GetSubpixelIterations() int {
	if c.SubpixelIterations == nil {
		return 50
	}
	return *c.SubpixelIterations
}

func (c *EngineConfig) GetMaxRecursionDepth() int {
	if c.MaxRecursionDepth == nil {
		return 6
	}
	return *c.MaxRecursionDepth
}

func (c *EngineConfig) GetCycleCheckThreshold() int {
	if c.CycleCheckThreshold == nil {
		return 250
	}
	return *c.CycleCheckThreshold
}

func (c *EngineConfig) GetMaxEmission() float64 {
	if c.MaxEmission == nil {
		return 180
	}
	return *c.MaxEmission
}

func (c *EngineConfig) GetMaxIncidence() float64 {
	if c.MaxIncidence == nil {
		return 180
	}
	return *c.MaxIncidence
}

func (c *EngineConfig) GetMaxPrecisionDigits() int {
	if c.MaxPrecisionDigits == nil {
		return 15
	}
	return *c.MaxPrecisionDigits
}

func (c *EngineConfig) GetMinPrecisionDigits() int {
	if c.MinPrecisionDigits == nil {
		return 13
	}
	return *c.MinPrecisionDigits
}

// GetNegligibleArea returns the area below which a polygon counts as empty.
func (c *EngineConfig) GetNegligibleArea() float64 {
	if c.NegligibleArea == nil {
		return 1e-14
	}
	return *c.NegligibleArea
}

// GetAreaRatioThreshold returns the ratio below which only the smaller of two
// failing polygons is dropped.
func (c *EngineConfig) GetAreaRatioThreshold() float64 {
	if c.AreaRatioThreshold == nil {
		return 0.1
	}
	return *c.AreaRatioThreshold
}

func (c *EngineConfig) GetFailFast() bool {
	if c.FailFast == nil {
		return false
	}
	return *c.FailFast
}

func (c *EngineConfig) GetWriterYieldEvery() int {
	if c.WriterYieldEvery == nil {
		return 10
	}
	return *c.WriterYieldEvery
}

func (c *EngineConfig) GetXSpacing() float64 {
	if c.XSpacing == nil {
		return 1
	}
	return *c.XSpacing
}

func (c *EngineConfig) GetYSpacing() float64 {
	if c.YSpacing == nil {
		return 1
	}
	return *c.YSpacing
}

func (c *EngineConfig) GetSubGrid() bool {
	if c.SubGrid == nil {
		return false
	}
	return *c.SubGrid
}

func (c *EngineConfig) GetMinimumThickness() float64 {
	if c.MinimumThickness == nil {
		return 0
	}
	return *c.MinimumThickness
}

func (c *EngineConfig) GetMinimumArea() float64 {
	if c.MinimumArea == nil {
		return 0
	}
	return *c.MinimumArea
}
