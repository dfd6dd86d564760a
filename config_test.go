package gofootprint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultEngineConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultEngineConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1, cfg.GetSampleIncrement())
	assert.Equal(t, 1, cfg.GetLineIncrement())
	assert.True(t, cfg.GetIncreasePrecision())
	assert.Equal(t, 50, cfg.GetSubpixelIterations())
	assert.Equal(t, 6, cfg.GetMaxRecursionDepth())
	assert.Equal(t, 250, cfg.GetCycleCheckThreshold())
	assert.Equal(t, 15, cfg.GetMaxPrecisionDigits())
	assert.Equal(t, 13, cfg.GetMinPrecisionDigits())
	assert.Equal(t, 1e-14, cfg.GetNegligibleArea())
	assert.Equal(t, 0.1, cfg.GetAreaRatioThreshold())
	assert.False(t, cfg.GetFailFast())
	assert.Equal(t, 10, cfg.GetWriterYieldEvery())
	assert.Equal(t, 1.0, cfg.GetXSpacing())
	assert.Equal(t, 1.0, cfg.GetYSpacing())
	assert.False(t, cfg.GetSubGrid())
	assert.Zero(t, cfg.GetMinimumThickness())
	assert.Zero(t, cfg.GetMinimumArea())
	assert.Equal(t, 180.0, cfg.GetMaxEmission())
	assert.Equal(t, 180.0, cfg.GetMaxIncidence())
}

func TestLoadEngineConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "engine.json", `{
		"sample_increment": 4,
		"increase_precision": false,
		"fail_fast": true,
		"area_ratio_threshold": 0.25,
		"sub_grid": true,
		"x_spacing": 0.5
	}`)

	cfg, err := LoadEngineConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.GetSampleIncrement())
	assert.Equal(t, 1, cfg.GetLineIncrement(), "unset fields keep their default")
	assert.False(t, cfg.GetIncreasePrecision())
	assert.True(t, cfg.GetFailFast())
	assert.Equal(t, 0.25, cfg.GetAreaRatioThreshold())
	assert.True(t, cfg.GetSubGrid())
	assert.Equal(t, 0.5, cfg.GetXSpacing())
	assert.Equal(t, 1.0, cfg.GetYSpacing())
}

func TestLoadEngineConfigErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file string
		body string
		want string
	}{
		{name: "extension", file: "engine.yaml", body: "{}", want: ".json extension"},
		{name: "syntax", file: "engine.json", body: "{", want: "failed to parse config JSON"},
		{name: "increment", file: "engine.json", body: `{"line_increment": 0}`, want: "line_increment"},
		{name: "ratio", file: "engine.json", body: `{"area_ratio_threshold": 1.5}`, want: "area_ratio_threshold"},
		{name: "digits", file: "engine.json", body: `{"min_precision_digits": 16}`, want: "precision digits"},
		{name: "spacing", file: "engine.json", body: `{"y_spacing": -2}`, want: "y_spacing"},
		{name: "thickness", file: "engine.json", body: `{"minimum_thickness": -0.1}`, want: "minimum_thickness"},
		{name: "yield", file: "engine.json", body: `{"writer_yield_every": 0}`, want: "writer_yield_every"},
		{name: "too large", file: "engine.json", body: `{"notes": "` + strings.Repeat("x", 1<<20) + `"}`, want: "too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadEngineConfig(writeConfig(t, tt.file, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := LoadEngineConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "failed to stat config file")
}
