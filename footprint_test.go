package gofootprint

import (
	"errors"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateFootprintFullRaster(t *testing.T) {
	t.Parallel()

	proj := fullMask(3, 3)
	fp, err := CreateFootprint(proj, RasterWindow{}, nil)
	require.NoError(t, err)

	sinc, linc := fp.Increments()
	assert.Equal(t, 1, sinc)
	assert.Equal(t, 1, linc)
	assert.Equal(t, 50, fp.SubpixelAccuracy())

	// Pixel edges span samples and lines 0.5 to 3.5, one tenth of a degree
	// per pixel. The refined start vertex clips a sliver off one corner.
	assert.Greater(t, fp.Area(), 0.08)
	assert.LessOrEqual(t, fp.Area(), 0.09+1e-9)

	b := fp.Bound()
	assert.InDelta(t, 10.05, b.Min[0], 1e-9)
	assert.InDelta(t, 10.35, b.Max[0], 1e-9)
	assert.InDelta(t, -0.35, b.Min[1], 1e-9)
	assert.InDelta(t, -0.05, b.Max[1], 1e-9)
}

func TestCreateFootprintWithoutRefinement(t *testing.T) {
	t.Parallel()

	cfg := &EngineConfig{SubpixelIterations: ptrInt(0)}
	fp, err := CreateFootprint(fullMask(3, 3), RasterWindow{}, cfg)
	require.NoError(t, err)

	// Pixel centres only: a 2 x 2 pixel square.
	assert.InDelta(t, 0.04, fp.Area(), 1e-12)
	assert.Equal(t, 0, fp.SubpixelAccuracy())
}

func TestCreateFootprintWindow(t *testing.T) {
	t.Parallel()

	cfg := &EngineConfig{SubpixelIterations: ptrInt(0)}
	window := RasterWindow{StartSample: 2, StartLine: 2, Samples: 3, Lines: 3}
	fp, err := CreateFootprint(fullMask(6, 6), window, cfg)
	require.NoError(t, err)

	b := fp.Bound()
	assert.InDelta(t, 10.2, b.Min[0], 1e-9)
	assert.InDelta(t, 10.4, b.Max[0], 1e-9)
}

func TestCreateFootprintLargeIncrement(t *testing.T) {
	t.Parallel()

	cfg := &EngineConfig{SampleIncrement: ptrInt(2), LineIncrement: ptrInt(2)}
	fp, err := CreateFootprint(fullMask(9, 9), RasterWindow{}, cfg)
	require.NoError(t, err)
	assert.True(t, IsValid(fp.MultiPolygon()))
	assert.Greater(t, fp.Area(), 0.0)
}

func TestCreateFootprintErrors(t *testing.T) {
	t.Parallel()

	t.Run("no data", func(t *testing.T) {
		t.Parallel()
		_, err := CreateFootprint(newMaskProjector("..", ".."), RasterWindow{}, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrBoundaryWalkFailed))
		assert.Contains(t, err.Error(), "cannot increase precision any further")
	})

	t.Run("no data without precision increase", func(t *testing.T) {
		t.Parallel()
		cfg := &EngineConfig{IncreasePrecision: ptrBool(false)}
		_, err := CreateFootprint(newMaskProjector("..", ".."), RasterWindow{}, cfg)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrBoundaryWalkFailed))
		assert.Contains(t, err.Error(), "increment/step size might be too large")
	})

	t.Run("zero increment", func(t *testing.T) {
		t.Parallel()
		cfg := &EngineConfig{SampleIncrement: ptrInt(0)}
		_, err := CreateFootprint(fullMask(3, 3), RasterWindow{}, cfg)
		var perr *ProgrammerError
		assert.True(t, errors.As(err, &perr))
	})
}

func TestFootprintTextRoundTrip(t *testing.T) {
	t.Parallel()

	fp, err := NewFootprint(orb.MultiPolygon{
		rect(0.1, 0.2, 10.123456789012345, 10)[0],
		rect(20, -5.5, 30, 5)[0],
	})
	require.NoError(t, err)

	text := fp.ToText()
	assert.True(t, strings.HasPrefix(text, "MULTIPOLYGON"))

	back, err := FootprintFromText(text)
	require.NoError(t, err)
	assert.True(t, fp.Equal(back))
	assert.Equal(t, fp.MultiPolygon(), back.MultiPolygon())
}

func TestFootprintFromText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{name: "polygon", text: "POLYGON((0 0,1 0,1 1,0 1,0 0))"},
		{name: "multipolygon", text: " MULTIPOLYGON(((0 0,1 0,1 1,0 1,0 0)))\n"},
		{name: "line", text: "LINESTRING(0 0,1 1)", wantErr: true},
		{name: "garbage", text: "not wkt", wantErr: true},
		{name: "self intersecting", text: "POLYGON((0 0,1 1,1 0,0 1,0 0))", wantErr: true},
		{name: "empty", text: "MULTIPOLYGON EMPTY", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fp, err := FootprintFromText(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, fp)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, 1.0, fp.Area(), 1e-12)
		})
	}
}

func TestNewFootprintRejectsInvalid(t *testing.T) {
	t.Parallel()

	_, err := NewFootprint(orb.MultiPolygon{})
	assert.True(t, errors.Is(err, ErrUnrepairable))

	bowtie := orb.MultiPolygon{{{{0, 0}, {1, 1}, {1, 0}, {0, 1}, {0, 0}}}}
	_, err = NewFootprint(bowtie)
	assert.True(t, errors.Is(err, ErrUnrepairable))
}

func TestFootprintIsImmutable(t *testing.T) {
	t.Parallel()

	mp := rect(0, 0, 1, 1)
	fp, err := NewFootprint(mp)
	require.NoError(t, err)

	mp[0][0][0] = orb.Point{-5, -5}
	got := fp.MultiPolygon()
	got[0][0][1] = orb.Point{9, 9}
	assert.True(t, Equal(rect(0, 0, 1, 1), fp.MultiPolygon()))
}

func TestFootprintTo180(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		ring     orb.Ring
		wantMinX float64
		wantMaxX float64
	}{
		{name: "east only", ring: orb.Ring{{10, 0}, {20, 0}, {20, 10}, {10, 10}, {10, 0}}, wantMinX: 10, wantMaxX: 20},
		{name: "west only", ring: orb.Ring{{200, 0}, {210, 0}, {210, 10}, {200, 10}, {200, 0}}, wantMinX: -160, wantMaxX: -150},
		{name: "across the meridian", ring: orb.Ring{{350, 0}, {10, 0}, {10, 10}, {350, 10}, {350, 0}}, wantMinX: -10, wantMaxX: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fp, err := FootprintFromLonLat(tt.ring, nil)
			require.NoError(t, err)

			mp, err := fp.To180()
			require.NoError(t, err)
			require.Len(t, mp, 1)

			b := mp.Bound()
			assert.InDelta(t, tt.wantMinX, b.Min[0], 1e-9)
			assert.InDelta(t, tt.wantMaxX, b.Max[0], 1e-9)
			assert.InDelta(t, fp.Area(), area(mp), 1e-9)
		})
	}
}
