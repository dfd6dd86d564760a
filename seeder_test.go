package gofootprint

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lShape is a 4 x 4 square with a thin arm running east along y 0.6 to 0.8.
func lShape() orb.MultiPolygon {
	return orb.MultiPolygon{{{
		{0, 0}, {4, 0}, {4, 0.6}, {10, 0.6}, {10, 0.8}, {4, 0.8}, {4, 4}, {0, 4}, {0, 0},
	}}}
}

func TestGridSeederSquare(t *testing.T) {
	t.Parallel()

	s, err := NewGridSeeder(nil)
	require.NoError(t, err)

	points := s.Seed(rect(0, 0, 10, 10))
	assert.Len(t, points, 81)
	for _, p := range points {
		assert.True(t, strictlyInside(rect(0, 0, 10, 10), p), "point %v", p)
	}
}

func TestGridSeederAnchorsOnCentroid(t *testing.T) {
	t.Parallel()

	s, err := NewGridSeeder(nil)
	require.NoError(t, err)

	points := s.Seed(rect(0.25, 0.25, 3.25, 3.25))
	require.Len(t, points, 9)
	assert.Contains(t, points, orb.Point{1.75, 1.75})
	assert.Equal(t, orb.Point{0.75, 0.75}, points[0])
}

func TestGridSeederStandardTests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  *EngineConfig
		mp   orb.MultiPolygon
	}{
		{
			name: "too thin",
			cfg:  &EngineConfig{MinimumThickness: ptrFloat64(0.3)},
			mp:   rect(0, 0, 10, 1),
		},
		{
			name: "too small",
			cfg:  &EngineConfig{MinimumArea: ptrFloat64(200)},
			mp:   rect(0, 0, 10, 10),
		},
		{
			name: "empty",
			mp:   orb.MultiPolygon{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, err := NewGridSeeder(tt.cfg)
			require.NoError(t, err)
			assert.Nil(t, s.Seed(tt.mp))
		})
	}
}

func TestGridSeederThickEnough(t *testing.T) {
	t.Parallel()

	s, err := NewGridSeeder(&EngineConfig{MinimumThickness: ptrFloat64(0.3)})
	require.NoError(t, err)
	assert.NotEmpty(t, s.Seed(rect(0, 0, 10, 5)))
}

func TestGridSeederSpacing(t *testing.T) {
	t.Parallel()

	_, err := NewGridSeeder(&EngineConfig{XSpacing: ptrFloat64(0)})
	assert.True(t, errors.Is(err, ErrProgrammer))

	_, err = NewGridSeeder(&EngineConfig{YSpacing: ptrFloat64(-1)})
	assert.True(t, errors.Is(err, ErrProgrammer))

	s, err := NewGridSeeder(&EngineConfig{XSpacing: ptrFloat64(2), YSpacing: ptrFloat64(5)})
	require.NoError(t, err)
	points := s.Seed(rect(0, 0, 10, 10))
	assert.Len(t, points, 5)
	for _, p := range points {
		assert.Equal(t, 5.0, p[1])
	}
}

func TestGridSeederSubGridReachesThinParts(t *testing.T) {
	t.Parallel()

	mp := lShape()

	plain, err := NewGridSeeder(nil)
	require.NoError(t, err)
	for _, p := range plain.Seed(mp) {
		assert.LessOrEqual(t, p[0], 4.0, "the plain grid misses the arm")
	}

	sub, err := NewGridSeeder(&EngineConfig{SubGrid: ptrBool(true)})
	require.NoError(t, err)
	points := sub.Seed(mp)
	require.NotEmpty(t, points)

	inArm := 0
	for _, p := range points {
		assert.True(t, strictlyInside(mp, p), "point %v", p)
		if p[0] > 4.5 {
			inArm++
			assert.Greater(t, p[1], 0.6)
			assert.Less(t, p[1], 0.8)
		}
	}
	assert.GreaterOrEqual(t, inArm, 4)
}

func TestCheckSubGridCentreFirst(t *testing.T) {
	t.Parallel()

	s, err := NewGridSeeder(nil)
	require.NoError(t, err)

	p, ok := s.checkSubGrid(rect(0, 0, 10, 10), 5, 5, 0)
	require.True(t, ok)
	assert.Equal(t, orb.Point{5, 5}, p)

	_, ok = s.checkSubGrid(rect(0, 0, 1, 1), 5, 5, 3)
	assert.False(t, ok)
}
