package gofootprint

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundaryWalkerStep(t *testing.T) {
	t.Parallel()

	w := NewBoundaryWalker(fullMask(3, 3), RasterWindow{}, nil, 1, 1)
	assert.Equal(t, StateSeeking, w.State())

	want := []orb.Point{{1, 1}, {2, 1}, {3, 1}, {3, 2}, {3, 3}, {2, 3}, {1, 3}, {1, 2}}
	for i, p := range want {
		out := w.Step()
		require.Equal(t, OutcomeAdvance, out.Kind, "step %d", i)
		assert.Equal(t, p, out.Point, "step %d", i)
		assert.Equal(t, StateWalking, w.State())
	}

	out := w.Step()
	require.Equal(t, OutcomeClosed, out.Kind)
	assert.Equal(t, orb.Point{1, 1}, out.Point)
	assert.Equal(t, StateClosed, w.State())
	assert.NoError(t, w.Err())

	// Terminal states are sticky.
	assert.Equal(t, OutcomeClosed, w.Step().Kind)

	ring := w.Ring()
	expected := append(orb.Ring(want), orb.Point{1, 1})
	if diff := cmp.Diff(expected, ring); diff != "" {
		t.Errorf("ring mismatch (-want +got):\n%s", diff)
	}
}

func TestBoundaryWalkerWalk(t *testing.T) {
	t.Parallel()

	ring, err := NewBoundaryWalker(fullMask(3, 3), RasterWindow{}, nil, 1, 1).Walk()
	require.NoError(t, err)
	assert.Len(t, ring, 9)
	assert.True(t, ring.Closed())
}

func TestBoundaryWalkerWindow(t *testing.T) {
	t.Parallel()

	window := RasterWindow{StartSample: 2, StartLine: 2, Samples: 3, Lines: 3}
	ring, err := NewBoundaryWalker(fullMask(5, 5), window, nil, 1, 1).Walk()
	require.NoError(t, err)
	require.Len(t, ring, 9)

	assert.Equal(t, orb.Point{2, 2}, ring[0])
	for _, p := range ring {
		assert.GreaterOrEqual(t, p[0], 2.0)
		assert.LessOrEqual(t, p[0], 4.0)
		assert.GreaterOrEqual(t, p[1], 2.0)
		assert.LessOrEqual(t, p[1], 4.0)
	}
}

func TestBoundaryWalkerIrregularRegion(t *testing.T) {
	t.Parallel()

	proj := newMaskProjector(
		"......",
		".####.",
		".####.",
		".##...",
		".##...",
		"......",
	)
	ring, err := NewBoundaryWalker(proj, RasterWindow{}, nil, 1, 1).Walk()
	require.NoError(t, err)
	require.True(t, ring.Closed())
	assert.Equal(t, orb.Point{2, 2}, ring[0])

	for _, p := range ring {
		assert.True(t, proj.pixel(p[0], p[1]), "vertex (%g, %g) is not a valid pixel", p[0], p[1])
	}
	assert.Contains(t, ring, orb.Point{5, 2})
	assert.Contains(t, ring, orb.Point{2, 5})
}

func TestBoundaryWalkerFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		proj GroundProjector
		cfg  *EngineConfig
	}{
		{
			name: "no valid pixels",
			proj: newMaskProjector("...", "...", "..."),
		},
		{
			name: "single pixel",
			proj: newMaskProjector("...", ".#.", "..."),
		},
		{
			name: "two pixel strip",
			proj: newMaskProjector("##"),
		},
		{
			name: "emission limit excludes everything",
			proj: &maskProjector{mask: fullMask(3, 3).mask, scale: 1, emission: 60},
			cfg:  &EngineConfig{MaxEmission: ptrFloat64(45)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := NewBoundaryWalker(tt.proj, RasterWindow{}, tt.cfg, 1, 1)
			ring, err := w.Walk()
			require.Error(t, err)
			assert.Nil(t, ring)
			assert.True(t, errors.Is(err, ErrBoundaryWalkFailed))

			var walkErr *BoundaryWalkError
			assert.True(t, errors.As(err, &walkErr))
			assert.Equal(t, StateFailed, w.State())
			assert.Equal(t, err, w.Err())
			assert.Equal(t, OutcomeFailed, w.Step().Kind)
		})
	}
}

func TestBoundaryWalkerIncrements(t *testing.T) {
	t.Parallel()

	w := NewBoundaryWalker(fullMask(3, 3), RasterWindow{}, nil, 0, -2)
	sinc, linc := w.Increments()
	assert.Equal(t, 1, sinc)
	assert.Equal(t, 1, linc)
}

func TestFirstCycle(t *testing.T) {
	t.Parallel()

	points := []orb.Point{{0, 0}, {1, 0}, {2, 0}, {2, 1}, {1, 0}, {5, 5}}
	assert.Equal(t, []orb.Point{{1, 0}, {2, 0}, {2, 1}, {1, 0}}, firstCycle(points))
	assert.Nil(t, firstCycle([]orb.Point{{0, 0}, {1, 0}, {0, 0}}))
}

func TestWalkStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "walking", StateWalking.String())
	assert.Equal(t, "failed", StateFailed.String())
}

func TestBoundaryWalkerSnapIsStrict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		sinc, linc int
		current    orb.Point
		want       bool
	}{
		{name: "inside step", sinc: 2, linc: 2, current: orb.Point{2.9, 1}, want: true},
		{name: "exactly one step", sinc: 2, linc: 2, current: orb.Point{3, 1}},
		{name: "smaller increment bounds", sinc: 3, linc: 2, current: orb.Point{1, 3}},
		{name: "unit sample increment", sinc: 1, linc: 2, current: orb.Point{1.5, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := NewBoundaryWalker(fullMask(9, 9), RasterWindow{}, nil, tt.sinc, tt.linc)
			w.first = orb.Point{1, 1}
			w.points = []orb.Point{{1, 1}, {3, 1}, {5, 3}}
			w.current = tt.current
			assert.Equal(t, tt.want, w.shouldSnap())
		})
	}
}
