package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testResolver() Resolver {
	return Resolver{SegmentDuration: 10, TotalSegments: 361, TotalDurationSeconds: 3600.4}
}

func TestWhole(t *testing.T) {
	rng := testResolver().Whole()
	assert.Equal(t, Range{Start: 0, End: 361}, rng)
	assert.Equal(t, 362, rng.Count())
}

func TestFromOverride(t *testing.T) {
	r := testResolver()
	assert.Equal(t, Range{Start: 10, End: 20}, r.FromOverride(10, 20))
	assert.Equal(t, Range{Start: 10, End: 361}, r.FromOverride(10, -1))
	assert.Equal(t, Range{Start: 0, End: 20}, r.FromOverride(-1, 20))
	assert.Equal(t, Range{Start: 0, End: 361}, r.FromOverride(-1, -1))
}

func TestFromSceneRounding(t *testing.T) {
	r := testResolver()

	// Start floors, end ceils.
	rng := r.FromScene(Scene{StartSeconds: 95, EndSeconds: 203}, 0)
	assert.Equal(t, Range{Start: 9, End: 21}, rng)

	// Exact boundaries stay exact.
	rng = r.FromScene(Scene{StartSeconds: 100, EndSeconds: 200}, 0)
	assert.Equal(t, Range{Start: 10, End: 20}, rng)
}

func TestFromScenePadding(t *testing.T) {
	r := testResolver()
	rng := r.FromScene(Scene{StartSeconds: 100, EndSeconds: 200}, 15)
	assert.Equal(t, Range{Start: 8, End: 22}, rng)
}

func TestFromScenePaddingClamped(t *testing.T) {
	r := testResolver()

	// Clamp at the start of the asset.
	rng := r.FromScene(Scene{StartSeconds: 5, EndSeconds: 60}, 30)
	assert.Equal(t, 0, rng.Start)

	// Clamp at the end of the asset.
	rng = r.FromScene(Scene{StartSeconds: 3500, EndSeconds: 3595}, 30)
	assert.Equal(t, 361, rng.End)
}
