package adm

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func objectBlock(rtime, duration, azimuth, gain float64) RawBlock {
	return RawBlock{
		ID:               7,
		Type:             TypeObjects,
		Name:             "obj",
		ChannelNums:      []int{0},
		AudioStartTime:   0,
		AudioEndTime:     math.Inf(1),
		RTime:            rtime,
		Duration:         duration,
		Azimuth:          azimuth,
		Distance:         1,
		AbsoluteDistance: 1,
		Gain:             gain,
	}
}

func newTestItem(blocks ...RawBlock) *Item {
	it := NewItem(blocks[0], 48000)
	for _, b := range blocks {
		it.Append(b)
	}
	return it
}

func TestItemWithoutBlocksHasNoMetadata(t *testing.T) {
	cfg := DefaultConfig()
	it := NewItem(objectBlock(0, 1, 0, 1), 48000)

	u := it.Resolve(1.0, &cfg)
	assert.Equal(t, RunStateNoMetadata, u.RunState)
	assert.Equal(t, mgl64.Vec3{}, u.Position)
	assert.Equal(t, 0.0, u.Gain)
	assert.Equal(t, RunStateNoMetadata, it.RunState())
}

func TestItemBeforeFirstBlockHasNoMetadata(t *testing.T) {
	cfg := DefaultConfig()
	it := newTestItem(objectBlock(2, 1, 0, 1))

	u := it.Resolve(1.0, &cfg)
	assert.Equal(t, RunStateNoMetadata, u.RunState)
	assert.Equal(t, 0, it.Cursor())
}

func TestItemTwoBlockTimeline(t *testing.T) {
	cfg := DefaultConfig()
	a := objectBlock(0, 1, 0, 1)
	b := objectBlock(1, 1, -90, 0.5)
	it := newTestItem(a, b)

	posA := Resolve(a, &cfg).Position
	posB := Resolve(b, &cfg).Position

	// First block ramps from its own position with unit start gain
	u := it.Resolve(0.5, &cfg)
	assert.Equal(t, RunStateProcessing, u.RunState)
	assert.InDelta(t, 0.5, u.Interpolant, 1e-9)
	assertVec(t, posA, u.Position)
	assert.InDelta(t, 1.0, u.Gain, 1e-9)

	u = it.Resolve(1.5, &cfg)
	assert.Equal(t, RunStateProcessing, u.RunState)
	assert.InDelta(t, 0.5, u.Interpolant, 1e-9)
	assert.InDelta(t, 0.75, u.Gain, 1e-9)
	assert.Equal(t, 1, it.Cursor())

	// Halfway along the arc from front to right
	half := Slerp(posA, posB, 0.5)
	assertVec(t, half, u.Position)
	assert.InDelta(t, 1.0, u.Position.Len(), 1e-9)
	assert.InDelta(t, math.Sqrt2/2, u.Position.X(), 1e-9)

	u = it.Resolve(3.0, &cfg)
	assert.Equal(t, RunStateReachedEnd, u.RunState)
	assert.Equal(t, 0.0, u.Gain)
	assertVec(t, posB, u.Position)
}

func TestItemGapHoldsLastCompletedBlock(t *testing.T) {
	cfg := DefaultConfig()
	a := objectBlock(0, 1, 30, 0.8)
	b := objectBlock(2, 1, 60, 0.4)
	it := newTestItem(a, b)

	u := it.Resolve(1.5, &cfg)
	assert.Equal(t, RunStateInGap, u.RunState)
	assert.InDelta(t, 0.8, u.Gain, 1e-9)
	assertVec(t, Resolve(a, &cfg).Position, u.Position)
}

func TestItemJumpBlockRamp(t *testing.T) {
	cfg := DefaultConfig()
	a := objectBlock(0, 1, 0, 1)
	b := objectBlock(1, 1, 90, 0)
	b.JumpPosition = true
	b.InterpolationLength = 0.2
	it := newTestItem(a, b)

	u := it.Resolve(1.1, &cfg)
	assert.InDelta(t, 0.5, u.Interpolant, 1e-9)
	assert.InDelta(t, 0.5, u.Gain, 1e-9)

	u = it.Resolve(1.5, &cfg)
	assert.Equal(t, 1.0, u.Interpolant)
	assert.InDelta(t, 0.0, u.Gain, 1e-9)
	assertVec(t, Resolve(b, &cfg).Position, u.Position)
}

func TestItemCartesianBlocksInterpolateLinearly(t *testing.T) {
	cfg := DefaultConfig()
	a := objectBlock(0, 1, 0, 1)
	a.Cartesian, a.X, a.Y = true, -1, 1
	b := objectBlock(1, 1, 0, 1)
	b.Cartesian, b.X, b.Y = true, 1, 1
	it := newTestItem(a, b)

	u := it.Resolve(1.5, &cfg)
	assert.InDelta(t, 0.0, u.Position.X(), 1e-9)
	assert.InDelta(t, 1.0, u.Position.Y(), 1e-9)
}

func TestItemCursorRewind(t *testing.T) {
	cfg := DefaultConfig()
	it := newTestItem(objectBlock(0, 1, 0, 1), objectBlock(1, 1, 10, 1), objectBlock(2, 1, 20, 1))

	it.Resolve(2.5, &cfg)
	assert.Equal(t, 2, it.Cursor())

	// Without a rewind earlier times are not revisited
	it.ResetCursor()
	u := it.Resolve(0.5, &cfg)
	assert.Equal(t, RunStateProcessing, u.RunState)
	assert.Equal(t, 0, it.Cursor())
	assert.Equal(t, 1, it.Resets())
}

func TestItemAudioActiveIsStrict(t *testing.T) {
	raw := objectBlock(0, 1, 0, 1)
	raw.AudioStartTime = 1
	raw.AudioEndTime = 2
	it := NewItem(raw, 48000)

	assert.False(t, it.AudioActive(1.0))
	assert.True(t, it.AudioActive(1.5))
	assert.False(t, it.AudioActive(2.0))
}

func TestItemFrameBounds(t *testing.T) {
	raw := objectBlock(0, 1, 0, 1)
	raw.AudioStartTime = 0.5
	it := NewItem(raw, 48000)

	bounds := it.FrameBounds()
	assert.Equal(t, 24000, bounds.LowerFrame)
	assert.Equal(t, math.MaxInt32, bounds.UpperFrame)

	raw.AudioEndTime = 2
	bounded := NewItem(raw, 48000)
	assert.Equal(t, 96000, bounded.FrameBounds().UpperFrame)
}

func TestItemProgrammeMembership(t *testing.T) {
	a := objectBlock(0, 1, 0, 1)
	a.ProgrammeIDs = []int{0x1001}
	b := objectBlock(1, 1, 0, 1)
	b.ProgrammeIDs = []int{0x1002}
	it := newTestItem(a, b)

	assert.True(t, it.InProgramme(0x1001))
	assert.True(t, it.InProgramme(0x1002))
	assert.False(t, it.InProgramme(0x1003))
	assert.True(t, it.InProgramme(NoProgramme))
	assert.Len(t, it.Programmes(), 2)
}

func TestItemBlocksRecomputeAfterConfigChange(t *testing.T) {
	s := NewSettings(DefaultConfig())
	it := newTestItem(objectBlock(0, 1, 0, 1), objectBlock(1, 1, 0, 1))

	it.Resolve(1.5, s.Snapshot())
	require.Equal(t, int64(1), it.Block(1).Recomputations())

	s.SetObjectOffsets(Offsets{Azimuth: 90, DistanceMultiplier: 1})
	u := it.Resolve(1.5, s.Snapshot())

	assert.Equal(t, int64(2), it.Block(1).Recomputations())
	assert.InDelta(t, -1.0, u.Position.X(), 1e-9)
}

// assertVec compares positions component-wise; slerp leaves ~1e-16 residue on zero axes
func assertVec(t *testing.T, want, got mgl64.Vec3) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-9, "component %d of %v", i, got)
	}
}
