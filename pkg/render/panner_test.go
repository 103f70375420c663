package render

import (
	"math"
	"testing"

	"github.com/Resonate-Protocol/admsync/pkg/adm"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func processed(id uint64, rtime float64, pos mgl64.Vec3, gain float64) adm.ProcessedBlock {
	return adm.ProcessedBlock{
		RawBlock: adm.RawBlock{ID: id, RTime: rtime, Duration: 1, Gain: gain},
		Position: pos,
	}
}

func singleItemMap(channels ...int) GroupMap {
	gm := GroupMap{ItemOffsets: []int{0, len(channels)}}
	for _, ch := range channels {
		gm.ChannelNums = append(gm.ChannelNums, ch)
		gm.Bounds = append(gm.Bounds, adm.ChannelBounds{LowerFrame: 0, UpperFrame: math.MaxInt32})
	}
	return gm
}

func TestPannerQueueBackpressure(t *testing.T) {
	p := NewPanner(&constSamples{}, 48000, 2)

	assert.True(t, p.AddMetadata(GroupObjects, 0, []int{0}, processed(1, 0, mgl64.Vec3{}, 1)))
	assert.True(t, p.AddMetadata(GroupObjects, 0, []int{0}, processed(1, 1, mgl64.Vec3{}, 1)))
	assert.False(t, p.AddMetadata(GroupObjects, 0, []int{0}, processed(1, 2, mgl64.Vec3{}, 1)))
	assert.Equal(t, 2, p.Pending(GroupObjects, 0))

	// A resend of a queued block replaces it even when full
	assert.True(t, p.AddMetadata(GroupObjects, 0, []int{0}, processed(1, 1, mgl64.Vec3{1, 0, 0}, 1)))
	assert.Equal(t, 2, p.Pending(GroupObjects, 0))

	// A different item at the same index restarts the queue
	assert.True(t, p.AddMetadata(GroupObjects, 0, []int{0}, processed(2, 0, mgl64.Vec3{}, 1)))
	assert.Equal(t, 1, p.Pending(GroupObjects, 0))

	assert.False(t, p.AddMetadata(Group(7), 0, nil, processed(1, 0, mgl64.Vec3{}, 1)))
}

func TestPannerRendersPannedObject(t *testing.T) {
	p := NewPanner(&constSamples{}, 48000, 0)
	require.True(t, p.AddMetadata(GroupObjects, 0, []int{0}, processed(1, 0, mgl64.Vec3{1, 0, 0}, 1)))

	var req RenderRequest
	req.Groups[GroupObjects] = singleItemMap(0)
	req.Frames = 8

	out := make([]float32, 16)
	require.NoError(t, p.RenderBlock(req, out))

	for i := 0; i < 8; i++ {
		assert.InDelta(t, 0.0, out[i*2], 1e-6)
		assert.InDelta(t, 0.1, out[i*2+1], 1e-6)
	}
	assert.Equal(t, 0, p.Pending(GroupObjects, 0))
}

func TestPannerSilentBeforeFirstBlock(t *testing.T) {
	p := NewPanner(&constSamples{}, 48000, 0)
	require.True(t, p.AddMetadata(GroupDirectSpeakers, 0, []int{0}, processed(1, 1, mgl64.Vec3{0, 1, 0}, 1)))

	var req RenderRequest
	req.Groups[GroupDirectSpeakers] = singleItemMap(0)
	req.Frames = 4

	out := make([]float32, 8)
	require.NoError(t, p.RenderBlock(req, out))
	assert.Equal(t, make([]float32, 8), out)

	// One second in the block is in effect, centred
	req.FramePosition = 48000
	require.NoError(t, p.RenderBlock(req, out))
	assert.InDelta(t, 0.1/math.Sqrt2, out[0], 1e-6)
	assert.InDelta(t, 0.1/math.Sqrt2, out[1], 1e-6)
}

func TestPannerDecodesFirstOrderHOA(t *testing.T) {
	p := NewPanner(&constSamples{}, 48000, 0)
	block := processed(1, 0, mgl64.Vec3{}, 1)
	block.Order = []int{0, 1, 1, 1}
	block.Degree = []int{0, -1, 0, 1}
	require.True(t, p.AddMetadata(GroupHOA, 0, []int{0, 1, 2, 3}, block))

	var req RenderRequest
	req.Groups[GroupHOA] = singleItemMap(0, 1, 2, 3)
	req.Frames = 1

	out := make([]float32, 2)
	require.NoError(t, p.RenderBlock(req, out))

	w, y := float64(channelValue(0)), float64(channelValue(1))
	assert.InDelta(t, w/math.Sqrt2+y*0.5, out[0], 1e-6)
	assert.InDelta(t, w/math.Sqrt2-y*0.5, out[1], 1e-6)
}

func TestPannerOutputTooSmall(t *testing.T) {
	p := NewPanner(&constSamples{}, 48000, 0)
	err := p.RenderBlock(RenderRequest{Frames: 4}, make([]float32, 4))
	assert.Error(t, err)
}
