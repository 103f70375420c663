// ABOUTME: Tests for audio types
// ABOUTME: Tests sample conversion functions
package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSampleToFloat(t *testing.T) {
	tests := []struct {
		name     string
		sample   int
		bitDepth int
		expected float32
	}{
		{"zero", 0, 16, 0},
		{"half negative", -16384, 16, -0.5},
		{"min 16", math.MinInt16, 16, -1},
		{"24bit", 1 << 22, 24, 0.5},
		{"bad depth falls back to 16", 16384, 0, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, SampleToFloat(tt.sample, tt.bitDepth), 1e-7)
		})
	}
}

func TestFloatToInt16Clips(t *testing.T) {
	assert.Equal(t, int16(0), FloatToInt16(0))
	assert.Equal(t, int16(-16384), FloatToInt16(-0.5))
	assert.Equal(t, int16(math.MaxInt16), FloatToInt16(1.5))
	assert.Equal(t, int16(math.MinInt16), FloatToInt16(-2))
}

func TestFloatToInt(t *testing.T) {
	assert.Equal(t, Max24Bit, FloatToInt(1, 24))
	assert.Equal(t, Min24Bit, FloatToInt(-1, 24))
	assert.Equal(t, 16384, FloatToInt(0.5, 16))
}

func TestRoundTrip16(t *testing.T) {
	for _, s := range []int{-32768, -1, 0, 1, 12345, 32767} {
		assert.Equal(t, int16(s), FloatToInt16(SampleToFloat(s, 16)))
	}
}

func TestDeinterleave(t *testing.T) {
	planar := Deinterleave([]float32{1, 2, 3, 4, 5, 6, 7}, 2)
	assert.Equal(t, [][]float32{{1, 3, 5}, {2, 4, 6}}, planar)
	assert.Nil(t, Deinterleave([]float32{1}, 0))
}

func TestApplyGain(t *testing.T) {
	s := []float32{1, -0.5}
	ApplyGain(s, 0.5)
	assert.Equal(t, []float32{0.5, -0.25}, s)
}

func TestFrameDuration(t *testing.T) {
	assert.Equal(t, 0.5, Format{SampleRate: 48000}.FrameDuration(24000))
	assert.Equal(t, 0.0, Format{}.FrameDuration(10))
}
