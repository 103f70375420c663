// ABOUTME: Audio type definitions
// ABOUTME: Defines stream formats and float sample conversions
package audio

import "math"

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// Format describes a PCM stream
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// FrameDuration returns the length of n frames in seconds
func (f Format) FrameDuration(n int) float64 {
	if f.SampleRate <= 0 {
		return 0
	}
	return float64(n) / float64(f.SampleRate)
}

// SampleToFloat converts a signed integer sample of the given bit depth to [-1, 1)
func SampleToFloat(sample int, bitDepth int) float32 {
	if bitDepth <= 0 || bitDepth > 32 {
		bitDepth = 16
	}
	scale := float64(int64(1) << (bitDepth - 1))
	return float32(float64(sample) / scale)
}

// FloatToInt16 converts a float sample to int16 with clipping
func FloatToInt16(f float32) int16 {
	v := math.Round(float64(f) * 32768)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// FloatToInt converts a float sample to a signed integer of the given bit depth with clipping
func FloatToInt(f float32, bitDepth int) int {
	if bitDepth <= 0 || bitDepth > 32 {
		bitDepth = 16
	}
	max := float64(int64(1)<<(bitDepth-1)) - 1
	v := math.Round(float64(f) * (max + 1))
	if v > max {
		return int(max)
	}
	if v < -max-1 {
		return int(-max - 1)
	}
	return int(v)
}

// Deinterleave splits interleaved frames into one slice per channel.
// A trailing partial frame is dropped.
func Deinterleave(interleaved []float32, channels int) [][]float32 {
	if channels <= 0 {
		return nil
	}
	frames := len(interleaved) / channels
	out := make([][]float32, channels)
	for ch := range out {
		out[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			out[ch][i] = interleaved[i*channels+ch]
		}
	}
	return out
}

// ApplyGain scales samples in place
func ApplyGain(samples []float32, gain float32) {
	if gain == 1 {
		return
	}
	for i := range samples {
		samples[i] *= gain
	}
}
