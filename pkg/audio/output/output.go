// ABOUTME: Audio output interface definition
// ABOUTME: Outputs pull interleaved float blocks from a render callback
package output

import "sync/atomic"

// RenderFunc fills out with interleaved samples. It runs on the output's
// real-time goroutine and must not block.
type RenderFunc func(out []float32)

// Output represents an audio output device
type Output interface {
	// Open starts pulling audio from render
	Open(sampleRate, channels int, render RenderFunc) error

	// Frames returns the number of frames pulled so far
	Frames() int64

	// Close releases output resources
	Close() error
}

// frameCounter is shared by the outputs to expose their DSP time
type frameCounter struct {
	frames atomic.Int64
}

func (c *frameCounter) Frames() int64 {
	return c.frames.Load()
}

func (c *frameCounter) add(n int) {
	c.frames.Add(int64(n))
}

// getVolumeMultiplier calculates volume multiplier
func getVolumeMultiplier(volume int, muted bool) float32 {
	if muted {
		return 0.0
	}
	return float32(volume) / 100.0
}

func clampVolume(volume int) int {
	if volume < 0 {
		return 0
	}
	if volume > 100 {
		return 100
	}
	return volume
}
