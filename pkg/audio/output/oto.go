// ABOUTME: Oto-based audio output implementation
// ABOUTME: Oto's reads drive the render callback, with software volume control
package output

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
)

// DefaultBufferFrames is the device buffer size used when none is given
const DefaultBufferFrames = 1024

const bytesPerSample = 4

// Oto output implementation using oto library
type Oto struct {
	frameCounter

	bufferFrames int
	otoCtx       *oto.Context
	player       *oto.Player
	reader       *pullReader
	sampleRate   int
	channels     int
	volume       atomic.Int32
	muted        atomic.Bool

	mu    sync.Mutex
	ready bool
}

// NewOto creates a new Oto output
func NewOto(bufferFrames int) *Oto {
	if bufferFrames <= 0 {
		bufferFrames = DefaultBufferFrames
	}
	o := &Oto{bufferFrames: bufferFrames}
	o.volume.Store(100)
	return o
}

// Open initializes the output device and starts pulling from render
func (o *Oto) Open(sampleRate, channels int, render RenderFunc) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ready {
		return fmt.Errorf("output already open")
	}

	// oto only allows one context per process
	if o.otoCtx != nil && (o.sampleRate != sampleRate || o.channels != channels) {
		log.Printf("Warning: format change detected (%dHz %dch -> %dHz %dch) but oto doesn't support reinitialization. Continuing with existing context.",
			o.sampleRate, o.channels, sampleRate, channels)
	}

	if o.otoCtx == nil {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatFloat32LE,
			BufferSize:   time.Duration(o.bufferFrames) * time.Second / time.Duration(sampleRate),
		}

		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			return fmt.Errorf("failed to create oto context: %w", err)
		}
		<-readyChan

		o.otoCtx = ctx
		o.sampleRate = sampleRate
		o.channels = channels
	} else if err := o.otoCtx.Resume(); err != nil {
		return fmt.Errorf("failed to resume oto context: %w", err)
	}

	o.reader = &pullReader{
		render:   render,
		channels: o.channels,
		volume:   &o.volume,
		muted:    &o.muted,
		counter:  &o.frameCounter,
	}
	o.player = o.otoCtx.NewPlayer(o.reader)
	o.player.SetBufferSize(o.bufferFrames * o.channels * bytesPerSample)
	o.player.Play()
	o.ready = true

	log.Printf("Audio output initialized: %dHz, %d channels, %d frame buffer", o.sampleRate, o.channels, o.bufferFrames)
	return nil
}

// Close releases output resources
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.reader != nil {
		o.reader.close()
	}
	if o.player != nil {
		o.player.Close()
		o.player = nil
	}
	if o.otoCtx != nil {
		o.otoCtx.Suspend()
	}
	o.ready = false
	return nil
}

// SetVolume sets the volume (0-100)
func (o *Oto) SetVolume(volume int) {
	volume = clampVolume(volume)
	o.volume.Store(int32(volume))
	log.Printf("Volume set to %d", volume)
}

// SetMuted sets mute state
func (o *Oto) SetMuted(muted bool) {
	o.muted.Store(muted)
	log.Printf("Muted: %v", muted)
}

// GetVolume returns current volume
func (o *Oto) GetVolume() int {
	return int(o.volume.Load())
}

// IsMuted returns mute state
func (o *Oto) IsMuted() bool {
	return o.muted.Load()
}

// pullReader renders on demand for oto's player
type pullReader struct {
	render   RenderFunc
	channels int
	volume   *atomic.Int32
	muted    *atomic.Bool
	counter  *frameCounter
	scratch  []float32
	closed   atomic.Bool
}

func (r *pullReader) Read(p []byte) (int, error) {
	if r.closed.Load() {
		return 0, io.EOF
	}

	frames := len(p) / (r.channels * bytesPerSample)
	if frames == 0 {
		return 0, nil
	}
	n := frames * r.channels
	if cap(r.scratch) < n {
		r.scratch = make([]float32, n)
	}
	buf := r.scratch[:n]
	clear(buf)

	r.render(buf)
	encodeFloat32LE(p, buf, getVolumeMultiplier(int(r.volume.Load()), r.muted.Load()))
	r.counter.add(frames)
	return n * bytesPerSample, nil
}

func (r *pullReader) close() {
	r.closed.Store(true)
}

// encodeFloat32LE writes samples scaled by gain into dst with clipping
func encodeFloat32LE(dst []byte, samples []float32, gain float32) {
	for i, s := range samples {
		v := s * gain
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint32(dst[i*bytesPerSample:], math.Float32bits(v))
	}
}
