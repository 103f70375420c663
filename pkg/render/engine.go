// ABOUTME: Engine renderer playing one voice per object and direct speaker item
// ABOUTME: Voices follow per-tick metadata updates with lock-free gain and pan
package render

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/Resonate-Protocol/admsync/internal/logging"
	"github.com/Resonate-Protocol/admsync/pkg/adm"
)

type voice struct {
	id      uint64
	name    string
	channel int
	bounds  adm.ChannelBounds

	// Targets written by the update goroutine
	gain  atomic.Uint64
	left  atomic.Uint64
	right atomic.Uint64

	// Ramp state owned by the audio goroutine
	lastGain, lastLeft, lastRight float64
}

func (v *voice) setTarget(gain, left, right float64) {
	v.gain.Store(math.Float64bits(gain))
	v.left.Store(math.Float64bits(left))
	v.right.Store(math.Float64bits(right))
}

func (v *voice) target() (gain, left, right float64) {
	return math.Float64frombits(v.gain.Load()),
		math.Float64frombits(v.left.Load()),
		math.Float64frombits(v.right.Load())
}

// EngineRenderer plays the first channel of every object and direct speaker
// item, positioned by the metadata delivered each tick
type EngineRenderer struct {
	items      ItemSource
	samples    SampleProvider
	sampleRate int
	transport  *transport

	mu     sync.Mutex
	byID   map[uint64]*voice
	voices atomic.Pointer[[]*voice]

	scratch []float32
}

// NewEngineRenderer creates an engine renderer
func NewEngineRenderer(config Config) *EngineRenderer {
	r := &EngineRenderer{
		items:      config.Items,
		samples:    config.Samples,
		sampleRate: config.SampleRate,
		transport:  newTransport(config.SampleRate, config.StartingPosition),
		byID:       make(map[uint64]*voice),
	}
	empty := []*voice{}
	r.voices.Store(&empty)

	logging.Debugf(logging.Startup, "Starting engine renderer at %dHz", config.SampleRate)
	return r
}

// OnItemsReady creates a voice for each new object or direct speaker item
func (r *EngineRenderer) OnItemsReady(ids []uint64) {
	var created []*voice
	r.items.View(func(items adm.ItemLookup) {
		for _, id := range ids {
			it, ok := items.Item(id)
			if !ok || len(it.ChannelNums) == 0 {
				continue
			}
			if it.Type != adm.TypeObjects && it.Type != adm.TypeDirectSpeakers {
				logging.Debugf(logging.Channels, "Engine renderer skips %s item %q", it.Type, it.Name)
				continue
			}
			created = append(created, &voice{
				id:      id,
				name:    it.Name,
				channel: it.ChannelNums[0],
				bounds:  it.FrameBounds(),
			})
		}
	})

	r.mu.Lock()
	defer r.mu.Unlock()

	next := append([]*voice(nil), *r.voices.Load()...)
	for _, v := range created {
		if _, exists := r.byID[v.id]; exists {
			continue
		}
		r.byID[v.id] = v
		next = append(next, v)
		logging.Debugf(logging.Channels, "Engine voice for %q on channel %d", v.name, v.channel)
	}
	r.voices.Store(&next)
}

// OnMetadataUpdate retargets the item's voice
func (r *EngineRenderer) OnMetadataUpdate(u adm.MetadataUpdate) {
	r.mu.Lock()
	v, ok := r.byID[u.ID]
	r.mu.Unlock()
	if !ok {
		return
	}
	left, right := panGains(u.Position)
	v.setTarget(u.Gain, left, right)
}

// VoiceCount returns the number of voices
func (r *EngineRenderer) VoiceCount() int {
	return len(*r.voices.Load())
}

// ScheduleAudioPlayback starts rendering at dspTime
func (r *EngineRenderer) ScheduleAudioPlayback(dspTime float64) {
	r.transport.schedule(dspTime)
}

// StopAudioPlayback silences output until playback is scheduled again
func (r *EngineRenderer) StopAudioPlayback() {
	r.transport.stop()
}

func (r *EngineRenderer) OnUpdateBegin() {}
func (r *EngineRenderer) OnUpdateEnd()   {}

// Shutdown stops playback and drops every voice
func (r *EngineRenderer) Shutdown() {
	r.transport.stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[uint64]*voice)
	empty := []*voice{}
	r.voices.Store(&empty)
}

// Process mixes every voice into out, ramping gains across the block
func (r *EngineRenderer) Process(out []float32) {
	clear(out)

	frames := len(out) / Channels
	lead, sourceFrame, ok := r.transport.advance(frames)
	if !ok {
		return
	}
	n := frames - lead
	if cap(r.scratch) < n {
		r.scratch = make([]float32, n)
	}
	buf := r.scratch[:n]
	dst := out[lead*Channels:]

	for _, v := range *r.voices.Load() {
		gain, left, right := v.target()
		startL, startR := v.lastGain*v.lastLeft, v.lastGain*v.lastRight
		endL, endR := gain*left, gain*right
		v.lastGain, v.lastLeft, v.lastRight = gain, left, right

		if startL == 0 && startR == 0 && endL == 0 && endR == 0 {
			continue
		}

		r.samples.ReadChannel(v.channel, sourceFrame, v.bounds, buf)
		step := 1.0 / float64(n)
		for i, s := range buf {
			f := float64(i) * step
			gl := startL + (endL-startL)*f
			gr := startR + (endR-startR)*f
			dst[i*Channels] += s * float32(gl)
			dst[i*Channels+1] += s * float32(gr)
		}
	}
}
