// ABOUTME: Renderer interface, renderer kinds and shared playback transport
// ABOUTME: One interface covers the engine, external and silent renderers
package render

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/Resonate-Protocol/admsync/internal/logging"
	"github.com/Resonate-Protocol/admsync/pkg/adm"
	"github.com/Resonate-Protocol/admsync/pkg/metadata"
)

// Channels is the number of interleaved output channels every renderer produces
const Channels = 2

// Renderer turns item metadata and source audio into output samples
type Renderer interface {
	metadata.Listener

	// ScheduleAudioPlayback starts output at dspTime (seconds on the device clock)
	ScheduleAudioPlayback(dspTime float64)
	StopAudioPlayback()

	// OnUpdateBegin and OnUpdateEnd bracket every update tick
	OnUpdateBegin()
	OnUpdateEnd()

	Shutdown()

	// Process fills out with interleaved stereo samples. It runs on the real-time
	// audio goroutine and must not block on ingestion.
	Process(out []float32)
}

// ItemSource is the part of the metadata handler renderers read from
type ItemSource interface {
	View(fn func(adm.ItemLookup))
	Settings() *adm.Settings
}

// SampleProvider reads source audio. Frames outside bounds or outside the
// source are written as silence. It returns the number of frames written.
type SampleProvider interface {
	ReadChannel(channel int, startFrame int, bounds adm.ChannelBounds, dst []float32) int
}

// Kind selects a renderer implementation
type Kind int

const (
	KindNone Kind = iota
	KindEngine
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindEngine:
		return "engine"
	case KindExternal:
		return "external"
	default:
		return "none"
	}
}

// ParseKind maps a renderer name to its Kind
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return KindNone, nil
	case "engine":
		return KindEngine, nil
	case "external":
		return KindExternal, nil
	default:
		return KindNone, fmt.Errorf("unknown renderer: %s", s)
	}
}

// Config holds renderer construction parameters
type Config struct {
	Items      ItemSource
	Samples    SampleProvider
	SampleRate int

	// StartingPosition is the source position in seconds playback begins at.
	// Negative values delay the start.
	StartingPosition float64

	// Backend receives metadata and render calls of the external renderer
	// (a Panner over Samples when nil)
	Backend Backend
}

// New constructs the renderer selected by kind
func New(kind Kind, config Config) (Renderer, error) {
	switch kind {
	case KindNone:
		return &silentRenderer{}, nil
	case KindEngine:
		if config.Items == nil || config.Samples == nil {
			return nil, fmt.Errorf("engine renderer needs items and samples")
		}
		return NewEngineRenderer(config), nil
	case KindExternal:
		if config.Items == nil {
			return nil, fmt.Errorf("external renderer needs items")
		}
		if config.Backend == nil {
			if config.Samples == nil {
				return nil, fmt.Errorf("external renderer needs a backend or samples")
			}
			config.Backend = NewPanner(config.Samples, config.SampleRate, DefaultQueueLimit)
		}
		return NewExternalRenderer(config), nil
	default:
		return nil, fmt.Errorf("unknown renderer kind %d", kind)
	}
}

// transport maps device frames to source frames
type transport struct {
	sampleRate  int
	deviceFrame atomic.Int64
	startFrame  atomic.Int64 // -1 when not scheduled
	offset      atomic.Int64 // source frame at startFrame
	startingPos float64
}

func newTransport(sampleRate int, startingPosition float64) *transport {
	tr := &transport{sampleRate: sampleRate, startingPos: startingPosition}
	tr.startFrame.Store(-1)
	return tr
}

func (tr *transport) schedule(dspTime float64) {
	start := int64(math.Round(dspTime * float64(tr.sampleRate)))
	offset := int64(math.Round(tr.startingPos * float64(tr.sampleRate)))
	if now := tr.deviceFrame.Load(); start < now {
		logging.Debugf(logging.Scheduling, "Scheduled time %.3f is in the past, starting now", dspTime)
		start = now
	}
	tr.offset.Store(offset)
	tr.startFrame.Store(start)
	logging.Debugf(logging.Scheduling, "Setting sample position offset: %d from starting position %.3f at device frame %d",
		offset, tr.startingPos, start)
}

func (tr *transport) stop() {
	tr.startFrame.Store(-1)
}

func (tr *transport) scheduled() bool {
	return tr.startFrame.Load() >= 0
}

// advance consumes frames of device time. It returns how many leading frames are
// silent and the source frame of the first audible frame.
func (tr *transport) advance(frames int) (lead int, sourceFrame int, ok bool) {
	now := tr.deviceFrame.Add(int64(frames)) - int64(frames)
	start := tr.startFrame.Load()
	if start < 0 || now+int64(frames) <= start {
		return frames, 0, false
	}
	if start > now {
		lead = int(start - now)
	}
	sourceFrame = int(now + int64(lead) - start + tr.offset.Load())
	return lead, sourceFrame, true
}

// silentRenderer renders nothing
type silentRenderer struct{}

func (*silentRenderer) OnItemsReady([]uint64)              {}
func (*silentRenderer) OnMetadataUpdate(adm.MetadataUpdate) {}
func (*silentRenderer) ScheduleAudioPlayback(float64)       {}
func (*silentRenderer) StopAudioPlayback()                  {}
func (*silentRenderer) OnUpdateBegin()                      {}
func (*silentRenderer) OnUpdateEnd()                        {}
func (*silentRenderer) Shutdown()                           {}

func (*silentRenderer) Process(out []float32) {
	clear(out)
}

// panGains returns constant-power stereo gains for a position (x right, y front)
func panGains(pos [3]float64) (left, right float64) {
	d := math.Sqrt(pos[0]*pos[0] + pos[1]*pos[1] + pos[2]*pos[2])
	pan := 0.0
	if d > 0 {
		pan = math.Max(-1, math.Min(1, pos[0]/d))
	}
	angle := (pan + 1) * math.Pi / 4
	return math.Cos(angle), math.Sin(angle)
}
