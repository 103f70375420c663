// ABOUTME: Reference stereo panner backend for the external renderer
// ABOUTME: Queues metadata per channel with bounded capacity and mixes source audio
package render

import (
	"fmt"
	"math"
	"sync"

	"github.com/Resonate-Protocol/admsync/pkg/adm"
)

// DefaultQueueLimit is the number of pending blocks a Panner accepts per item
const DefaultQueueLimit = 32

// Backend is an external renderer: it accepts metadata per item and renders
// blocks of audio from flattened channel maps
type Backend interface {
	Sink
	RenderBlock(req RenderRequest, out []float32) error
}

// RenderRequest describes one block to render
type RenderRequest struct {
	Groups [groupCount]GroupMap

	// FramePosition is the source frame of the first output frame
	FramePosition int
	Frames        int
}

type blockQueue struct {
	id         uint64
	pending    []adm.ProcessedBlock
	current    adm.ProcessedBlock
	hasCurrent bool
}

func (q *blockQueue) reset(id uint64) {
	q.id = id
	q.pending = q.pending[:0]
	q.hasCurrent = false
}

// stateAt promotes every pending block that has started by t and returns the
// block in effect
func (q *blockQueue) stateAt(t float64) (adm.ProcessedBlock, bool) {
	for len(q.pending) > 0 && q.pending[0].RTime <= t {
		q.current = q.pending[0]
		q.hasCurrent = true
		q.pending = q.pending[1:]
	}
	return q.current, q.hasCurrent
}

// Panner mixes objects and direct speakers with constant-power panning and
// decodes the zeroth and first order lateral HOA components to stereo
type Panner struct {
	samples    SampleProvider
	sampleRate int
	queueLimit int

	// OutputGain scales the rendered mix
	OutputGain float64

	mu      sync.Mutex
	queues  [groupCount][]*blockQueue
	scratch []float32
}

// NewPanner creates a panner reading audio from samples
func NewPanner(samples SampleProvider, sampleRate, queueLimit int) *Panner {
	if queueLimit <= 0 {
		queueLimit = DefaultQueueLimit
	}
	return &Panner{
		samples:    samples,
		sampleRate: sampleRate,
		queueLimit: queueLimit,
		OutputGain: 1.0,
	}
}

func (p *Panner) queue(group Group, index int) *blockQueue {
	for len(p.queues[group]) <= index {
		p.queues[group] = append(p.queues[group], &blockQueue{})
	}
	return p.queues[group][index]
}

// AddMetadata queues a block for item index of group. A block with the start
// time of a queued block replaces it; a block from another item or earlier
// than the one in effect restarts the queue. It returns false when the queue is full.
func (p *Panner) AddMetadata(group Group, index int, channels []int, block adm.ProcessedBlock) bool {
	if group < 0 || group >= groupCount || index < 0 {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	q := p.queue(group, index)
	if q.id != block.ID || (q.hasCurrent && block.RTime < q.current.RTime) {
		q.reset(block.ID)
	}

	if q.hasCurrent && q.current.RTime == block.RTime {
		q.current = block
		return true
	}
	for i := range q.pending {
		if q.pending[i].RTime == block.RTime {
			q.pending[i] = block
			return true
		}
	}
	if len(q.pending) >= p.queueLimit {
		return false
	}
	q.pending = append(q.pending, block)
	return true
}

// Pending returns the number of queued blocks for item index of group
func (p *Panner) Pending(group Group, index int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index >= len(p.queues[group]) {
		return 0
	}
	return len(p.queues[group][index].pending)
}

// RenderBlock mixes req.Frames frames into out (interleaved stereo)
func (p *Panner) RenderBlock(req RenderRequest, out []float32) error {
	if len(out) < req.Frames*Channels {
		return fmt.Errorf("output buffer holds %d samples, need %d", len(out), req.Frames*Channels)
	}
	if p.sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", p.sampleRate)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if cap(p.scratch) < req.Frames {
		p.scratch = make([]float32, req.Frames)
	}
	buf := p.scratch[:req.Frames]
	t := float64(req.FramePosition) / float64(p.sampleRate)

	for g := Group(0); g < groupCount; g++ {
		gm := req.Groups[g]
		for index := 0; index < gm.Items(); index++ {
			block, ok := p.queue(g, index).stateAt(t)
			if !ok {
				continue
			}
			start, end := gm.Channels(index)
			for ch := start; ch < end; ch++ {
				left, right := p.channelGains(g, block, ch-start)
				if left == 0 && right == 0 {
					continue
				}
				p.samples.ReadChannel(gm.ChannelNums[ch], req.FramePosition, gm.Bounds[ch], buf)
				for i, s := range buf {
					out[i*Channels] += s * float32(left)
					out[i*Channels+1] += s * float32(right)
				}
			}
		}
	}
	return nil
}

func (p *Panner) channelGains(g Group, block adm.ProcessedBlock, ch int) (left, right float64) {
	gain := block.Gain * p.OutputGain
	if g != GroupHOA {
		l, r := panGains(block.Position)
		return l * gain, r * gain
	}

	// ACN 0 is omnidirectional, ACN 1 (order 1, degree -1) is the left/right dipole
	if ch >= len(block.Order) || ch >= len(block.Degree) {
		return 0, 0
	}
	switch {
	case block.Order[ch] == 0:
		return gain / math.Sqrt2, gain / math.Sqrt2
	case block.Order[ch] == 1 && block.Degree[ch] == -1:
		return gain * 0.5, -gain * 0.5
	default:
		return 0, 0
	}
}
