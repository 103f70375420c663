// ABOUTME: Renderable item timeline
// ABOUTME: Resolves interpolated position and gain at a playhead time
package adm

import (
	"math"

	"github.com/Resonate-Protocol/admsync/internal/logging"
	"github.com/go-gl/mathgl/mgl64"
)

// Item is one renderable ADM entity with its ordered metadata blocks.
//
// Blocks are appended under the owner's items write lock. Resolve and
// ResetCursor are called from the single dispatch goroutine.
type Item struct {
	ID          uint64
	Name        string
	Type        TypeDef
	ChannelNums []int

	AudioStartTime float64
	AudioEndTime   float64

	audioStartFrame int
	audioEndFrame   int

	programmes map[int]struct{}
	blocks     []*Block

	cursor   int
	runState RunState
	resets   int
}

// NewItem creates an item from the first block seen for its id
func NewItem(first RawBlock, sampleRate int) *Item {
	it := &Item{
		ID:             first.ID,
		Name:           first.Name,
		Type:           first.Type,
		ChannelNums:    append([]int(nil), first.ChannelNums...),
		AudioStartTime: first.AudioStartTime,
		AudioEndTime:   first.AudioEndTime,
		programmes:     make(map[int]struct{}),
		runState:       RunStateUnknown,
	}
	it.calculateFrameRange(sampleRate)
	return it
}

func (it *Item) calculateFrameRange(sampleRate int) {
	sr := float64(sampleRate)
	it.audioStartFrame = int(it.AudioStartTime * sr)
	it.audioEndFrame = math.MaxInt32
	if !math.IsInf(it.AudioEndTime, 1) && !math.IsNaN(it.AudioEndTime) {
		it.audioEndFrame = int(it.AudioEndTime * sr)
	}
}

// FrameBounds returns the item's audio window in frames
func (it *Item) FrameBounds() ChannelBounds {
	return ChannelBounds{LowerFrame: it.audioStartFrame, UpperFrame: it.audioEndFrame}
}

// Append stores a new block and unions its programme membership
func (it *Item) Append(raw RawBlock) *Block {
	for _, id := range raw.ProgrammeIDs {
		it.programmes[id] = struct{}{}
	}
	b := NewBlock(raw)
	it.blocks = append(it.blocks, b)
	return b
}

// BlockCount returns the number of ingested blocks
func (it *Item) BlockCount() int {
	return len(it.blocks)
}

// Block returns block i
func (it *Item) Block(i int) *Block {
	return it.blocks[i]
}

// InProgramme reports membership of an audio programme. NoProgramme matches all items.
func (it *Item) InProgramme(id int) bool {
	if id == NoProgramme {
		return true
	}
	_, ok := it.programmes[id]
	return ok
}

// Programmes returns the programme ids the item belongs to
func (it *Item) Programmes() []int {
	ids := make([]int, 0, len(it.programmes))
	for id := range it.programmes {
		ids = append(ids, id)
	}
	return ids
}

// ResetCursor rewinds scanning to the first block
func (it *Item) ResetCursor() {
	it.cursor = 0
	it.resets++
}

// Cursor returns the index scanning resumes from
func (it *Item) Cursor() int {
	return it.cursor
}

// Resets counts cursor rewinds
func (it *Item) Resets() int {
	return it.resets
}

// RunState returns the state of the last resolve
func (it *Item) RunState() RunState {
	return it.runState
}

// AudioActive reports whether t lies strictly inside the item's audio window
func (it *Item) AudioActive(t float64) bool {
	return it.AudioStartTime < t && it.AudioEndTime > t
}

// NoMetadata builds the update for an item that has not reached any block
func (it *Item) NoMetadata(t float64) MetadataUpdate {
	it.setRunState(RunStateNoMetadata)
	return MetadataUpdate{
		ID:          it.ID,
		Type:        it.Type,
		RunState:    RunStateNoMetadata,
		AudioActive: it.AudioActive(t),
	}
}

// Resolve scans forward from the cursor and returns the item's state at t.
// The caller resets the cursor whenever t moves backwards.
func (it *Item) Resolve(t float64, cfg *Config) MetadataUpdate {
	lastCompleted := -1
	processing := -1

	for i := it.cursor; i < len(it.blocks); i++ {
		b := it.blocks[i]
		if b.StartTime() > t {
			break
		}
		it.cursor = i
		if b.EndTime() > t {
			processing = i
			break
		}
		lastCompleted = i
	}

	u := MetadataUpdate{
		ID:          it.ID,
		Type:        it.Type,
		AudioActive: it.AudioActive(t),
	}

	switch {
	case lastCompleted >= 0 && lastCompleted == len(it.blocks)-1:
		pb := it.blocks[lastCompleted].Processed(cfg)
		u.Position = pb.Position
		u.Gain = 0
		u.RunState = RunStateReachedEnd

	case processing >= 0:
		b := it.blocks[processing]
		pb := b.Processed(cfg)

		interpolant := 0.0
		if b.JumpPosition() {
			if b.StartTime()+b.InterpolationLength() > t {
				interpolant = (t - b.StartTime()) / b.InterpolationLength()
			} else {
				interpolant = 1.0
			}
		} else {
			interpolant = (t - b.StartTime()) / b.Duration()
		}

		startPos := pb.Position
		startGain := 1.0
		if processing > 0 {
			prev := it.blocks[processing-1].Processed(cfg)
			startPos = prev.Position
			startGain = prev.Gain
		}

		if b.MoveSpherically() {
			u.Position = Slerp(startPos, pb.Position, interpolant)
		} else {
			u.Position = Lerp(startPos, pb.Position, interpolant)
		}
		u.Gain = startGain + interpolant*(pb.Gain-startGain)
		u.Interpolant = interpolant
		u.RunState = RunStateProcessing

	case lastCompleted >= 0:
		pb := it.blocks[lastCompleted].Processed(cfg)
		u.Position = pb.Position
		u.Gain = pb.Gain
		u.RunState = RunStateInGap

	default:
		u.Position = mgl64.Vec3{}
		u.Gain = 0
		u.RunState = RunStateNoMetadata
	}

	it.setRunState(u.RunState)
	return u
}

func (it *Item) setRunState(s RunState) {
	if s == it.runState {
		return
	}
	switch s {
	case RunStateReachedEnd:
		logging.Debugf(logging.RunStates, "Metadata end for %q - no more blocks to process", it.Name)
	case RunStateProcessing:
		logging.Debugf(logging.RunStates, "Metadata for %q processing", it.Name)
	case RunStateInGap:
		logging.Debugf(logging.RunStates, "Metadata gap for %q", it.Name)
	case RunStateNoMetadata:
		logging.Debugf(logging.RunStates, "Metadata end for %q - no blocks ever processed", it.Name)
	}
	it.runState = s
}

// ItemLookup finds items by id. Implementations are only valid while the
// owner's items lock is held.
type ItemLookup interface {
	Item(id uint64) (*Item, bool)
}
