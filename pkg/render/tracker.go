// ABOUTME: Ordered, filterable item and channel tracker for one renderer group
// ABOUTME: Feeds unsent and stale metadata blocks to the backend from the audio thread
package render

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Resonate-Protocol/admsync/internal/logging"
	"github.com/Resonate-Protocol/admsync/pkg/adm"
)

// Sink receives metadata blocks for rendering. It returns false to signal
// backpressure; the block is retried on the next pump.
type Sink interface {
	AddMetadata(group Group, index int, channels []int, block adm.ProcessedBlock) bool
}

type trackedItem struct {
	id               uint64
	nextBlock        int
	lastSentRevision int64
}

// PumpStats summarizes one Pump call
type PumpStats struct {
	Sent     int
	Resent   int
	Rejected int
}

// Err returns ErrRendererRejected when any block was refused
func (s PumpStats) Err() error {
	if s.Rejected == 0 {
		return nil
	}
	return fmt.Errorf("%d blocks: %w", s.Rejected, ErrRendererRejected)
}

func (s *PumpStats) add(o PumpStats) {
	s.Sent += o.Sent
	s.Resent += o.Resent
	s.Rejected += o.Rejected
}

// ChannelTracker tracks the items of one group in construction order.
//
// Every method that takes an adm.ItemLookup must be called while holding the
// items read lock, which is always acquired before the tracker's own lock.
type ChannelTracker struct {
	group Group

	mu        sync.Mutex
	items     []*trackedItem
	filtered  []*trackedItem
	programme int
	dirty     bool
	view      GroupMap
	indices   [][]int

	rejections atomic.Int64
}

// NewChannelTracker creates an empty tracker for group
func NewChannelTracker(group Group) *ChannelTracker {
	return &ChannelTracker{
		group:     group,
		programme: adm.NoProgramme,
		view:      GroupMap{ItemOffsets: []int{0}},
	}
}

// Group returns the tracked group
func (t *ChannelTracker) Group() Group {
	return t.group
}

// AddItem appends id with a fresh send cursor. Adding a tracked id is a no-op.
func (t *ChannelTracker) AddItem(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.findLocked(id) != nil {
		return false
	}
	t.items = append(t.items, &trackedItem{id: id, lastSentRevision: -1})
	t.dirty = true
	return true
}

// HasItem reports whether id is tracked (filtered or not)
func (t *ChannelTracker) HasItem(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.findLocked(id) != nil
}

func (t *ChannelTracker) findLocked(id uint64) *trackedItem {
	for _, e := range t.items {
		if e.id == id {
			return e
		}
	}
	return nil
}

// Programme returns the active audio programme filter
func (t *ChannelTracker) Programme() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.programme
}

// ApplyAudioProgrammeFilter restricts the view to items of programme (adm.NoProgramme
// for all items) and rewinds every surviving item by one block, so the renderer gets
// an initial state for items entering the view.
func (t *ChannelTracker) ApplyAudioProgrammeFilter(items adm.ItemLookup, programme int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.programme = programme
	t.dirty = true
	t.rebuildLocked(items)

	for _, e := range t.filtered {
		if e.nextBlock > 0 {
			e.nextBlock--
		}
	}
}

// Rewind forgets what was sent so every item's blocks go out again from the
// first one. Used when playback restarts from an earlier position.
func (t *ChannelTracker) Rewind() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.items {
		e.nextBlock = 0
		e.lastSentRevision = -1
	}
}

// SendCursor returns the next block index to send for id
func (t *ChannelTracker) SendCursor(id uint64) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.findLocked(id)
	if e == nil {
		return 0, false
	}
	return e.nextBlock, true
}

// Dirty reports whether the channel map needs a rebuild
func (t *ChannelTracker) Dirty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dirty
}

// RebuildIfDirty recomputes the filtered view and channel map if membership changed
func (t *ChannelTracker) RebuildIfDirty(items adm.ItemLookup) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rebuildLocked(items)
}

func (t *ChannelTracker) rebuildLocked(items adm.ItemLookup) bool {
	if !t.dirty {
		return false
	}

	filtered := make([]*trackedItem, 0, len(t.items))
	for _, e := range t.items {
		it, ok := items.Item(e.id)
		if !ok {
			continue
		}
		if it.InProgramme(t.programme) {
			filtered = append(filtered, e)
		}
	}

	// A fresh view each time keeps previously returned slices valid
	view := GroupMap{ItemOffsets: make([]int, 0, len(filtered)+1)}
	for index, e := range filtered {
		it, _ := items.Item(e.id)
		view.ItemOffsets = append(view.ItemOffsets, len(view.ChannelNums))
		bounds := it.FrameBounds()
		for _, ch := range it.ChannelNums {
			view.ChannelNums = append(view.ChannelNums, ch)
			view.Bounds = append(view.Bounds, bounds)
		}
		logging.Debugf(logging.Channels, "%s channel %d assigned to %q", t.group, index, it.Name)
	}
	view.ItemOffsets = append(view.ItemOffsets, len(view.ChannelNums))

	indices := make([][]int, len(filtered))
	for index := range filtered {
		start, end := view.Channels(index)
		chs := make([]int, 0, end-start)
		for ch := start; ch < end; ch++ {
			chs = append(chs, ch)
		}
		indices[index] = chs
	}

	t.filtered = filtered
	t.indices = indices
	t.view = view
	t.dirty = false
	return true
}

// ChannelMap returns the flattened source channel numbers of the filtered items
func (t *ChannelTracker) ChannelMap() ([]int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dirty {
		return nil, ErrStaleChannelMap
	}
	return t.view.ChannelNums, nil
}

// Bounds returns the audio frame window of each flattened channel
func (t *ChannelTracker) Bounds() ([]adm.ChannelBounds, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dirty {
		return nil, ErrStaleChannelMap
	}
	return t.view.Bounds, nil
}

// View returns the whole channel map
func (t *ChannelTracker) View() (GroupMap, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dirty {
		return GroupMap{}, ErrStaleChannelMap
	}
	return t.view, nil
}

// ItemCount returns the number of items in the filtered view
func (t *ChannelTracker) ItemCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.filtered)
}

// FilteredIDs returns the ids in the filtered view, in order
func (t *ChannelTracker) FilteredIDs() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]uint64, len(t.filtered))
	for i, e := range t.filtered {
		ids[i] = e.id
	}
	return ids
}

// ChannelCount returns the number of flattened channels
func (t *ChannelTracker) ChannelCount() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dirty {
		return 0, ErrStaleChannelMap
	}
	return len(t.view.ChannelNums), nil
}

// ChannelIndicesFor returns the flattened channel indices of filtered item index
func (t *ChannelTracker) ChannelIndicesFor(index int) ([]int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dirty {
		return nil, ErrStaleChannelMap
	}
	if index < 0 || index >= t.view.Items() {
		return nil, fmt.Errorf("item index %d out of range (%d items)", index, t.view.Items())
	}
	return append([]int(nil), t.indices[index]...), nil
}

// Pump pushes every unsent block of the filtered items to sink, advancing each
// item's cursor on success and stopping that item on backpressure. A last-sent
// block that went stale since it was sent is pushed again first.
func (t *ChannelTracker) Pump(items adm.ItemLookup, cfg *adm.Config, sink Sink) PumpStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rebuildLocked(items)

	var stats PumpStats
	for index, e := range t.filtered {
		it, ok := items.Item(e.id)
		if !ok {
			continue
		}
		stats.add(t.pumpItem(index, e, it, cfg, sink))
	}

	if stats.Rejected > 0 {
		t.rejections.Add(int64(stats.Rejected))
	}
	return stats
}

func (t *ChannelTracker) pumpItem(index int, e *trackedItem, it *adm.Item, cfg *adm.Config, sink Sink) PumpStats {
	var stats PumpStats
	channels := t.indices[index]
	limit := it.BlockCount()

	if e.nextBlock > 0 {
		pb := it.Block(e.nextBlock - 1).Processed(cfg)
		if e.lastSentRevision < pb.Revision {
			if !sink.AddMetadata(t.group, index, channels, pb) {
				stats.Rejected++
				return stats
			}
			e.lastSentRevision = pb.Revision
			stats.Resent++
		}
	}

	for e.nextBlock < limit {
		pb := it.Block(e.nextBlock).Processed(cfg)
		if !sink.AddMetadata(t.group, index, channels, pb) {
			stats.Rejected++
			break
		}
		e.lastSentRevision = pb.Revision
		e.nextBlock++
		stats.Sent++
	}
	return stats
}

// Rejections returns the total number of refused blocks
func (t *ChannelTracker) Rejections() int64 {
	return t.rejections.Load()
}
