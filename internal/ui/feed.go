// ABOUTME: Handler listener that feeds the TUI
// ABOUTME: Coalesces per-tick updates and forwards them without blocking dispatch
package ui

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Resonate-Protocol/admsync/pkg/adm"
	"github.com/Resonate-Protocol/admsync/pkg/visualize"
)

const (
	// DefaultFrameInterval limits how often frames reach the TUI
	DefaultFrameInterval = 50 * time.Millisecond
	feedBuffer           = 16
)

// Feed is a metadata listener producing TUI messages
type Feed struct {
	catalog  visualize.Catalog
	interval time.Duration
	out      chan tea.Msg
	dropped  atomic.Int64

	mu          sync.Mutex
	latest      map[uint64]visualize.ItemState
	lastSent    time.Time
	unannounced []visualize.ItemDescription
}

// NewFeed creates a feed. catalog may be nil, in which case new items are
// announced by id only.
func NewFeed(catalog visualize.Catalog, interval time.Duration) *Feed {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &Feed{
		catalog:  catalog,
		interval: interval,
		out:      make(chan tea.Msg, feedBuffer),
		latest:   make(map[uint64]visualize.ItemState),
	}
}

// OnItemsReady announces new items. Announcements that do not fit the queue are
// retried on later ticks instead of being dropped.
func (f *Feed) OnItemsReady(ids []uint64) {
	descs := make([]visualize.ItemDescription, 0, len(ids))
	for _, id := range ids {
		desc := visualize.ItemDescription{ID: id}
		if f.catalog != nil {
			if info, ok := f.catalog.ItemInfo(id); ok {
				desc = visualize.Describe(info)
			}
		}
		descs = append(descs, desc)
	}
	f.announce(descs)
}

// announce queues descs together with any earlier announcements still waiting
func (f *Feed) announce(descs []visualize.ItemDescription) {
	f.mu.Lock()
	items := append(f.unannounced, descs...)
	f.unannounced = nil
	f.mu.Unlock()
	if len(items) == 0 {
		return
	}

	select {
	case f.out <- ItemsMsg{Items: items}:
	default:
		f.mu.Lock()
		f.unannounced = append(items, f.unannounced...)
		f.mu.Unlock()
	}
}

// Unannounced returns the number of items waiting for room in the queue
func (f *Feed) Unannounced() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.unannounced)
}

// OnMetadataUpdate records the latest state of an item
func (f *Feed) OnMetadataUpdate(u adm.MetadataUpdate) {
	f.mu.Lock()
	f.latest[u.ID] = visualize.StateOf(u)
	f.mu.Unlock()
}

// OnTickEnd emits the coalesced states once per interval
func (f *Feed) OnTickEnd(t float64) {
	f.announce(nil)

	f.mu.Lock()
	now := time.Now()
	if len(f.latest) == 0 || now.Sub(f.lastSent) < f.interval {
		f.mu.Unlock()
		return
	}
	frame := FrameMsg{Time: t, Items: make([]visualize.ItemState, 0, len(f.latest))}
	for _, st := range f.latest {
		frame.Items = append(frame.Items, st)
	}
	clear(f.latest)
	f.lastSent = now
	f.mu.Unlock()

	sort.Slice(frame.Items, func(i, j int) bool { return frame.Items[i].ID < frame.Items[j].ID })
	f.emit(frame)
}

// Status queues a status update
func (f *Feed) Status(msg StatusMsg) {
	f.emit(msg)
}

// Dropped returns the number of messages discarded because the TUI was behind
func (f *Feed) Dropped() int64 {
	return f.dropped.Load()
}

// Messages exposes the queued messages
func (f *Feed) Messages() <-chan tea.Msg {
	return f.out
}

// Forward delivers queued messages to send until ctx is done
func (f *Feed) Forward(ctx context.Context, send func(tea.Msg)) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-f.out:
			send(msg)
		}
	}
}

func (f *Feed) emit(msg tea.Msg) {
	select {
	case f.out <- msg:
	default:
		f.dropped.Add(1)
	}
}
