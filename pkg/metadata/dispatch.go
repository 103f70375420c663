// ABOUTME: Per-tick metadata dispatch to listeners
// ABOUTME: Resolves every item at the playhead and isolates per-item failures
package metadata

import (
	"log"

	"github.com/Resonate-Protocol/admsync/pkg/adm"
)

// DispatchTick resolves every item at effective playhead time t and delivers the
// updates to each listener. A time earlier than the previous tick rewinds every
// item's cursor. Must only be called from the update goroutine.
func (h *Handler) DispatchTick(t float64) int {
	cfg := h.settings.Snapshot()
	rewound := h.ticked && t < h.lastTick
	beforeStart := t < h.StartingPosition()

	h.updates = h.updates[:0]

	h.itemsMu.RLock()
	for _, id := range h.order {
		it := h.items[id]
		if rewound {
			it.ResetCursor()
		}

		var u adm.MetadataUpdate
		err := guard(func() {
			if beforeStart {
				u = it.NoMetadata(t)
			} else {
				u = it.Resolve(t, cfg)
			}
		})
		if err != nil {
			log.Printf("Failed to resolve item %d: %v", id, err)
			continue
		}
		h.updates = append(h.updates, u)
	}
	h.itemsMu.RUnlock()

	h.lastTick = t
	h.ticked = true

	listeners := h.snapshotListeners()
	for _, u := range h.updates {
		for _, l := range listeners {
			if err := guard(func() { l.OnMetadataUpdate(u) }); err != nil {
				log.Printf("Failed to deliver update for item %d: %v", u.ID, err)
			}
		}
	}

	for _, l := range listeners {
		if obs, ok := l.(TickObserver); ok {
			if err := guard(func() { obs.OnTickEnd(t) }); err != nil {
				log.Printf("Tick end failed: %v", err)
			}
		}
	}

	return len(h.updates)
}
