// ABOUTME: Metadata handler owning all renderable items of a session
// ABOUTME: Lifecycle, item store, pending constructions and listener registry
package metadata

import (
	"fmt"
	"io"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/admsync/internal/logging"
	"github.com/Resonate-Protocol/admsync/pkg/adm"
	"github.com/google/uuid"
)

// Config holds handler configuration
type Config struct {
	// Opener opens the source passed to Load
	Opener Opener

	// Settings holds the processing configuration (a default store is created if nil)
	Settings *adm.Settings

	// StartingPosition is the playhead position playback begins at. No block is
	// scanned while the effective time is before it.
	StartingPosition float64

	// CyclePeriod throttles the ingestion loop between cycles (0 = no throttle)
	CyclePeriod time.Duration

	// IdleWait is the minimum pause after a cycle that found nothing
	IdleWait time.Duration

	// StopTimeout bounds StopBackgroundIngestion
	StopTimeout time.Duration
}

// ItemInfo is a copy of an item's descriptive fields
type ItemInfo struct {
	ID          uint64
	Name        string
	Type        adm.TypeDef
	ChannelNums []int
	Programmes  []int
	BlockCount  int
	Bounds      adm.ChannelBounds
}

// Handler owns all renderable items and dispatches their metadata
type Handler struct {
	config   Config
	settings *adm.Settings

	// sourceMu guards the source and session fields
	sourceMu   sync.Mutex
	source     Source
	sessionID  string
	sampleRate int

	// itemsMu is the items lock. Ingestion holds it for one append at a time.
	itemsMu sync.RWMutex
	items   map[uint64]*adm.Item
	order   []uint64

	pendingMu sync.Mutex
	pending   []uint64

	listenersMu sync.RWMutex
	listeners   []Listener

	startingPosition atomic.Uint64

	// Dispatch goroutine only
	lastTick float64
	ticked   bool
	updates  []adm.MetadataUpdate

	loopMu sync.Mutex
	stop   chan struct{}
	done   chan struct{}
}

// NewHandler creates a handler with no source loaded
func NewHandler(config Config) *Handler {
	if config.Settings == nil {
		config.Settings = adm.NewSettings(adm.DefaultConfig())
	}
	if config.IdleWait == 0 {
		config.IdleWait = 10 * time.Millisecond
	}
	if config.StopTimeout == 0 {
		config.StopTimeout = 2 * time.Second
	}

	h := &Handler{
		config:   config,
		settings: config.Settings,
		items:    make(map[uint64]*adm.Item),
	}
	h.SetStartingPosition(config.StartingPosition)

	logging.Debugf(logging.Startup, "Metadata handler created")
	return h
}

// Settings returns the processing configuration store
func (h *Handler) Settings() *adm.Settings {
	return h.settings
}

// SetStartingPosition changes the playhead position playback begins at
func (h *Handler) SetStartingPosition(seconds float64) {
	h.startingPosition.Store(math.Float64bits(seconds))
}

// StartingPosition returns the playhead position playback begins at
func (h *Handler) StartingPosition() float64 {
	return math.Float64frombits(h.startingPosition.Load())
}

// AddListener registers a downstream listener
func (h *Handler) AddListener(l Listener) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	h.listeners = append(h.listeners, l)
}

// RemoveListener unregisters a listener
func (h *Handler) RemoveListener(l Listener) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	for i, existing := range h.listeners {
		if existing == l {
			h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
			return
		}
	}
}

func (h *Handler) snapshotListeners() []Listener {
	h.listenersMu.RLock()
	defer h.listenersMu.RUnlock()
	return append([]Listener(nil), h.listeners...)
}

// Load opens path through the configured Opener
func (h *Handler) Load(path string) error {
	h.sourceMu.Lock()
	defer h.sourceMu.Unlock()

	if h.source != nil {
		return ErrAlreadyLoaded
	}
	if h.config.Opener == nil {
		return fmt.Errorf("no opener configured: %w", ErrSourceUnavailable)
	}

	start := time.Now()
	src, err := h.config.Opener(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}

	h.source = src
	h.sampleRate = src.SampleRate()
	h.sessionID = uuid.New().String()

	log.Printf("Loaded %s: %dHz, %d frames (session %s)", path, h.sampleRate, src.FrameCount(), h.sessionID)
	logging.Debugf(logging.Profiling, "Read complete in %v", time.Since(start))
	return nil
}

// Loaded reports whether a source is open
func (h *Handler) Loaded() bool {
	h.sourceMu.Lock()
	defer h.sourceMu.Unlock()
	return h.source != nil
}

// SessionID identifies the current load (empty when nothing is loaded)
func (h *Handler) SessionID() string {
	h.sourceMu.Lock()
	defer h.sourceMu.Unlock()
	return h.sessionID
}

// SampleRate of the loaded source (0 when nothing is loaded)
func (h *Handler) SampleRate() int {
	h.sourceMu.Lock()
	defer h.sourceMu.Unlock()
	return h.sampleRate
}

// FrameCount of the loaded source (0 when nothing is loaded)
func (h *Handler) FrameCount() int {
	h.sourceMu.Lock()
	defer h.sourceMu.Unlock()
	if h.source == nil {
		return 0
	}
	return h.source.FrameCount()
}

// Duration of the loaded source in seconds
func (h *Handler) Duration() float64 {
	rate := h.SampleRate()
	if rate == 0 {
		return 0
	}
	return float64(h.FrameCount()) / float64(rate)
}

// View runs fn while holding the items read lock. fn must not call back into
// the handler.
func (h *Handler) View(fn func(adm.ItemLookup)) {
	h.itemsMu.RLock()
	defer h.itemsMu.RUnlock()
	fn(itemLookup(h.items))
}

type itemLookup map[uint64]*adm.Item

func (l itemLookup) Item(id uint64) (*adm.Item, bool) {
	it, ok := l[id]
	return it, ok
}

// ItemCount returns the number of known items
func (h *Handler) ItemCount() int {
	h.itemsMu.RLock()
	defer h.itemsMu.RUnlock()
	return len(h.order)
}

// ItemIDs returns item ids in first-seen order
func (h *Handler) ItemIDs() []uint64 {
	h.itemsMu.RLock()
	defer h.itemsMu.RUnlock()
	return append([]uint64(nil), h.order...)
}

// ItemInfo describes one item
func (h *Handler) ItemInfo(id uint64) (ItemInfo, bool) {
	h.itemsMu.RLock()
	defer h.itemsMu.RUnlock()

	it, ok := h.items[id]
	if !ok {
		return ItemInfo{}, false
	}
	return ItemInfo{
		ID:          it.ID,
		Name:        it.Name,
		Type:        it.Type,
		ChannelNums: append([]int(nil), it.ChannelNums...),
		Programmes:  it.Programmes(),
		BlockCount:  it.BlockCount(),
		Bounds:      it.FrameBounds(),
	}, true
}

// FlushPendingConstructions hands all items awaiting construction to every
// listener in one batch
func (h *Handler) FlushPendingConstructions() int {
	h.pendingMu.Lock()
	ids := h.pending
	h.pending = nil
	h.pendingMu.Unlock()

	if len(ids) == 0 {
		return 0
	}

	logging.Debugf(logging.Pull, "Constructing %d items", len(ids))
	for _, l := range h.snapshotListeners() {
		if err := guard(func() { l.OnItemsReady(ids) }); err != nil {
			log.Printf("Item construction failed: %v", err)
		}
	}
	return len(ids)
}

// PendingCount returns the number of items awaiting construction
func (h *Handler) PendingCount() int {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()
	return len(h.pending)
}

// Reset marks every known item as awaiting construction again. Items and blocks
// are kept.
func (h *Handler) Reset() {
	h.itemsMu.RLock()
	ids := append([]uint64(nil), h.order...)
	h.itemsMu.RUnlock()

	h.pendingMu.Lock()
	h.pending = ids
	h.pendingMu.Unlock()

	logging.Debugf(logging.Startup, "Metadata handler reset: %d items awaiting construction", len(ids))
}

// Shutdown stops ingestion, drops every item and closes the source. The handler
// can be loaded again afterwards.
func (h *Handler) Shutdown() error {
	stopErr := h.StopBackgroundIngestion()
	if stopErr != nil {
		log.Printf("Warning: shutting down with ingestion still running: %v", stopErr)
	}

	h.itemsMu.Lock()
	h.items = make(map[uint64]*adm.Item)
	h.order = nil
	h.itemsMu.Unlock()

	h.pendingMu.Lock()
	h.pending = nil
	h.pendingMu.Unlock()

	h.sourceMu.Lock()
	src := h.source
	h.source = nil
	h.sessionID = ""
	h.sampleRate = 0
	h.sourceMu.Unlock()

	if c, ok := src.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Printf("Failed to close source: %v", err)
		}
	}

	logging.Debugf(logging.Startup, "Metadata handler shut down")
	return stopErr
}

// guard runs fn and converts a panic into an error
func guard(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	fn()
	return nil
}
