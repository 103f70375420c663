// ABOUTME: Block ingestion and the background ingestion loop
// ABOUTME: Polls the source outside the items lock and appends one block at a time
package metadata

import (
	"log"
	"time"

	"github.com/Resonate-Protocol/admsync/internal/logging"
	"github.com/Resonate-Protocol/admsync/pkg/adm"
)

// IngestOneBlock pulls one block from the source and stores it. It returns false
// when no block is available.
func (h *Handler) IngestOneBlock() (bool, error) {
	h.sourceMu.Lock()
	src := h.source
	if src == nil {
		h.sourceMu.Unlock()
		return false, ErrSourceUnavailable
	}
	raw, ok := src.NextMetadataBlock()
	sampleRate := h.sampleRate
	h.sourceMu.Unlock()

	if !ok {
		return false, nil
	}

	h.itemsMu.Lock()
	it, exists := h.items[raw.ID]
	if !exists {
		it = adm.NewItem(raw, sampleRate)
		h.items[raw.ID] = it
		h.order = append(h.order, raw.ID)

		h.pendingMu.Lock()
		h.pending = append(h.pending, raw.ID)
		h.pendingMu.Unlock()
	}
	it.Append(raw)
	h.itemsMu.Unlock()

	if !exists {
		logging.Debugf(logging.Pull, "New %s item %d %q on channels %v", raw.Type, raw.ID, raw.Name, raw.ChannelNums)
	}
	return true, nil
}

// DiscoverNewItems asks the source to make new items readable
func (h *Handler) DiscoverNewItems() (int, error) {
	h.sourceMu.Lock()
	defer h.sourceMu.Unlock()

	if h.source == nil {
		return 0, ErrSourceUnavailable
	}
	n := h.source.DiscoverNewItems()
	if n > 0 {
		logging.Debugf(logging.Pull, "Discovered %d new items", n)
	}
	return n, nil
}

// InitialPull discovers items, drains every available block and constructs the
// new items. It returns the number of blocks ingested.
func (h *Handler) InitialPull() (int, error) {
	start := time.Now()
	logging.Debugf(logging.Profiling, "Initial renderable item discovery starting")
	if _, err := h.DiscoverNewItems(); err != nil {
		return 0, err
	}
	logging.Debugf(logging.Profiling, "Initial renderable item discovery complete in %v", time.Since(start))

	pullStart := time.Now()
	n, err := h.drain(nil)
	if err != nil {
		return n, err
	}
	logging.Debugf(logging.Profiling, "Initial block pull of %d blocks complete in %v", n, time.Since(pullStart))

	h.FlushPendingConstructions()
	return n, nil
}

// drain ingests until the source has nothing left or stop is closed
func (h *Handler) drain(stop <-chan struct{}) (int, error) {
	n := 0
	for {
		select {
		case <-stop:
			return n, nil
		default:
		}

		ok, err := h.IngestOneBlock()
		if err != nil {
			return n, err
		}
		if !ok {
			return n, nil
		}
		n++
	}
}

// StartBackgroundIngestion starts the ingestion loop. Starting an already
// running loop is a no-op.
func (h *Handler) StartBackgroundIngestion() error {
	h.loopMu.Lock()
	defer h.loopMu.Unlock()

	if h.done != nil {
		if h.stop != nil {
			return nil
		}
		// A previous loop never acknowledged its stop request
		return ErrLoopTimeout
	}
	if !h.Loaded() {
		return ErrSourceUnavailable
	}

	h.stop = make(chan struct{})
	h.done = make(chan struct{})
	go h.ingestLoop(h.stop, h.done)

	logging.Debugf(logging.Pull, "Starting pull loop")
	return nil
}

// IngestionRunning reports whether the loop is running
func (h *Handler) IngestionRunning() bool {
	h.loopMu.Lock()
	defer h.loopMu.Unlock()
	return h.done != nil
}

// StopBackgroundIngestion requests the loop to stop and waits up to StopTimeout
// for it to acknowledge. The loop is never killed; on timeout ErrLoopTimeout is
// returned and a later call waits again.
func (h *Handler) StopBackgroundIngestion() error {
	h.loopMu.Lock()
	defer h.loopMu.Unlock()

	if h.done == nil {
		return nil
	}
	if h.stop != nil {
		close(h.stop)
		h.stop = nil
	}

	timer := time.NewTimer(h.config.StopTimeout)
	defer timer.Stop()

	select {
	case <-h.done:
		h.done = nil
		logging.Debugf(logging.Pull, "Pull loop stopped")
		return nil
	case <-timer.C:
		log.Printf("Warning: background ingestion did not stop within %v", h.config.StopTimeout)
		return ErrLoopTimeout
	}
}

func (h *Handler) ingestLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		default:
		}

		cycleStart := time.Now()
		discovered, err := h.DiscoverNewItems()
		if err != nil {
			log.Printf("Ingestion stopped: %v", err)
			return
		}
		n, err := h.drain(stop)
		if err != nil {
			log.Printf("Ingestion stopped: %v", err)
			return
		}
		if n > 0 {
			logging.Debugf(logging.Pull, "Pulled %d blocks (%d new items) in %v", n, discovered, time.Since(cycleStart))
		}

		wait := h.config.CyclePeriod
		if n == 0 && discovered == 0 && wait < h.config.IdleWait {
			wait = h.config.IdleWait
		}
		if wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
