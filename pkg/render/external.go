// ABOUTME: External renderer driven by per-group channel trackers
// ABOUTME: Pumps metadata into a backend before every real-time render call
package render

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/admsync/internal/logging"
	"github.com/Resonate-Protocol/admsync/pkg/adm"
)

// ExternalRenderer feeds a Backend from three channel trackers (objects, direct
// speakers and HOA). Metadata reaches the backend through the trackers, not
// through per-tick updates.
type ExternalRenderer struct {
	items      ItemSource
	backend    Backend
	sampleRate int

	transport *transport
	trackers  [groupCount]*ChannelTracker
	watchdog  Watchdog

	programme   atomic.Int64
	renderFails atomic.Int64
	lastFailure atomic.Pointer[string]
	lastPump    atomic.Pointer[PumpStats]

	// counts already reported, touched only by the update goroutine
	reportedAt         time.Time
	reportedFails      int64
	reportedRejections [groupCount]int64
}

// failureReportInterval limits audio thread failure reports to one batch per interval
const failureReportInterval = time.Second

// NewExternalRenderer creates an external renderer over config.Backend
func NewExternalRenderer(config Config) *ExternalRenderer {
	r := &ExternalRenderer{
		items:      config.Items,
		backend:    config.Backend,
		sampleRate: config.SampleRate,
		transport:  newTransport(config.SampleRate, config.StartingPosition),
	}
	for g := Group(0); g < groupCount; g++ {
		r.trackers[g] = NewChannelTracker(g)
	}
	r.programme.Store(adm.NoProgramme)
	r.lastPump.Store(&PumpStats{})

	logging.Debugf(logging.Startup, "Starting external renderer at %dHz", config.SampleRate)
	return r
}

// Tracker returns the channel tracker of group
func (r *ExternalRenderer) Tracker(g Group) *ChannelTracker {
	return r.trackers[g]
}

// Watchdog returns the render timing watchdog
func (r *ExternalRenderer) Watchdog() *Watchdog {
	return &r.watchdog
}

// OnItemsReady adds new items to the tracker of their group
func (r *ExternalRenderer) OnItemsReady(ids []uint64) {
	r.items.View(func(items adm.ItemLookup) {
		for _, id := range ids {
			it, ok := items.Item(id)
			if !ok {
				continue
			}
			g, ok := GroupFor(it.Type)
			if !ok {
				logging.Debugf(logging.Channels, "Item %q of type %s is not rendered", it.Name, it.Type)
				continue
			}
			r.trackers[g].AddItem(id)
		}
		for _, t := range r.trackers {
			t.RebuildIfDirty(items)
		}
	})
}

// OnMetadataUpdate is a no-op; blocks are pumped from the audio goroutine
func (r *ExternalRenderer) OnMetadataUpdate(adm.MetadataUpdate) {}

// ApplyAudioProgrammeFilter restricts rendering to one audio programme. Safe to
// call from any goroutine.
func (r *ExternalRenderer) ApplyAudioProgrammeFilter(programme int) {
	r.programme.Store(int64(programme))
	r.items.View(func(items adm.ItemLookup) {
		for _, t := range r.trackers {
			t.ApplyAudioProgrammeFilter(items, programme)
		}
	})
	log.Printf("Audio programme filter set to %q", adm.FormatAudioProgrammeID(programme))
}

// Programme returns the active audio programme filter
func (r *ExternalRenderer) Programme() int {
	return int(r.programme.Load())
}

// ScheduleAudioPlayback starts rendering at dspTime from the starting position.
// Every tracker rewinds so the backend receives the timeline from its first block.
func (r *ExternalRenderer) ScheduleAudioPlayback(dspTime float64) {
	for _, t := range r.trackers {
		t.Rewind()
	}
	r.transport.schedule(dspTime)
}

// StopAudioPlayback silences output until playback is scheduled again
func (r *ExternalRenderer) StopAudioPlayback() {
	r.transport.stop()
}

// OnUpdateBegin checks render timings from the previous ticks
func (r *ExternalRenderer) OnUpdateBegin() {
	if report, ok := r.watchdog.Check(); ok && report.Overrun() {
		log.Printf("Warning: rendering taking too long (%v spent for %v of audio over %d calls)",
			report.Spent, report.Budget, report.Calls)
	}
}

// OnUpdateEnd reports backend failures and rejections counted by the audio
// thread since the previous tick, and pump statistics when render
// diagnostics are on.
func (r *ExternalRenderer) OnUpdateEnd() {
	if time.Since(r.reportedAt) >= failureReportInterval {
		r.reportFailures()
	}

	if !logging.Enabled(logging.Render) {
		return
	}
	if s := r.lastPump.Load(); s.Sent+s.Resent+s.Rejected > 0 {
		logging.Debugf(logging.Render, "Last pump: %d sent, %d resent, %d rejected", s.Sent, s.Resent, s.Rejected)
	}
}

func (r *ExternalRenderer) reportFailures() {
	reported := false
	if n := r.renderFails.Load(); n > r.reportedFails {
		msg := "unknown error"
		if last := r.lastFailure.Load(); last != nil {
			msg = *last
		}
		log.Printf("Render failed %d times (%d total): %s", n-r.reportedFails, n, msg)
		r.reportedFails = n
		reported = true
	}
	for g, t := range r.trackers {
		if n := t.Rejections(); n > r.reportedRejections[g] {
			log.Printf("Renderer rejected %d %s metadata blocks (%d total)", n-r.reportedRejections[g], Group(g), n)
			r.reportedRejections[g] = n
			reported = true
		}
	}
	if reported {
		r.reportedAt = time.Now()
	}
}

// LastPump returns the statistics of the most recent pump
func (r *ExternalRenderer) LastPump() PumpStats {
	return *r.lastPump.Load()
}

// Shutdown stops playback
func (r *ExternalRenderer) Shutdown() {
	r.transport.stop()
	logging.Debugf(logging.Startup, "External renderer shut down")
}

// Process pumps pending metadata into the backend and renders one block
func (r *ExternalRenderer) Process(out []float32) {
	start := time.Now()
	clear(out)

	frames := len(out) / Channels
	lead, sourceFrame, ok := r.transport.advance(frames)
	if !ok {
		return
	}

	var req RenderRequest
	var stats PumpStats
	r.items.View(func(items adm.ItemLookup) {
		cfg := r.items.Settings().Snapshot()
		for g, t := range r.trackers {
			stats.add(t.Pump(items, cfg, r.backend))
			// Pump leaves the tracker clean while the items lock is held
			view, err := t.View()
			if err != nil {
				continue
			}
			req.Groups[g] = view
		}
	})
	r.lastPump.Store(&stats)

	req.FramePosition = sourceFrame
	req.Frames = frames - lead
	if err := r.backend.RenderBlock(req, out[lead*Channels:]); err != nil {
		msg := err.Error()
		r.lastFailure.Store(&msg)
		r.renderFails.Add(1)
	}

	r.watchdog.Record(frames, r.sampleRate, time.Since(start))
}
