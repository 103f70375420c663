// ABOUTME: Offline rendering of a whole scene into a WAV file
// ABOUTME: Drives ingestion, ticks and output pulls on one goroutine, faster than real time
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Resonate-Protocol/admsync/internal/logging"
	"github.com/Resonate-Protocol/admsync/pkg/audio/output"
)

// Bounce renders the scene from the starting position to its end into w
func (p *Player) Bounce(ctx context.Context, w *output.WAV) error {
	p.out = w
	if err := p.Load(); err != nil {
		return err
	}
	defer p.shutdown()

	if err := p.openOutput(); err != nil {
		return err
	}

	// Offline there is nothing to prepare, so playback starts at the first frame
	p.clock.Schedule(0)
	p.renderer.ScheduleAudioPlayback(0)

	sampleRate := p.handler.SampleRate()
	tickFrames := max(1, int(float64(sampleRate)*p.config.TickInterval.Seconds()))
	total := p.sceneFrames()
	start := time.Now()

	for int(w.Frames()) < total {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.ingestAvailable(); err != nil {
			return err
		}
		p.Tick()

		n := min(tickFrames, total-int(w.Frames()))
		if err := w.Pull(n); err != nil {
			return err
		}
	}

	logging.Debugf(logging.Profiling, "Bounced %.2fs of audio in %v", float64(total)/float64(sampleRate), time.Since(start))
	log.Printf("Bounce finished: %d items, %d ticks", p.handler.ItemCount(), p.ticks)
	return nil
}

// ingestAvailable discovers new items and pulls every block currently readable
func (p *Player) ingestAvailable() error {
	if _, err := p.handler.DiscoverNewItems(); err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}
	for {
		ok, err := p.handler.IngestOneBlock()
		if err != nil {
			return fmt.Errorf("ingestion failed: %w", err)
		}
		if !ok {
			return nil
		}
	}
}
