// ABOUTME: Main player application orchestration
// ABOUTME: Coordinates the metadata handler, renderer, output, playhead, visualizer and UI
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Resonate-Protocol/admsync/internal/logging"
	"github.com/Resonate-Protocol/admsync/internal/playhead"
	"github.com/Resonate-Protocol/admsync/internal/ui"
	"github.com/Resonate-Protocol/admsync/pkg/adm"
	"github.com/Resonate-Protocol/admsync/pkg/audio/output"
	"github.com/Resonate-Protocol/admsync/pkg/metadata"
	"github.com/Resonate-Protocol/admsync/pkg/render"
	"github.com/Resonate-Protocol/admsync/pkg/source"
	"github.com/Resonate-Protocol/admsync/pkg/visualize"
)

const (
	defaultTickInterval     = 10 * time.Millisecond
	defaultSchedulingWindow = 0.1
	statusEvery             = 10
	shutdownTimeout         = 2 * time.Second
)

// Config holds player configuration
type Config struct {
	ScenePath string
	Renderer  render.Kind

	// StartingPosition is the playhead position playback begins at. Negative
	// values delay the first block.
	StartingPosition float64

	// SchedulingWindow is the lead time in seconds between Start and audible output
	SchedulingWindow float64

	TickInterval time.Duration
	Loop         bool

	// Programme restricts rendering to one audio programme ("AP_1001"), empty for all
	Programme string

	ReferenceDistance float64
	AlwaysOverride    bool

	// Output receives rendered audio (oto when nil)
	Output       output.Output
	BufferFrames int

	// VizAddr enables the visualizer feed when non-empty
	VizAddr    string
	EnableMDNS bool
	Name       string

	// Feed and Controls connect the TUI when set
	Feed     *ui.Feed
	Controls *ui.Controls
}

// Player represents the main player application
type Player struct {
	config   Config
	settings *adm.Settings
	handler  *metadata.Handler
	source   *source.Source
	renderer render.Renderer
	clock    *playhead.Clock
	out      output.Output
	hub      *visualize.Hub

	ticks    int64
	finished bool
}

// New creates a new player
func New(config Config) *Player {
	if config.TickInterval <= 0 {
		config.TickInterval = defaultTickInterval
	}
	if config.SchedulingWindow <= 0 {
		config.SchedulingWindow = defaultSchedulingWindow
	}
	if config.ReferenceDistance <= 0 {
		config.ReferenceDistance = 1.0
	}
	if config.Name == "" {
		config.Name = "admsync"
	}
	if config.Output == nil {
		config.Output = output.NewOto(config.BufferFrames)
	}

	cfg := adm.DefaultConfig()
	cfg.DefaultReferenceDistance = config.ReferenceDistance
	cfg.AlwaysOverrideAbsoluteDistance = config.AlwaysOverride

	p := &Player{
		config:   config,
		settings: adm.NewSettings(cfg),
		out:      config.Output,
	}
	p.handler = metadata.NewHandler(metadata.Config{
		Opener:           p.open,
		Settings:         p.settings,
		StartingPosition: config.StartingPosition,
	})
	return p
}

func (p *Player) open(path string) (metadata.Source, error) {
	src, err := source.Open(path)
	if err != nil {
		return nil, err
	}
	p.source = src
	return src, nil
}

// AttachUI connects a TUI feed and its controls. Must be called before Run.
func (p *Player) AttachUI(feed *ui.Feed, controls *ui.Controls) {
	p.config.Feed = feed
	p.config.Controls = controls
}

// Settings returns the live processing configuration
func (p *Player) Settings() *adm.Settings {
	return p.settings
}

// Handler returns the metadata handler
func (p *Player) Handler() *metadata.Handler {
	return p.handler
}

// Renderer returns the renderer, nil before Load
func (p *Player) Renderer() render.Renderer {
	return p.renderer
}

// Clock returns the playhead clock, nil before playback is opened
func (p *Player) Clock() *playhead.Clock {
	return p.clock
}

// Hub returns the visualizer hub, nil when disabled
func (p *Player) Hub() *visualize.Hub {
	return p.hub
}

// Load opens the scene, builds the renderer and listeners and pulls the
// metadata available up front
func (p *Player) Load() error {
	if err := p.handler.Load(p.config.ScenePath); err != nil {
		return err
	}
	sampleRate := p.handler.SampleRate()

	renderer, err := render.New(p.config.Renderer, render.Config{
		Items:            p.handler,
		Samples:          p.source,
		SampleRate:       sampleRate,
		StartingPosition: p.config.StartingPosition,
	})
	if err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}
	p.renderer = renderer
	p.handler.AddListener(renderer)

	if p.config.VizAddr != "" {
		p.hub = visualize.NewHub(visualize.Config{
			Name:       p.config.Name,
			Addr:       p.config.VizAddr,
			EnableMDNS: p.config.EnableMDNS,
			Catalog:    p.handler,
			Settings:   p.settings,
		})
		p.handler.AddListener(p.hub)
	}
	if p.config.Feed != nil {
		p.handler.AddListener(p.config.Feed)
		p.config.Feed.Status(ui.StatusMsg{
			Title:    p.config.ScenePath,
			Session:  p.handler.SessionID(),
			Renderer: p.config.Renderer.String(),
		})
	}

	blocks, err := p.handler.InitialPull()
	if err != nil {
		return fmt.Errorf("initial pull failed: %w", err)
	}
	log.Printf("Initial pull: %d blocks, %d items", blocks, p.handler.ItemCount())

	if p.config.Programme != "" {
		if err := p.ApplyAudioProgrammeFilter(p.config.Programme); err != nil {
			return err
		}
	}
	return nil
}

// ApplyAudioProgrammeFilter restricts rendering to one audio programme. An
// empty id removes the filter. Safe to call from any goroutine.
func (p *Player) ApplyAudioProgrammeFilter(id string) error {
	programme := adm.NoProgramme
	if id != "" {
		parsed, err := adm.ParseAudioProgrammeID(id)
		if err != nil {
			return fmt.Errorf("invalid audio programme %q: %w", id, err)
		}
		programme = parsed
	}

	f, ok := p.renderer.(interface{ ApplyAudioProgrammeFilter(int) })
	if !ok {
		log.Printf("Warning: %s renderer does not filter audio programmes", p.config.Renderer)
		return nil
	}
	f.ApplyAudioProgrammeFilter(programme)
	return nil
}

// openOutput opens the output and schedules playback
func (p *Player) openOutput() error {
	sampleRate := p.handler.SampleRate()
	if err := p.out.Open(sampleRate, render.Channels, p.renderer.Process); err != nil {
		return fmt.Errorf("failed to open output: %w", err)
	}

	p.clock = playhead.NewClock(
		playhead.FrameSource{Frames: p.out.Frames, SampleRate: sampleRate},
		p.config.StartingPosition,
		p.config.SchedulingWindow,
	)
	return nil
}

// Play schedules playback one scheduling window from now
func (p *Player) Play() {
	at := p.clock.Start()
	p.renderer.ScheduleAudioPlayback(at)
	p.finished = false
	log.Printf("Playback scheduled at %.3fs from playhead %.3fs", at, p.clock.StartingPosition())
}

// Pause stops playback
func (p *Player) Pause() {
	if p.clock.Stop() {
		p.renderer.StopAudioPlayback()
		log.Printf("Playback stopped at playhead %.3fs", p.clock.Time())
	}
}

// Tick runs one update: construct pending items, dispatch the playhead time
// and handle the end of the scene. Must be called from one goroutine only.
func (p *Player) Tick() {
	p.renderer.OnUpdateBegin()
	defer p.renderer.OnUpdateEnd()

	state, changed := p.clock.Observe()
	p.handler.FlushPendingConstructions()

	if state != playhead.StateStopped {
		t := p.clock.Time()
		p.handler.DispatchTick(t)

		if end := p.handler.Duration(); t >= end && end > 0 {
			if p.config.Loop {
				logging.Debugf(logging.Playback, "End of scene at %.3fs, looping", t)
				p.Play()
			} else {
				p.Pause()
				p.finished = true
			}
		}
	}

	p.ticks++
	if changed || p.ticks%statusEvery == 0 {
		p.publishStatus(state)
	}
}

// Finished reports whether playback reached the end without looping
func (p *Player) Finished() bool {
	return p.finished
}

func (p *Player) publishStatus(state playhead.State) {
	if p.config.Feed == nil {
		return
	}
	cfg := p.settings.Snapshot()
	offsets := [2]adm.Offsets{cfg.Objects, cfg.DirectSpeakers}
	msg := ui.StatusMsg{
		State:   state.String(),
		Offsets: &offsets,
	}
	if p.hub != nil {
		msg.Dropped = p.hub.Dropped()
	}
	if ext, ok := p.renderer.(*render.ExternalRenderer); ok {
		msg.Overruns = ext.Watchdog().Overruns()
	}
	p.config.Feed.Status(msg)
}

// Run loads the scene, starts playback and blocks until ctx is cancelled, the
// user quits or the scene ends
func (p *Player) Run(ctx context.Context) error {
	if err := p.Load(); err != nil {
		return err
	}
	defer p.shutdown()

	if err := p.handler.StartBackgroundIngestion(); err != nil {
		return fmt.Errorf("failed to start ingestion: %w", err)
	}
	if err := p.openOutput(); err != nil {
		return err
	}
	if p.hub != nil {
		if err := p.hub.Start(); err != nil {
			return fmt.Errorf("failed to start visualizer: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	p.Play()

	g.Go(func() error {
		defer cancel()
		return p.tickLoop(ctx)
	})

	if p.config.Controls != nil {
		g.Go(func() error {
			p.handleControls(ctx, cancel)
			return nil
		})
	}

	if p.hub != nil {
		g.Go(func() error {
			<-ctx.Done()
			stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stopCancel()
			return p.hub.Stop(stopCtx)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

func (p *Player) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(p.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Tick()
			if p.finished {
				log.Printf("End of scene reached")
				return nil
			}
		}
	}
}

// handleControls applies TUI offset and volume edits and quit requests
func (p *Player) handleControls(ctx context.Context, quit context.CancelFunc) {
	for {
		select {
		case change := <-p.config.Controls.Offsets:
			p.applyOffsets(change)
		case change := <-p.config.Controls.Volume:
			p.applyVolume(change)
		case <-p.config.Controls.Quit:
			quit()
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Player) applyOffsets(change ui.OffsetChangeMsg) {
	var cfg *adm.Config
	switch change.Target {
	case ui.TargetDirectSpeakers:
		cfg = p.settings.SetDirectSpeakerOffsets(change.Offsets)
	default:
		cfg = p.settings.SetObjectOffsets(change.Offsets)
	}
	logging.Debugf(logging.Playback, "%s offsets set (revision %d): az=%.1f el=%.1f dist x%.2f",
		change.Target, cfg.Revision, change.Offsets.Azimuth, change.Offsets.Elevation, change.Offsets.DistanceMultiplier)
}

// volumeControl is implemented by outputs with software volume
type volumeControl interface {
	SetVolume(volume int)
	SetMuted(muted bool)
	GetVolume() int
	IsMuted() bool
}

func (p *Player) applyVolume(change ui.VolumeChangeMsg) {
	vc, ok := p.out.(volumeControl)
	if !ok {
		logging.Debugf(logging.Playback, "Output has no volume control")
		return
	}
	if vc.GetVolume() != change.Volume {
		vc.SetVolume(change.Volume)
	}
	if vc.IsMuted() != change.Muted {
		vc.SetMuted(change.Muted)
	}
}

// shutdown stops playback and releases everything Run acquired
func (p *Player) shutdown() {
	if p.clock != nil {
		p.Pause()
	}
	if p.renderer != nil {
		p.renderer.Shutdown()
	}
	if err := p.out.Close(); err != nil {
		log.Printf("Failed to close output: %v", err)
	}
	if err := p.handler.Shutdown(); err != nil {
		log.Printf("Metadata handler shutdown: %v", err)
	}
}

// sceneFrames returns the output frames that cover the scene from the
// starting position, plus the lead time of a delayed start
func (p *Player) sceneFrames() int {
	sampleRate := float64(p.handler.SampleRate())
	remaining := p.handler.Duration() - p.config.StartingPosition
	return int(math.Ceil(math.Max(0, remaining) * sampleRate))
}
