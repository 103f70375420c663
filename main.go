// ABOUTME: Entry point for the admsync scene player
// ABOUTME: Parses CLI flags and plays a scene through the selected renderer
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/admsync/internal/app"
	"github.com/Resonate-Protocol/admsync/internal/logging"
	"github.com/Resonate-Protocol/admsync/internal/ui"
	"github.com/Resonate-Protocol/admsync/internal/version"
	"github.com/Resonate-Protocol/admsync/pkg/render"
)

var (
	scenePath    = flag.String("scene", "", "Scene file to play (JSON)")
	rendererName = flag.String("renderer", "external", "Renderer: external, engine or none")
	start        = flag.Float64("start", 0, "Starting playhead position in seconds (negative delays the start)")
	window       = flag.Float64("window", 0.1, "Scheduling window in seconds")
	tick         = flag.Duration("tick", 10*time.Millisecond, "Metadata update interval")
	loop         = flag.Bool("loop", false, "Restart at the end of the scene")
	programme    = flag.String("programme", "", "Only render this audio programme (e.g. AP_1001)")
	refDistance  = flag.Float64("ref-distance", 1.0, "Default reference distance")
	overrideDist = flag.Bool("override-distance", false, "Always use -ref-distance instead of the scene's absolute distance")
	bufferFrames = flag.Int("buffer-frames", 1024, "Audio device buffer in frames")
	vizAddr      = flag.String("viz", ":8928", "Visualizer feed listen address (empty disables)")
	noMDNS       = flag.Bool("no-mdns", false, "Disable mDNS advertisement of the visualizer feed")
	name         = flag.String("name", "", "Friendly name (default: hostname-admsync)")
	logFile      = flag.String("log-file", "admsync.log", "Log file path")
	noTUI        = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	debug        = flag.String("debug", "", "Debug categories (startup,playback,scheduling,profiling,pull,runstates,channels,render or all)")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", version.Product, version.Version)
		return
	}
	if *scenePath == "" {
		fmt.Fprintln(os.Stderr, "usage: admsync -scene <scene.json> [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	useTUI := !*noTUI

	// Set up logging
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	if err := logging.ParseCategories(*debug); err != nil {
		log.Fatalf("Invalid -debug: %v", err)
	}

	kind, err := render.ParseKind(*rendererName)
	if err != nil {
		log.Fatalf("Invalid -renderer: %v", err)
	}

	playerName := *name
	if playerName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		playerName = fmt.Sprintf("%s-admsync", hostname)
	}

	log.Printf("Starting %s %s: %s (%s renderer)", version.Product, version.Version, *scenePath, kind)

	player := app.New(app.Config{
		ScenePath:         *scenePath,
		Renderer:          kind,
		StartingPosition:  *start,
		SchedulingWindow:  *window,
		TickInterval:      *tick,
		Loop:              *loop,
		Programme:         *programme,
		ReferenceDistance: *refDistance,
		AlwaysOverride:    *overrideDist,
		BufferFrames:      *bufferFrames,
		VizAddr:           *vizAddr,
		EnableMDNS:        !*noMDNS,
		Name:              playerName,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	quitTUI := func() {}
	if useTUI {
		controls := ui.NewControls()
		feed := ui.NewFeed(player.Handler(), ui.DefaultFrameInterval)
		player.AttachUI(feed, controls)

		tuiProg, err := ui.Run(playerName, controls)
		if err != nil {
			log.Fatalf("Failed to start TUI: %v", err)
		}
		go func() {
			if _, err := tuiProg.Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
		}()
		go feed.Forward(ctx, tuiProg.Send)
		quitTUI = tuiProg.Quit
	}

	err = player.Run(ctx)
	quitTUI()
	if err != nil {
		log.Fatalf("Player error: %v", err)
	}

	log.Printf("Player stopped")
}
