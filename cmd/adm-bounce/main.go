// ABOUTME: Offline renderer writing a scene to a stereo WAV file
// ABOUTME: Runs the same ingestion, dispatch and renderer as the player, faster than real time
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/admsync/internal/app"
	"github.com/Resonate-Protocol/admsync/internal/logging"
	"github.com/Resonate-Protocol/admsync/pkg/audio/output"
	"github.com/Resonate-Protocol/admsync/pkg/render"
)

var (
	scenePath    = flag.String("scene", "", "Scene file to render (JSON)")
	outPath      = flag.String("out", "bounce.wav", "Output WAV file")
	bitDepth     = flag.Int("bit-depth", 16, "Output bit depth (16 or 24)")
	blockFrames  = flag.Int("block-frames", 512, "Frames per render call")
	rendererName = flag.String("renderer", "external", "Renderer: external, engine or none")
	start        = flag.Float64("start", 0, "Starting playhead position in seconds (negative adds leading silence)")
	tick         = flag.Duration("tick", 10*time.Millisecond, "Metadata update interval in audio time")
	programme    = flag.String("programme", "", "Only render this audio programme (e.g. AP_1001)")
	refDistance  = flag.Float64("ref-distance", 1.0, "Default reference distance")
	overrideDist = flag.Bool("override-distance", false, "Always use -ref-distance instead of the scene's absolute distance")
	azimuth      = flag.Float64("object-azimuth", 0, "Azimuth offset for object items in degrees")
	elevation    = flag.Float64("object-elevation", 0, "Elevation offset for object items in degrees")
	distance     = flag.Float64("object-distance", 1.0, "Distance multiplier for object items")
	debug        = flag.String("debug", "", "Debug categories (see admsync -help)")
)

func main() {
	flag.Parse()

	if *scenePath == "" {
		fmt.Fprintln(os.Stderr, "usage: adm-bounce -scene <scene.json> -out <file.wav> [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}
	if err := logging.ParseCategories(*debug); err != nil {
		log.Fatalf("Invalid -debug: %v", err)
	}
	kind, err := render.ParseKind(*rendererName)
	if err != nil {
		log.Fatalf("Invalid -renderer: %v", err)
	}

	player := app.New(app.Config{
		ScenePath:         *scenePath,
		Renderer:          kind,
		StartingPosition:  *start,
		TickInterval:      *tick,
		Programme:         *programme,
		ReferenceDistance: *refDistance,
		AlwaysOverride:    *overrideDist,
	})

	objects := player.Settings().Snapshot().Objects
	objects.Azimuth = *azimuth
	objects.Elevation = *elevation
	objects.DistanceMultiplier = *distance
	if objects.HasSpherical() {
		player.Settings().SetObjectOffsets(objects)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	began := time.Now()
	if err := player.Bounce(ctx, output.NewWAV(*outPath, *bitDepth, *blockFrames)); err != nil {
		log.Fatalf("Bounce failed: %v", err)
	}
	log.Printf("Rendered %s to %s in %v", *scenePath, *outPath, time.Since(began).Round(time.Millisecond))
}
