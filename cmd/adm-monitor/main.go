// ABOUTME: Remote scene monitor for a running admsync player
// ABOUTME: Finds the visualizer feed via mDNS or -server and shows it in the TUI
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/Resonate-Protocol/admsync/internal/client"
	"github.com/Resonate-Protocol/admsync/internal/discovery"
	"github.com/Resonate-Protocol/admsync/internal/ui"
	"github.com/Resonate-Protocol/admsync/pkg/visualize"
)

var (
	serverAddr = flag.String("server", "", "Player feed address host:port (skip mDNS)")
	path       = flag.String("path", "/adm", "Feed path")
	name       = flag.String("name", "", "Viewer name (default: hostname-adm-monitor)")
	timeout    = flag.Duration("discovery-timeout", 10*time.Second, "How long to browse for a player")
	logFile    = flag.String("log-file", "adm-monitor.log", "Log file path")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, log frames instead")
)

func main() {
	flag.Parse()

	useTUI := !*noTUI

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	viewerName := *name
	if viewerName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		viewerName = fmt.Sprintf("%s-adm-monitor", hostname)
	}

	addr, feedPath := *serverAddr, *path
	if addr == "" {
		log.Printf("Browsing for players...")
		disc := discovery.NewManager(discovery.Config{ServiceName: viewerName})
		disc.Browse()

		select {
		case server := <-disc.Servers():
			addr, feedPath = server.Addr(), server.Path
			log.Printf("Discovered %s at %s%s", server.Name, addr, feedPath)
		case <-time.After(*timeout):
			log.Fatalf("No player found after %v", *timeout)
		}
		disc.Stop()
	}

	c := client.NewClient(client.Config{
		ServerAddr: addr,
		Path:       feedPath,
		ViewerID:   uuid.New().String(),
		Name:       viewerName,
	})
	if err := c.Connect(); err != nil {
		log.Fatalf("Connection failed: %v", err)
	}
	defer c.Close()

	hello := <-c.Hello
	log.Printf("Connected to %s running %s (session %s, %d items)", hello.Name, hello.Software, hello.SessionID, len(hello.Items))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if !useTUI {
		logFeed(c, sigChan)
		return
	}

	controls := ui.NewControls()
	tuiProg, err := ui.Run(hello.Name, controls)
	if err != nil {
		log.Fatalf("Failed to start TUI: %v", err)
	}
	go func() {
		if _, err := tuiProg.Run(); err != nil {
			log.Printf("TUI error: %v", err)
		}
	}()

	tuiProg.Send(ui.StatusMsg{Session: hello.SessionID, State: "CONNECTED", Renderer: "remote"})
	tuiProg.Send(ui.ItemsMsg{Items: hello.Items})

	go forwardFeed(c, tuiProg)
	go handleControls(c, controls)

	select {
	case <-controls.Quit:
		log.Printf("Received quit signal from TUI")
	case <-sigChan:
		log.Printf("Shutdown signal received")
	case <-c.Done():
		log.Printf("Player closed the feed")
	}
	tuiProg.Quit()
}

// forwardFeed sends feed messages to the TUI
func forwardFeed(c *client.Client, tuiProg *tea.Program) {
	for {
		select {
		case items := <-c.Items:
			tuiProg.Send(ui.ItemsMsg{Items: items})
		case frame := <-c.Frames:
			tuiProg.Send(ui.FrameMsg(frame))
		case serverErr := <-c.Errors:
			log.Printf("Player rejected request: %s", serverErr.Message)
		case <-c.Done():
			tuiProg.Send(ui.StatusMsg{State: "DISCONNECTED"})
			return
		}
	}
}

// handleControls sends offset edits to the player
func handleControls(c *client.Client, controls *ui.Controls) {
	for {
		select {
		case change := <-controls.Offsets:
			o := change.Offsets
			cmd := visualize.OffsetsCommand{
				Target:             change.Target.String(),
				Azimuth:            o.Azimuth,
				Elevation:          o.Elevation,
				DistanceMultiplier: o.DistanceMultiplier,
				X:                  o.X,
				Y:                  o.Y,
				Z:                  o.Z,
			}
			if err := c.SendOffsets(cmd); err != nil {
				log.Printf("Failed to send offsets: %v", err)
			}
		case <-c.Done():
			return
		}
	}
}

// logFeed logs a summary of every frame until interrupted
func logFeed(c *client.Client, sigChan <-chan os.Signal) {
	for {
		select {
		case items := <-c.Items:
			for _, it := range items {
				log.Printf("New %s item %d %q on channels %v", it.Type, it.ID, it.Name, it.Channels)
			}
		case frame := <-c.Frames:
			active := 0
			for _, st := range frame.Items {
				if st.Active {
					active++
				}
			}
			log.Printf("t=%.3fs: %d items, %d with audio", frame.Time, len(frame.Items), active)
		case <-c.Errors:
		case <-sigChan:
			log.Printf("Shutdown signal received")
			return
		case <-c.Done():
			log.Printf("Player closed the feed")
			return
		}
	}
}
