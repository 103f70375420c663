// ABOUTME: TUI initialization and control
// ABOUTME: Wraps bubbletea program for the scene monitor
package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Resonate-Protocol/admsync/pkg/adm"
)

// Controls holds channels for offset, volume and quit communication
type Controls struct {
	Offsets chan OffsetChangeMsg
	Volume  chan VolumeChangeMsg
	Quit    chan QuitMsg
}

// NewControls creates a new control handler
func NewControls() *Controls {
	return &Controls{
		Offsets: make(chan OffsetChangeMsg, 10),
		Volume:  make(chan VolumeChangeMsg, 10),
		Quit:    make(chan QuitMsg, 1),
	}
}

// NewModel creates a new TUI model
func NewModel(title string, controls *Controls) Model {
	return Model{
		title:    title,
		state:    "STOPPED",
		items:    make(map[uint64]*row),
		offsets:  [2]adm.Offsets{adm.DefaultOffsets(), adm.DefaultOffsets()},
		volume:   100,
		controls: controls,
	}
}

// Run creates the TUI program
func Run(title string, controls *Controls) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(title, controls), tea.WithAltScreen())
	return p, nil
}
