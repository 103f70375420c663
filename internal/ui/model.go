// ABOUTME: Bubbletea model for the scene monitor TUI
// ABOUTME: Shows playback state and live item metadata, and edits offsets
package ui

import (
	"fmt"
	"math"
	"strings"

	"github.com/Resonate-Protocol/admsync/pkg/adm"
	"github.com/Resonate-Protocol/admsync/pkg/visualize"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	angleStep    = 5.0
	distanceStep = 0.1
	volumeStep   = 5
	maxRows      = 16
)

// Target selects which item type offset keys adjust
type Target int

const (
	TargetObjects Target = iota
	TargetDirectSpeakers
)

func (t Target) String() string {
	if t == TargetDirectSpeakers {
		return "directspeakers"
	}
	return "objects"
}

// Model represents the TUI state
type Model struct {
	title string

	// Playback
	session  string
	state    string
	playhead float64
	renderer string

	// Scene
	order []uint64
	items map[uint64]*row

	// Offsets
	target  Target
	offsets [2]adm.Offsets

	// Output
	volume int
	muted  bool

	// Stats
	ticks    int64
	dropped  int64
	overruns int64

	showDebug bool
	controls  *Controls

	width  int
	height int
}

type row struct {
	desc  visualize.ItemDescription
	state visualize.ItemState
	seen  bool
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case ItemsMsg:
		m.applyItems(msg)
	case FrameMsg:
		m.applyFrame(msg)
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString(m.renderItems())
	b.WriteString(m.renderOffsets())
	b.WriteString(m.renderVolume())
	b.WriteString(m.renderStats())
	if m.showDebug {
		b.WriteString(m.renderDebug())
	}
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m Model) renderHeader() string {
	state := m.state
	if state == "" {
		state = "STOPPED"
	}
	return fmt.Sprintf(`┌─ %-60s ┐
│ State: %-10s Playhead: %9.3fs  Renderer: %-11s │
├──────────────────────────────────────────────────────────────┤
`, truncate(m.title, 60), state, m.playhead, truncate(m.renderer, 11))
}

func (m Model) renderItems() string {
	if len(m.order) == 0 {
		return "│ No items                                                     │\n"
	}

	var b strings.Builder
	b.WriteString("│   ID Name         Type     State        Az    El  Dist  Gain │\n")
	for i, id := range m.order {
		if i == maxRows {
			b.WriteString(fmt.Sprintf("│ ... %d more%-51s │\n", len(m.order)-maxRows, ""))
			break
		}
		r := m.items[id]
		active := " "
		if r.state.Active {
			active = "♪"
		}
		az, el, dist := adm.SphericalFromCartesian(r.state.Position[0], r.state.Position[1], r.state.Position[2])
		state := "-"
		if r.seen {
			state = r.state.State
		}
		b.WriteString(fmt.Sprintf("│%s%4d %-12s %-8s %-11s %5.0f %5.0f %5.2f %5.2f │\n",
			active, id, truncate(r.desc.Name, 12), truncate(r.desc.Type, 8), truncate(state, 11),
			az, el, dist, r.state.Gain))
	}
	return b.String()
}

func (m Model) renderOffsets() string {
	var b strings.Builder
	b.WriteString("├──────────────────────────────────────────────────────────────┤\n")
	for _, t := range []Target{TargetObjects, TargetDirectSpeakers} {
		marker := " "
		if t == m.target {
			marker = ">"
		}
		o := m.offsets[t]
		b.WriteString(fmt.Sprintf("│%s %-15s az %+6.1f  el %+6.1f  dist x%4.2f%-12s │\n",
			marker, t, o.Azimuth, o.Elevation, o.DistanceMultiplier, ""))
	}
	return b.String()
}

// renderVolume renders the output volume and mute state
func (m Model) renderVolume() string {
	muted := ""
	if m.muted {
		muted = "MUTED"
	}
	return fmt.Sprintf("│ Volume: [%s] %3d%% %-5s%-29s │\n", renderBar(m.volume, 100, 10), m.volume, muted, "")
}

func (m Model) renderStats() string {
	return fmt.Sprintf(`├──────────────────────────────────────────────────────────────┤
│ Items: %-4d Ticks: %-10d Dropped: %-6d Overruns: %-6d│
`, len(m.order), m.ticks, m.dropped, m.overruns)
}

func (m Model) renderDebug() string {
	return fmt.Sprintf("│ DEBUG: session %-45s │\n", truncate(m.session, 45))
}

func (m Model) renderHelp() string {
	return `│ ←/→:Azimuth ↑/↓:Elevation +/-:Distance t:Target 0:Reset q:Quit │
│ [/]:Volume  m:Mute  d:Debug                                  │
└──────────────────────────────────────────────────────────────┘
`
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	o := m.offsets[m.target]

	switch msg.String() {
	case "q", "ctrl+c":
		if m.controls != nil {
			select {
			case m.controls.Quit <- QuitMsg{}:
			default:
			}
		}
		return m, tea.Quit
	case "t", "tab":
		m.target = 1 - m.target
		return m, nil
	case "d":
		m.showDebug = !m.showDebug
		return m, nil
	case "[":
		m.volume = max(0, m.volume-volumeStep)
		m.sendVolume()
		return m, nil
	case "]":
		m.volume = min(100, m.volume+volumeStep)
		m.sendVolume()
		return m, nil
	case "m":
		m.muted = !m.muted
		m.sendVolume()
		return m, nil
	case "left":
		o.Azimuth = adm.WrapAzimuth(o.Azimuth - angleStep)
	case "right":
		o.Azimuth = adm.WrapAzimuth(o.Azimuth + angleStep)
	case "up":
		o.Elevation = math.Min(90, o.Elevation+angleStep)
	case "down":
		o.Elevation = math.Max(-90, o.Elevation-angleStep)
	case "+", "=":
		o.DistanceMultiplier = math.Round((o.DistanceMultiplier+distanceStep)*10) / 10
	case "-":
		o.DistanceMultiplier = math.Max(0, math.Round((o.DistanceMultiplier-distanceStep)*10)/10)
	case "0":
		o = adm.DefaultOffsets()
	default:
		return m, nil
	}

	m.offsets[m.target] = o
	m.sendOffsets()
	return m, nil
}

func (m Model) sendOffsets() {
	if m.controls == nil {
		return
	}
	change := OffsetChangeMsg{Target: m.target, Offsets: m.offsets[m.target]}
	select {
	case m.controls.Offsets <- change:
	default:
	}
}

func (m Model) sendVolume() {
	if m.controls == nil {
		return
	}
	select {
	case m.controls.Volume <- VolumeChangeMsg{Volume: m.volume, Muted: m.muted}:
	default:
	}
}

func (m *Model) applyItems(msg ItemsMsg) {
	for _, desc := range msg.Items {
		if r, ok := m.items[desc.ID]; ok {
			r.desc = desc
			continue
		}
		m.items[desc.ID] = &row{desc: desc}
		m.order = append(m.order, desc.ID)
	}
}

func (m *Model) applyFrame(msg FrameMsg) {
	m.playhead = msg.Time
	m.ticks++
	for _, st := range msg.Items {
		r, ok := m.items[st.ID]
		if !ok {
			r = &row{desc: visualize.ItemDescription{ID: st.ID, Name: "?"}}
			m.items[st.ID] = r
			m.order = append(m.order, st.ID)
		}
		r.state = st
		r.seen = true
	}
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Title != "" {
		m.title = msg.Title
	}
	if msg.Session != "" {
		m.session = msg.Session
	}
	if msg.State != "" {
		m.state = msg.State
	}
	if msg.Renderer != "" {
		m.renderer = msg.Renderer
	}
	if msg.Offsets != nil {
		m.offsets = *msg.Offsets
	}
	m.dropped = msg.Dropped
	m.overruns = msg.Overruns
}

// ItemsMsg announces new items
type ItemsMsg struct {
	Items []visualize.ItemDescription
}

// FrameMsg carries the item states of one tick
type FrameMsg visualize.Frame

// StatusMsg updates TUI state
type StatusMsg struct {
	Title    string
	Session  string
	State    string
	Renderer string
	Offsets  *[2]adm.Offsets
	Dropped  int64
	Overruns int64
}

// OffsetChangeMsg is emitted when the user edits offsets
type OffsetChangeMsg struct {
	Target  Target
	Offsets adm.Offsets
}

// VolumeChangeMsg is emitted when the user changes volume or mute
type VolumeChangeMsg struct {
	Volume int
	Muted  bool
}

// QuitMsg is emitted when the user quits
type QuitMsg struct{}

func renderBar(value, max, width int) string {
	filled := (value * width) / max
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
