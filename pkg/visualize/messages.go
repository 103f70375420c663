// ABOUTME: Visualizer feed message type definitions
// ABOUTME: JSON envelopes exchanged between a player and its viewers
package visualize

import (
	"encoding/json"

	"github.com/Resonate-Protocol/admsync/pkg/adm"
	"github.com/Resonate-Protocol/admsync/pkg/metadata"
)

// ProtocolVersion is the feed version announced in hellos
const ProtocolVersion = 1

// Message types
const (
	TypeViewerHello = "viewer/hello"
	TypeOffsets     = "viewer/offsets"
	TypeServerHello = "server/hello"
	TypeServerError = "server/error"
	TypeItems       = "scene/items"
	TypeFrame       = "scene/frame"
)

// Message is the top-level wrapper for all feed messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Envelope is a received Message with its payload left encoded
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ViewerHello is sent by viewers to initiate the handshake
type ViewerHello struct {
	ViewerID string `json:"viewer_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// ServerHello answers a viewer hello with the current scene
type ServerHello struct {
	Name       string            `json:"name"`
	Software   string            `json:"software"`
	SessionID  string            `json:"session_id"`
	Version    int               `json:"version"`
	SampleRate int               `json:"sample_rate"`
	Items      []ItemDescription `json:"items"`
}

// ItemDescription describes one renderable item
type ItemDescription struct {
	ID         uint64   `json:"id"`
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Channels   []int    `json:"channels"`
	Programmes []string `json:"programmes,omitempty"`
}

// Frame carries every update of one tick
type Frame struct {
	Time  float64     `json:"time"`
	Items []ItemState `json:"items"`
}

// ItemState is one item's resolved metadata
type ItemState struct {
	ID       uint64     `json:"id"`
	State    string     `json:"state"`
	Position [3]float64 `json:"position"`
	Gain     float64    `json:"gain"`
	Active   bool       `json:"active"`
}

// OffsetsCommand asks the player to change the offsets of one item type
type OffsetsCommand struct {
	Target             string  `json:"target"` // "objects" or "directspeakers"
	Azimuth            float64 `json:"azimuth"`
	Elevation          float64 `json:"elevation"`
	DistanceMultiplier float64 `json:"distance_multiplier"`
	X                  float64 `json:"x,omitempty"`
	Y                  float64 `json:"y,omitempty"`
	Z                  float64 `json:"z,omitempty"`
}

// ServerError reports a rejected request
type ServerError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Offsets converts the command to processing offsets. A zero multiplier means unscaled.
func (c OffsetsCommand) Offsets() adm.Offsets {
	mult := c.DistanceMultiplier
	if mult == 0 {
		mult = 1
	}
	return adm.Offsets{
		X:                  c.X,
		Y:                  c.Y,
		Z:                  c.Z,
		Azimuth:            c.Azimuth,
		Elevation:          c.Elevation,
		DistanceMultiplier: mult,
	}
}

// Describe converts handler item info to its feed form
func Describe(info metadata.ItemInfo) ItemDescription {
	d := ItemDescription{
		ID:       info.ID,
		Name:     info.Name,
		Type:     info.Type.String(),
		Channels: info.ChannelNums,
	}
	for _, p := range info.Programmes {
		d.Programmes = append(d.Programmes, adm.FormatAudioProgrammeID(p))
	}
	return d
}

// StateOf converts a metadata update to its feed form
func StateOf(u adm.MetadataUpdate) ItemState {
	return ItemState{
		ID:       u.ID,
		State:    u.RunState.String(),
		Position: [3]float64{u.Position.X(), u.Position.Y(), u.Position.Z()},
		Gain:     u.Gain,
		Active:   u.AudioActive,
	}
}
