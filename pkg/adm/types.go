// ABOUTME: ADM metadata type definitions
// ABOUTME: Defines raw and processed blocks, item types, run states and updates
package adm

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// TypeDef is the ADM type definition of a renderable item
type TypeDef uint8

const (
	TypeUndefined TypeDef = iota
	TypeDirectSpeakers
	TypeMatrix
	TypeObjects
	TypeHOA
	TypeBinaural
)

func (t TypeDef) String() string {
	switch t {
	case TypeDirectSpeakers:
		return "directspeakers"
	case TypeMatrix:
		return "matrix"
	case TypeObjects:
		return "objects"
	case TypeHOA:
		return "hoa"
	case TypeBinaural:
		return "binaural"
	default:
		return "undefined"
	}
}

// ParseTypeDef maps a type name back to its TypeDef
func ParseTypeDef(s string) TypeDef {
	switch s {
	case "directspeakers", "direct_speakers", "DirectSpeakers":
		return TypeDirectSpeakers
	case "matrix", "Matrix":
		return TypeMatrix
	case "objects", "Objects":
		return TypeObjects
	case "hoa", "HOA":
		return TypeHOA
	case "binaural", "Binaural":
		return TypeBinaural
	default:
		return TypeUndefined
	}
}

// RunState describes where an item's playhead sits relative to its blocks
type RunState int

const (
	RunStateUnknown RunState = iota
	RunStateNoMetadata
	RunStateReachedEnd
	RunStateInGap
	RunStateProcessing
)

func (s RunState) String() string {
	switch s {
	case RunStateNoMetadata:
		return "NO_METADATA"
	case RunStateReachedEnd:
		return "REACHED_END"
	case RunStateInGap:
		return "IN_GAP"
	case RunStateProcessing:
		return "PROCESSING"
	default:
		return "UNKNOWN"
	}
}

// NoProgramme disables audio programme filtering
const NoProgramme = -1

// RawBlock is a single metadata sample as delivered by the source library.
// It is never modified after ingestion.
type RawBlock struct {
	ID          uint64
	Type        TypeDef
	Name        string
	ChannelNums []int

	AudioStartTime    float64
	AudioEndTime      float64 // +Inf when open ended
	AudioPackFormatID string
	ProgrammeIDs      []int

	RTime               float64 // Block-relative start time (seconds)
	Duration            float64
	JumpPosition        bool
	InterpolationLength float64

	Cartesian bool
	X, Y, Z   float64
	Azimuth   float64 // Degrees
	Elevation float64 // Degrees
	Distance  float64

	AbsoluteDistance float64 // NaN when unset

	Width, Height, Depth    float64
	Gain                    float64
	Diffuse                 float64
	Divergence              float64
	DivergenceAzimuthRange  float64
	DivergencePositionRange float64
	ChannelLock             bool
	ChannelLockMaxDistance  float64
	ScreenRef               bool

	SpeakerLabel  string
	Normalization string
	Order         []int
	Degree        []int
	NfcRefDist    float64
}

// EndTime returns the block-relative end time
func (b RawBlock) EndTime() float64 {
	return b.RTime + b.Duration
}

// ProcessedBlock is a RawBlock after coordinate normalization and offsets
type ProcessedBlock struct {
	RawBlock

	// Position is the cartesian position scaled by AbsoluteDistance
	Position mgl64.Vec3

	// Revision of the Config this block was processed against
	Revision int64
}

// MetadataUpdate is the per-tick resolved state of one item
type MetadataUpdate struct {
	ID          uint64
	Type        TypeDef
	RunState    RunState
	Position    mgl64.Vec3
	Gain        float64
	AudioActive bool
	Interpolant float64
}

// ChannelBounds clamps the audio of one channel to a frame range
type ChannelBounds struct {
	LowerFrame int
	UpperFrame int
}

// Contains reports whether frame lies inside the bounds
func (b ChannelBounds) Contains(frame int) bool {
	return frame >= b.LowerFrame && frame < b.UpperFrame
}

// UnboundedAudioEnd marks an item whose audio never ends
var UnboundedAudioEnd = math.Inf(1)
