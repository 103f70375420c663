// ABOUTME: JSON scene schema and conversion to raw metadata blocks
// ABOUTME: Validates items against the stem channel space
package source

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/Resonate-Protocol/admsync/pkg/adm"
)

// Scene is the decoded form of a scene file
type Scene struct {
	SampleRate int        `json:"sampleRate"`
	Stems      []StemSpec `json:"stems"`
	Items      []ItemSpec `json:"items"`

	// Resample converts stems at other rates instead of rejecting them
	Resample bool `json:"resample,omitempty"`
}

// StemSpec names one audio stem. Exactly one of Path and Tone is set.
type StemSpec struct {
	Path string    `json:"path,omitempty"`
	Tone *ToneSpec `json:"tone,omitempty"`
}

// ToneSpec describes a generated sine stem
type ToneSpec struct {
	Frequency float64 `json:"frequency"`
	Seconds   float64 `json:"seconds"`
	Level     float64 `json:"level,omitempty"`
	Channels  int     `json:"channels,omitempty"`
}

// ItemSpec describes one renderable item and its metadata blocks
type ItemSpec struct {
	ID              uint64      `json:"id"`
	Name            string      `json:"name"`
	Type            string      `json:"type"`
	Channels        []int       `json:"channels"`
	Programmes      []string    `json:"programmes,omitempty"`
	AudioPackFormat string      `json:"audioPackFormat,omitempty"`
	AudioStart      float64     `json:"audioStart,omitempty"`
	AudioEnd        *float64    `json:"audioEnd,omitempty"`
	Wave            int         `json:"wave,omitempty"`
	Blocks          []BlockSpec `json:"blocks"`
}

// BlockSpec is one timed metadata block
type BlockSpec struct {
	RTime               float64 `json:"rtime"`
	Duration            float64 `json:"duration"`
	JumpPosition        bool    `json:"jumpPosition,omitempty"`
	InterpolationLength float64 `json:"interpolationLength,omitempty"`

	Cartesian bool    `json:"cartesian,omitempty"`
	X         float64 `json:"x,omitempty"`
	Y         float64 `json:"y,omitempty"`
	Z         float64 `json:"z,omitempty"`
	Azimuth   float64 `json:"azimuth,omitempty"`
	Elevation float64 `json:"elevation,omitempty"`
	Distance  float64 `json:"distance,omitempty"`

	AbsoluteDistance *float64 `json:"absoluteDistance,omitempty"`

	Gain       *float64 `json:"gain,omitempty"`
	Width      float64  `json:"width,omitempty"`
	Height     float64  `json:"height,omitempty"`
	Depth      float64  `json:"depth,omitempty"`
	Diffuse    float64  `json:"diffuse,omitempty"`
	Divergence float64  `json:"divergence,omitempty"`

	ChannelLock            bool    `json:"channelLock,omitempty"`
	ChannelLockMaxDistance float64 `json:"channelLockMaxDistance,omitempty"`
	ScreenRef              bool    `json:"screenRef,omitempty"`

	SpeakerLabel  string  `json:"speakerLabel,omitempty"`
	Normalization string  `json:"normalization,omitempty"`
	Order         []int   `json:"order,omitempty"`
	Degree        []int   `json:"degree,omitempty"`
	NfcRefDist    float64 `json:"nfcRefDist,omitempty"`
}

// DecodeScene reads a scene from JSON
func DecodeScene(r io.Reader) (*Scene, error) {
	var s Scene
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode scene: %w", err)
	}
	return &s, nil
}

// validate checks item ids, types and channel numbers against channelCount
func (s *Scene) validate(channelCount int) error {
	seen := make(map[uint64]bool, len(s.Items))
	for _, it := range s.Items {
		if seen[it.ID] {
			return fmt.Errorf("%w: duplicate item id %d", ErrInvalidScene, it.ID)
		}
		seen[it.ID] = true

		if adm.ParseTypeDef(it.Type) == adm.TypeUndefined {
			return fmt.Errorf("%w: item %d has unknown type %q", ErrInvalidScene, it.ID, it.Type)
		}
		if len(it.Channels) == 0 {
			return fmt.Errorf("%w: item %d has no channels", ErrInvalidScene, it.ID)
		}
		for _, ch := range it.Channels {
			if ch < 0 || ch >= channelCount {
				return fmt.Errorf("%w: item %d channel %d outside %d stem channels",
					ErrInvalidScene, it.ID, ch, channelCount)
			}
		}
		for _, p := range it.Programmes {
			if _, err := adm.ParseAudioProgrammeID(p); err != nil {
				return fmt.Errorf("%w: item %d: %v", ErrInvalidScene, it.ID, err)
			}
		}
	}
	return nil
}

// rawBlocks converts an item's blocks to raw blocks in rtime order
func (it ItemSpec) rawBlocks() []adm.RawBlock {
	typ := adm.ParseTypeDef(it.Type)
	end := adm.UnboundedAudioEnd
	if it.AudioEnd != nil {
		end = *it.AudioEnd
	}

	var programmes []int
	for _, p := range it.Programmes {
		// validated on open
		id, _ := adm.ParseAudioProgrammeID(p)
		if id != adm.NoProgramme {
			programmes = append(programmes, id)
		}
	}

	out := make([]adm.RawBlock, 0, len(it.Blocks))
	for _, b := range it.Blocks {
		raw := adm.RawBlock{
			ID:                it.ID,
			Type:              typ,
			Name:              it.Name,
			ChannelNums:       it.Channels,
			AudioStartTime:    it.AudioStart,
			AudioEndTime:      end,
			AudioPackFormatID: it.AudioPackFormat,
			ProgrammeIDs:      programmes,

			RTime:               b.RTime,
			Duration:            b.Duration,
			JumpPosition:        b.JumpPosition,
			InterpolationLength: b.InterpolationLength,

			Cartesian: b.Cartesian,
			X:         b.X,
			Y:         b.Y,
			Z:         b.Z,
			Azimuth:   b.Azimuth,
			Elevation: b.Elevation,
			Distance:  b.Distance,

			AbsoluteDistance: math.NaN(),
			Gain:             1,

			Width:                  b.Width,
			Height:                 b.Height,
			Depth:                  b.Depth,
			Diffuse:                b.Diffuse,
			Divergence:             b.Divergence,
			ChannelLock:            b.ChannelLock,
			ChannelLockMaxDistance: b.ChannelLockMaxDistance,
			ScreenRef:              b.ScreenRef,

			SpeakerLabel:  b.SpeakerLabel,
			Normalization: b.Normalization,
			Order:         b.Order,
			Degree:        b.Degree,
			NfcRefDist:    b.NfcRefDist,
		}
		if b.AbsoluteDistance != nil {
			raw.AbsoluteDistance = *b.AbsoluteDistance
		}
		if b.Gain != nil {
			raw.Gain = *b.Gain
		}
		if !b.Cartesian && b.Distance == 0 {
			raw.Distance = 1
		}
		out = append(out, raw)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].RTime < out[j].RTime })
	return out
}
