// ABOUTME: Renderer-facing item groups
// ABOUTME: Maps ADM type definitions onto the three channel trackers
package render

import "github.com/Resonate-Protocol/admsync/pkg/adm"

// Group is a renderer-facing item category with its own channel map
type Group int

const (
	GroupObjects Group = iota
	GroupDirectSpeakers
	GroupHOA

	groupCount
)

func (g Group) String() string {
	switch g {
	case GroupObjects:
		return "objects"
	case GroupDirectSpeakers:
		return "directspeakers"
	case GroupHOA:
		return "hoa"
	default:
		return "unknown"
	}
}

// GroupFor returns the group rendering items of type t. Matrix, binaural and
// undefined items are not rendered.
func GroupFor(t adm.TypeDef) (Group, bool) {
	switch t {
	case adm.TypeObjects:
		return GroupObjects, true
	case adm.TypeDirectSpeakers:
		return GroupDirectSpeakers, true
	case adm.TypeHOA:
		return GroupHOA, true
	default:
		return 0, false
	}
}

// GroupMap is an immutable view of one group's flattened channel map
type GroupMap struct {
	// ChannelNums holds source channel numbers of every filtered item, in item order
	ChannelNums []int

	// Bounds holds the audio frame window of each entry in ChannelNums
	Bounds []adm.ChannelBounds

	// ItemOffsets has one entry per filtered item plus a final total, so item i
	// owns ChannelNums[ItemOffsets[i]:ItemOffsets[i+1]]
	ItemOffsets []int
}

// Items returns the number of filtered items in the map
func (m GroupMap) Items() int {
	if len(m.ItemOffsets) == 0 {
		return 0
	}
	return len(m.ItemOffsets) - 1
}

// Channels returns the flattened channel range of item i
func (m GroupMap) Channels(i int) (start, end int) {
	return m.ItemOffsets[i], m.ItemOffsets[i+1]
}
