// ABOUTME: Interfaces consumed from the metadata source and exposed to listeners
// ABOUTME: Source yields raw blocks, Listener receives constructions and updates
package metadata

import "github.com/Resonate-Protocol/admsync/pkg/adm"

// Source supplies raw metadata blocks for a loaded scene
type Source interface {
	// NextMetadataBlock returns the next available block, or false when none is
	// available yet (exhausted or not yet discovered)
	NextMetadataBlock() (adm.RawBlock, bool)

	// DiscoverNewItems makes newly available items readable and returns how many were found
	DiscoverNewItems() int

	SampleRate() int
	FrameCount() int
}

// Opener opens a Source for a path
type Opener func(path string) (Source, error)

// Listener receives item constructions and per-tick metadata updates
type Listener interface {
	// OnItemsReady is called once per flush with the ids awaiting construction
	OnItemsReady(ids []uint64)

	// OnMetadataUpdate is called once per tick per item
	OnMetadataUpdate(update adm.MetadataUpdate)
}

// TickObserver is implemented by listeners that want to know when all updates
// of a tick have been delivered
type TickObserver interface {
	OnTickEnd(t float64)
}
