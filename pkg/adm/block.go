// ABOUTME: Revision-gated processing cache around one metadata block
// ABOUTME: Recomputes the processed block only when the config revision moves on
package adm

import (
	"sync"
	"sync/atomic"
)

// Block wraps an ingested RawBlock and lazily caches its processed form
type Block struct {
	raw RawBlock

	mu        sync.Mutex
	processed ProcessedBlock
	revision  int64 // -1 until first processed

	recomputations atomic.Int64
}

// NewBlock wraps raw. Nothing is processed until first read.
func NewBlock(raw RawBlock) *Block {
	return &Block{raw: raw, revision: -1}
}

// Raw returns the block as ingested
func (b *Block) Raw() RawBlock {
	return b.raw
}

// StartTime is the block-relative start time (processing never changes it)
func (b *Block) StartTime() float64 {
	return b.raw.RTime
}

// Duration of the block in seconds
func (b *Block) Duration() float64 {
	return b.raw.Duration
}

// EndTime is StartTime plus Duration
func (b *Block) EndTime() float64 {
	return b.raw.EndTime()
}

// JumpPosition reports a discrete position change with a short ramp
func (b *Block) JumpPosition() bool {
	return b.raw.JumpPosition
}

// MoveSpherically reports whether positions interpolate along the sphere
func (b *Block) MoveSpherically() bool {
	return !b.raw.Cartesian
}

// InterpolationLength is the ramp length of a jump block, else the duration
func (b *Block) InterpolationLength() float64 {
	if b.raw.JumpPosition {
		return b.raw.InterpolationLength
	}
	return b.raw.Duration
}

// Stale reports whether the cached form predates cfg
func (b *Block) Stale(cfg *Config) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.revision < cfg.Revision
}

// Refresh reprocesses the block if its cache is older than cfg and reports
// whether it did
func (b *Block) Refresh(cfg *Config) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshLocked(cfg)
}

func (b *Block) refreshLocked(cfg *Config) bool {
	if b.revision >= cfg.Revision {
		return false
	}
	b.processed = Resolve(b.raw, cfg)
	b.revision = cfg.Revision
	b.recomputations.Add(1)
	return true
}

// Processed returns the processed block, recomputing it first if stale
func (b *Block) Processed(cfg *Config) ProcessedBlock {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked(cfg)
	return b.processed
}

// Revision returns the revision the cache was last computed at (-1 if never)
func (b *Block) Revision() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.revision
}

// Recomputations counts how often the processed form was computed
func (b *Block) Recomputations() int64 {
	return b.recomputations.Load()
}
