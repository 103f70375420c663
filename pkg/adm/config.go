// ABOUTME: Processing configuration snapshots and revision counter
// ABOUTME: Offsets per item type, published atomically with a monotonic revision
package adm

import (
	"math"
	"sync"
	"sync/atomic"
)

// Offsets are the user-tunable spatial offsets for one item type
type Offsets struct {
	// Cartesian offsets, added after spherical processing
	X, Y, Z float64

	// Spherical offsets in degrees
	Azimuth   float64
	Elevation float64

	// DistanceMultiplier scales spherical distance (1.0 = unchanged)
	DistanceMultiplier float64
}

// DefaultOffsets returns offsets that leave a block untouched
func DefaultOffsets() Offsets {
	return Offsets{DistanceMultiplier: 1.0}
}

// HasSpherical reports whether any spherical offset differs from its default
func (o Offsets) HasSpherical() bool {
	return o.Azimuth != 0 || o.Elevation != 0 || o.DistanceMultiplier != 1.0
}

// HasCartesian reports whether any cartesian offset is non-zero
func (o Offsets) HasCartesian() bool {
	return o.X != 0 || o.Y != 0 || o.Z != 0
}

// Finite reports whether every field is a finite number
func (o Offsets) Finite() bool {
	for _, v := range []float64{o.X, o.Y, o.Z, o.Azimuth, o.Elevation, o.DistanceMultiplier} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// WrapAzimuth maps an angle in degrees to (-180, 180]. Non-finite angles map to 0.
func WrapAzimuth(az float64) float64 {
	if math.IsNaN(az) || math.IsInf(az, 0) {
		return 0
	}
	az = math.Remainder(az, 360.0)
	if az <= -180.0 {
		az += 360.0
	}
	return az
}

func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

func (o Offsets) normalized() Offsets {
	o.X = finiteOr(o.X, 0)
	o.Y = finiteOr(o.Y, 0)
	o.Z = finiteOr(o.Z, 0)
	o.Azimuth = WrapAzimuth(o.Azimuth)
	o.Elevation = math.Max(-90.0, math.Min(90.0, finiteOr(o.Elevation, 0)))
	if o.DistanceMultiplier < 0 || math.IsNaN(o.DistanceMultiplier) || math.IsInf(o.DistanceMultiplier, 1) {
		o.DistanceMultiplier = 1.0
	}
	return o
}

// Config is an immutable processing configuration. Never modify a Config obtained
// from Settings; use Settings.Update instead.
type Config struct {
	Objects        Offsets
	DirectSpeakers Offsets

	// DefaultReferenceDistance substitutes a missing or overridden absoluteDistance
	DefaultReferenceDistance float64

	// AlwaysOverrideAbsoluteDistance ignores absoluteDistance from the source
	AlwaysOverrideAbsoluteDistance bool

	// Revision increases on every published change
	Revision int64
}

// DefaultConfig returns a Config with no offsets and unit reference distance
func DefaultConfig() Config {
	return Config{
		Objects:                  DefaultOffsets(),
		DirectSpeakers:           DefaultOffsets(),
		DefaultReferenceDistance: 1.0,
	}
}

// OffsetsFor returns the offsets applying to an item type
func (c *Config) OffsetsFor(t TypeDef) Offsets {
	switch t {
	case TypeObjects:
		return c.Objects
	case TypeDirectSpeakers:
		return c.DirectSpeakers
	default:
		return DefaultOffsets()
	}
}

func (c *Config) normalize() {
	c.Objects = c.Objects.normalized()
	c.DirectSpeakers = c.DirectSpeakers.normalized()
	if c.DefaultReferenceDistance < 0 || math.IsNaN(c.DefaultReferenceDistance) || math.IsInf(c.DefaultReferenceDistance, 1) {
		c.DefaultReferenceDistance = 1.0
	}
}

// Settings publishes Config snapshots. Readers on any goroutine see a consistent
// snapshot; the snapshot revision is the only cache invalidation signal.
type Settings struct {
	mu      sync.Mutex // serializes writers
	current atomic.Pointer[Config]
}

// NewSettings creates a settings store starting at revision 0
func NewSettings(initial Config) *Settings {
	initial.normalize()
	initial.Revision = 0
	s := &Settings{}
	s.current.Store(&initial)
	return s
}

// Snapshot returns the current configuration
func (s *Settings) Snapshot() *Config {
	return s.current.Load()
}

// Revision returns the current revision
func (s *Settings) Revision() int64 {
	return s.current.Load().Revision
}

// Update applies fn to a copy of the current Config, normalizes it, bumps the
// revision and publishes it
func (s *Settings) Update(fn func(*Config)) *Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.current.Load()
	fn(&next)
	next.normalize()
	next.Revision = s.current.Load().Revision + 1
	s.current.Store(&next)
	return &next
}

// SetObjectOffsets replaces the offsets applied to object items
func (s *Settings) SetObjectOffsets(o Offsets) *Config {
	return s.Update(func(c *Config) { c.Objects = o })
}

// SetDirectSpeakerOffsets replaces the offsets applied to direct speaker items
func (s *Settings) SetDirectSpeakerOffsets(o Offsets) *Config {
	return s.Update(func(c *Config) { c.DirectSpeakers = o })
}

// SetReferenceDistance sets the default reference distance and override flag
func (s *Settings) SetReferenceDistance(distance float64, alwaysOverride bool) *Config {
	return s.Update(func(c *Config) {
		c.DefaultReferenceDistance = distance
		c.AlwaysOverrideAbsoluteDistance = alwaysOverride
	})
}
