// ABOUTME: Coordinate conversion and offset processing for metadata blocks
// ABOUTME: Keeps spherical and cartesian representations consistent after offsets
package adm

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// SphericalFromCartesian converts ADM cartesian coordinates to azimuth, elevation
// (degrees) and distance. A zero vector yields zero angles.
func SphericalFromCartesian(x, y, z float64) (azimuth, elevation, distance float64) {
	distance = math.Sqrt(x*x + y*y + z*z)
	if distance > 0 {
		azimuth = -mgl64.RadToDeg(math.Atan2(x, y))
		elevation = mgl64.RadToDeg(math.Asin(z / distance))
	}
	return azimuth, elevation, distance
}

// CartesianFromSpherical converts azimuth, elevation (degrees) and distance to ADM
// cartesian coordinates (x right, y front, z up)
func CartesianFromSpherical(azimuth, elevation, distance float64) (x, y, z float64) {
	az := mgl64.DegToRad(-azimuth)
	el := mgl64.DegToRad(elevation)
	x = distance * math.Sin(az) * math.Cos(el)
	y = distance * math.Cos(az) * math.Cos(el)
	z = distance * math.Sin(el)
	return x, y, z
}

// Resolve derives the processed form of a raw block under cfg.
//
// Spherical offsets are applied before cartesian values are regenerated; cartesian
// offsets are applied afterwards and trigger a final spherical re-derivation.
func Resolve(raw RawBlock, cfg *Config) ProcessedBlock {
	p := ProcessedBlock{RawBlock: raw, Revision: cfg.Revision}
	offsets := cfg.OffsetsFor(raw.Type)

	if p.Cartesian {
		p.Azimuth, p.Elevation, p.Distance = SphericalFromCartesian(p.X, p.Y, p.Z)
	}

	sphApplied := false
	if offsets.HasSpherical() {
		sphApplied = true
		p.Azimuth += offsets.Azimuth
		p.Elevation += offsets.Elevation
		p.Distance *= offsets.DistanceMultiplier
	}

	if !p.Cartesian || sphApplied {
		p.X, p.Y, p.Z = CartesianFromSpherical(p.Azimuth, p.Elevation, p.Distance)
	}

	if offsets.HasCartesian() {
		p.X += offsets.X
		p.Y += offsets.Y
		p.Z += offsets.Z
		p.Azimuth, p.Elevation, p.Distance = SphericalFromCartesian(p.X, p.Y, p.Z)
	}

	if cfg.AlwaysOverrideAbsoluteDistance || math.IsNaN(p.AbsoluteDistance) || p.AbsoluteDistance < 0 {
		p.AbsoluteDistance = cfg.DefaultReferenceDistance
	}

	p.Position = mgl64.Vec3{p.X, p.Y, p.Z}.Mul(p.AbsoluteDistance)
	return p
}
