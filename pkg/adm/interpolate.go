// ABOUTME: Position interpolation helpers
// ABOUTME: Linear and spherical interpolation between vectors
package adm

import "github.com/go-gl/mathgl/mgl64"

// Lerp interpolates linearly between a and b
func Lerp(a, b mgl64.Vec3, t float64) mgl64.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}

// Slerp interpolates direction along the great circle between a and b and
// magnitude linearly. Zero-length inputs fall back to Lerp.
func Slerp(a, b mgl64.Vec3, t float64) mgl64.Vec3 {
	la, lb := a.Len(), b.Len()
	if la == 0 || lb == 0 {
		return Lerp(a, b, t)
	}
	da, db := a.Mul(1/la), b.Mul(1/lb)
	if da.ApproxEqual(db) {
		return da.Mul(la + (lb-la)*t)
	}

	rot := mgl64.QuatBetweenVectors(da, db)
	dir := mgl64.QuatSlerp(mgl64.QuatIdent(), rot, t).Rotate(da)
	return dir.Normalize().Mul(la + (lb-la)*t)
}
