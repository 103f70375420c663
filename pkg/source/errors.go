// ABOUTME: Sentinel errors for scene loading
// ABOUTME: Returned wrapped with the offending stem or item
package source

import "errors"

var (
	// ErrSampleRateMismatch is returned when a stem does not match the scene rate
	ErrSampleRateMismatch = errors.New("stem sample rate does not match scene")

	// ErrUnknownStem is returned for stems that are neither a known file type nor a tone
	ErrUnknownStem = errors.New("unknown stem type")

	// ErrInvalidScene is returned for scenes that fail validation
	ErrInvalidScene = errors.New("invalid scene")
)
