// ABOUTME: Sentinel errors for the render package
// ABOUTME: Channel map staleness and backend rejections
package render

import "errors"

var (
	// ErrStaleChannelMap is returned when a channel map is read before a pending rebuild
	ErrStaleChannelMap = errors.New("channel map read while dirty")

	// ErrRendererRejected is reported when the backend refuses a metadata block
	ErrRendererRejected = errors.New("renderer rejected metadata")
)
