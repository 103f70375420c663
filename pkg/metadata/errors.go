// ABOUTME: Sentinel errors for the metadata handler
// ABOUTME: Callers match them with errors.Is
package metadata

import "errors"

var (
	// ErrSourceUnavailable is returned when no source is loaded
	ErrSourceUnavailable = errors.New("metadata source unavailable")

	// ErrAlreadyLoaded is returned by Load when a session is active
	ErrAlreadyLoaded = errors.New("metadata source already loaded")

	// ErrLoopTimeout is returned when the ingestion loop does not acknowledge a stop request in time
	ErrLoopTimeout = errors.New("background ingestion did not stop in time")
)
