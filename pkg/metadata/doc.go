// ABOUTME: Package documentation for the metadata handler
// ABOUTME: Describes ingestion, dispatch and the construction queue
// Package metadata owns the renderable items of a loaded ADM session.
//
// A Handler pulls raw blocks from a Source on a background goroutine, stores
// them per item, and on every update tick resolves each item's state at the
// effective playhead time and delivers it to its listeners.
//
// Three goroutines touch a Handler concurrently: the ingestion loop, the update
// tick and the real-time audio callback. The items lock is held by ingestion for
// a single append at a time, so the audio callback only ever contends with the
// update tick.
//
// Example:
//
//	h := metadata.NewHandler(metadata.Config{Opener: source.Open})
//	h.AddListener(renderer)
//	if err := h.Load("scene.json"); err != nil {
//		log.Fatal(err)
//	}
//	h.InitialPull()
//	h.StartBackgroundIngestion()
//	defer h.Shutdown()
package metadata
