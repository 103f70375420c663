// ABOUTME: Visualizer feed package
// ABOUTME: Streams per-tick item positions to websocket viewers
// Package visualize publishes the resolved metadata of a playing scene over a
// websocket so that remote viewers can draw item positions live.
//
// A Hub is a metadata listener. Updates delivered during a tick are collected and
// sent as one scene/frame message when the tick ends. Sends never block the
// dispatch goroutine: a viewer whose queue is full misses frames.
//
// Example:
//
//	hub := visualize.NewHub(visualize.Config{Addr: ":8928", Catalog: handler})
//	handler.AddListener(hub)
//	if err := hub.Start(); err != nil {
//	    log.Fatal(err)
//	}
package visualize
