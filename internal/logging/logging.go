// ABOUTME: Replaceable diagnostic logger with debug categories
// ABOUTME: Categories mirror the player's debug switches and are enabled by name
package logging

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
)

// Category selects a family of verbose diagnostics
type Category uint32

const (
	Startup    Category = 1 << iota // Module construction and teardown
	Playback                        // Playback state transitions
	Scheduling                      // Audio scheduling and frame offsets
	Profiling                       // Timing of key operations
	Pull                            // Item discovery and block pulls
	RunStates                       // Per-item metadata run states
	Channels                        // Renderer channel assignments
	Render                          // Real-time render diagnostics
)

var categoryNames = map[string]Category{
	"startup":    Startup,
	"playback":   Playback,
	"scheduling": Scheduling,
	"profiling":  Profiling,
	"pull":       Pull,
	"runstates":  RunStates,
	"channels":   Channels,
	"render":     Render,
}

// Logf is the package-level diagnostic logger. It defaults to log.Printf.
var Logf func(format string, v ...interface{}) = log.Printf

var enabled atomic.Uint32

// SetLogger replaces the logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Enable turns on the given categories
func Enable(c Category) {
	for {
		old := enabled.Load()
		if enabled.CompareAndSwap(old, old|uint32(c)) {
			return
		}
	}
}

// DisableAll turns every category off
func DisableAll() {
	enabled.Store(0)
}

// Enabled reports whether category c is on
func Enabled(c Category) bool {
	return enabled.Load()&uint32(c) != 0
}

// Debugf logs only when category c is enabled
func Debugf(c Category, format string, v ...interface{}) {
	if Enabled(c) {
		Logf(format, v...)
	}
}

// ParseCategories enables a comma separated list of category names ("all" for every one)
func ParseCategories(list string) error {
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "" {
			continue
		}
		if name == "all" {
			for _, c := range categoryNames {
				Enable(c)
			}
			continue
		}
		c, ok := categoryNames[name]
		if !ok {
			return fmt.Errorf("unknown debug category: %s", name)
		}
		Enable(c)
	}
	return nil
}
