// ABOUTME: Playback clock against the audio device's DSP time
// ABOUTME: Tracks scheduled/started/stopped state and the effective playhead time
package playhead

import (
	"sync"
	"time"

	"github.com/Resonate-Protocol/admsync/internal/logging"
)

// State is the playback state of the clock
type State int

const (
	StateStopped State = iota
	StateScheduled
	StateStarted
)

func (s State) String() string {
	switch s {
	case StateScheduled:
		return "SCHEDULED"
	case StateStarted:
		return "STARTED"
	default:
		return "STOPPED"
	}
}

// TimeSource reports DSP time in seconds. It must be monotonic.
type TimeSource interface {
	Now() float64
}

// FrameSource derives DSP time from a count of rendered frames
type FrameSource struct {
	Frames     func() int64
	SampleRate int
}

func (f FrameSource) Now() float64 {
	if f.SampleRate <= 0 {
		return 0
	}
	return float64(f.Frames()) / float64(f.SampleRate)
}

// WallSource derives DSP time from the wall clock since it was created
type WallSource struct {
	origin time.Time
}

// NewWallSource starts a wall clock at zero
func NewWallSource() WallSource {
	return WallSource{origin: time.Now()}
}

func (w WallSource) Now() float64 {
	return time.Since(w.origin).Seconds()
}

// Clock maps DSP time to playhead time.
// The playhead reads startingPosition at the scheduled DSP time and advances with it.
type Clock struct {
	source TimeSource

	mu               sync.RWMutex
	scheduled        bool
	startAt          float64
	startingPosition float64
	schedulingWindow float64
	lastState        State
}

// NewClock creates a stopped clock. schedulingWindow is the lead time Start allows
// for setup before audio begins.
func NewClock(source TimeSource, startingPosition, schedulingWindow float64) *Clock {
	return &Clock{
		source:           source,
		startingPosition: startingPosition,
		schedulingWindow: schedulingWindow,
	}
}

// Now returns the current DSP time
func (c *Clock) Now() float64 {
	return c.source.Now()
}

// Schedule arms playback for DSP time at, stopping any current playback first
func (c *Clock) Schedule(at float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.scheduled {
		logging.Debugf(logging.Playback, "Rescheduling playback, stopping current run at %.3fs", c.source.Now())
	}
	c.scheduled = true
	c.startAt = at
	logging.Debugf(logging.Scheduling, "Playback scheduled for DSP time %.3fs (now %.3fs), playhead %.3fs",
		at, c.source.Now(), c.startingPosition)
}

// Start schedules playback one scheduling window from now and returns the DSP time chosen
func (c *Clock) Start() float64 {
	at := c.source.Now() + c.schedulingWindow
	c.Schedule(at)
	return at
}

// Stop stops playback. It reports false when already stopped.
func (c *Clock) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.scheduled {
		return false
	}
	c.scheduled = false
	return true
}

// State returns the playback state at the current DSP time
func (c *Clock) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stateLocked(c.source.Now())
}

func (c *Clock) stateLocked(now float64) State {
	switch {
	case !c.scheduled:
		return StateStopped
	case c.startAt < now:
		return StateStarted
	default:
		return StateScheduled
	}
}

// Playing reports whether playback is scheduled or started
func (c *Clock) Playing() bool {
	return c.State() != StateStopped
}

// ScheduledAt returns the DSP time playback starts at, and false when stopped
func (c *Clock) ScheduledAt() (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.startAt, c.scheduled
}

// Time returns the effective playhead time. Before the scheduled start it is less
// than the starting position.
func (c *Clock) Time() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.source.Now() - c.startAt + c.startingPosition
}

// SetStartingPosition sets the playhead position playback begins from
func (c *Clock) SetStartingPosition(seconds float64) {
	c.mu.Lock()
	c.startingPosition = seconds
	c.mu.Unlock()
}

// StartingPosition returns the playhead position playback begins from
func (c *Clock) StartingPosition() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.startingPosition
}

// SchedulingWindow returns the lead time used by Start
func (c *Clock) SchedulingWindow() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.schedulingWindow
}

// Observe samples the state and logs transitions since the previous call.
// It returns the current state and whether it changed.
func (c *Clock) Observe() (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stateLocked(c.source.Now())
	if s == c.lastState {
		return s, false
	}
	logging.Debugf(logging.Playback, "Playback state %s -> %s", c.lastState, s)
	c.lastState = s
	return s, true
}
