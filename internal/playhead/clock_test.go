// ABOUTME: Tests for the playback clock
// ABOUTME: Tests state transitions, playhead time and time sources
package playhead

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualSource struct {
	now float64
}

func (m *manualSource) Now() float64 { return m.now }

func TestClockStates(t *testing.T) {
	src := &manualSource{now: 10}
	c := NewClock(src, 0, 0.5)

	assert.Equal(t, StateStopped, c.State())
	assert.False(t, c.Playing())
	assert.False(t, c.Stop())

	at := c.Start()
	assert.Equal(t, 10.5, at)
	assert.Equal(t, StateScheduled, c.State())
	assert.True(t, c.Playing())

	// Strictly after the scheduled time counts as started
	src.now = 10.5
	assert.Equal(t, StateScheduled, c.State())
	src.now = 10.6
	assert.Equal(t, StateStarted, c.State())

	assert.True(t, c.Stop())
	assert.Equal(t, StateStopped, c.State())
	_, ok := c.ScheduledAt()
	assert.False(t, ok)
}

func TestClockPlayheadTime(t *testing.T) {
	src := &manualSource{now: 2}
	c := NewClock(src, 30, 0)
	c.Schedule(3)

	// Before the start the playhead sits before the starting position
	assert.InDelta(t, 29, c.Time(), 1e-9)

	src.now = 5.25
	assert.InDelta(t, 32.25, c.Time(), 1e-9)

	c.SetStartingPosition(0)
	assert.InDelta(t, 2.25, c.Time(), 1e-9)
	assert.Equal(t, 0.0, c.StartingPosition())
}

func TestClockRescheduleReplacesStart(t *testing.T) {
	src := &manualSource{now: 0}
	c := NewClock(src, 0, 0)
	c.Schedule(1)
	c.Schedule(4)

	at, ok := c.ScheduledAt()
	require.True(t, ok)
	assert.Equal(t, 4.0, at)
}

func TestClockObserveReportsTransitions(t *testing.T) {
	src := &manualSource{}
	c := NewClock(src, 0, 1)

	s, changed := c.Observe()
	assert.Equal(t, StateStopped, s)
	assert.False(t, changed)

	c.Start()
	s, changed = c.Observe()
	assert.Equal(t, StateScheduled, s)
	assert.True(t, changed)

	_, changed = c.Observe()
	assert.False(t, changed)

	src.now = 2
	s, changed = c.Observe()
	assert.Equal(t, StateStarted, s)
	assert.True(t, changed)
}

func TestFrameSource(t *testing.T) {
	var frames atomic.Int64
	src := FrameSource{Frames: frames.Load, SampleRate: 48000}
	assert.Equal(t, 0.0, src.Now())

	frames.Store(24000)
	assert.Equal(t, 0.5, src.Now())

	assert.Equal(t, 0.0, FrameSource{Frames: frames.Load}.Now())
}

func TestWallSourceAdvances(t *testing.T) {
	src := NewWallSource()
	time.Sleep(5 * time.Millisecond)
	assert.Greater(t, src.Now(), 0.0)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "STOPPED", StateStopped.String())
	assert.Equal(t, "SCHEDULED", StateScheduled.String())
	assert.Equal(t, "STARTED", StateStarted.String())
}
