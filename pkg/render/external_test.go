package render

import (
	"bytes"
	"errors"
	"log"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Resonate-Protocol/admsync/pkg/adm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBackend struct {
	recordingSink
	requests []RenderRequest
	err      error
}

func (b *recordingBackend) RenderBlock(req RenderRequest, out []float32) error {
	b.requests = append(b.requests, req)
	for i := range out[:req.Frames*Channels] {
		out[i] = 1
	}
	return b.err
}

func newExternalFixture(startingPosition float64) (*ExternalRenderer, *recordingBackend, *fakeItems) {
	items := newFakeItems(
		newItem(1, adm.TypeObjects, []int{0}, []int{5}, 0, 1),
		newItem(2, adm.TypeDirectSpeakers, []int{1}, []int{7}, 0),
		newItem(3, adm.TypeHOA, []int{2, 3, 4, 5}, []int{5}, 0),
		newItem(4, adm.TypeMatrix, []int{6}, nil, 0),
	)
	backend := &recordingBackend{recordingSink: recordingSink{limit: -1}}
	r := NewExternalRenderer(Config{
		Items:            items,
		Backend:          backend,
		SampleRate:       48000,
		StartingPosition: startingPosition,
	})
	r.OnItemsReady([]uint64{1, 2, 3, 4})
	return r, backend, items
}

func TestExternalRendererTracksItemsByGroup(t *testing.T) {
	r, _, _ := newExternalFixture(0)

	assert.Equal(t, 1, r.Tracker(GroupObjects).ItemCount())
	assert.Equal(t, 1, r.Tracker(GroupDirectSpeakers).ItemCount())
	assert.Equal(t, 1, r.Tracker(GroupHOA).ItemCount())
	assert.False(t, r.Tracker(GroupObjects).Dirty())

	chs, err := r.Tracker(GroupHOA).ChannelMap()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4, 5}, chs)
}

func TestExternalRendererSilentUntilScheduled(t *testing.T) {
	r, backend, _ := newExternalFixture(0)

	out := make([]float32, 256)
	r.Process(out)
	assert.Empty(t, backend.requests)
	assert.Empty(t, backend.sent)
	assert.Equal(t, make([]float32, 256), out)
}

func TestExternalRendererPumpsThenRenders(t *testing.T) {
	r, backend, _ := newExternalFixture(0)
	r.ScheduleAudioPlayback(0)

	out := make([]float32, 512*Channels)
	r.Process(out)

	require.Len(t, backend.requests, 1)
	req := backend.requests[0]
	assert.Equal(t, 0, req.FramePosition)
	assert.Equal(t, 512, req.Frames)
	assert.Equal(t, []int{0}, req.Groups[GroupObjects].ChannelNums)
	assert.Equal(t, []int{1}, req.Groups[GroupDirectSpeakers].ChannelNums)
	assert.Equal(t, 1, req.Groups[GroupHOA].Items())

	assert.Len(t, backend.sent, 4)
	assert.Equal(t, PumpStats{Sent: 4}, r.LastPump())

	r.Process(out)
	require.Len(t, backend.requests, 2)
	assert.Equal(t, 512, backend.requests[1].FramePosition)
	assert.Equal(t, PumpStats{}, r.LastPump())
}

func TestExternalRendererStartsMidBlock(t *testing.T) {
	r, backend, _ := newExternalFixture(0)
	r.ScheduleAudioPlayback(256.0 / 48000)

	out := make([]float32, 512*Channels)
	r.Process(out)

	require.Len(t, backend.requests, 1)
	assert.Equal(t, 256, backend.requests[0].Frames)
	assert.Equal(t, 0, backend.requests[0].FramePosition)
	assert.Equal(t, float32(0), out[255*Channels])
	assert.Equal(t, float32(1), out[256*Channels])
}

func TestExternalRendererStartingPosition(t *testing.T) {
	r, backend, _ := newExternalFixture(1.0)
	r.ScheduleAudioPlayback(0)

	r.Process(make([]float32, 64))
	require.Len(t, backend.requests, 1)
	assert.Equal(t, 48000, backend.requests[0].FramePosition)

	r.StopAudioPlayback()
	r.Process(make([]float32, 64))
	assert.Len(t, backend.requests, 1)
}

func TestExternalRendererProgrammeFilter(t *testing.T) {
	r, backend, _ := newExternalFixture(0)
	r.ApplyAudioProgrammeFilter(5)
	assert.Equal(t, 5, r.Programme())

	assert.Equal(t, 1, r.Tracker(GroupObjects).ItemCount())
	assert.Equal(t, 0, r.Tracker(GroupDirectSpeakers).ItemCount())
	assert.Equal(t, 1, r.Tracker(GroupHOA).ItemCount())

	r.ScheduleAudioPlayback(0)
	r.Process(make([]float32, 64))
	for _, s := range backend.sent {
		assert.NotEqual(t, uint64(2), s.block.ID)
	}
}

func TestExternalRendererResendsAfterOffsetChange(t *testing.T) {
	r, backend, items := newExternalFixture(0)
	r.ScheduleAudioPlayback(0)
	r.Process(make([]float32, 64))
	sent := len(backend.sent)

	items.Settings().SetObjectOffsets(adm.Offsets{Azimuth: 45, DistanceMultiplier: 1})
	r.Process(make([]float32, 64))

	// Any config change invalidates every block, so each group resends its last block
	assert.Equal(t, PumpStats{Resent: 3}, r.LastPump())
	require.Len(t, backend.sent, sent+3)
	assert.Equal(t, GroupObjects, backend.sent[sent].group)
	assert.Equal(t, 1.0, backend.sent[sent].block.RTime)
}

func TestExternalRendererSurvivesBackendErrors(t *testing.T) {
	r, backend, _ := newExternalFixture(0)
	backend.err = errors.New("render failed")
	r.ScheduleAudioPlayback(0)

	for i := 0; i < 3; i++ {
		r.Process(make([]float32, 64))
	}
	assert.Len(t, backend.requests, 3)
	assert.Equal(t, int64(3), r.renderFails.Load())
}

func captureStdLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	return &buf
}

func TestExternalRendererReportsFailuresOnUpdateThread(t *testing.T) {
	r, backend, _ := newExternalFixture(0)
	backend.err = errors.New("device lost")
	backend.limit = 0
	r.ScheduleAudioPlayback(0)
	buf := captureStdLog(t)

	for i := 0; i < 3; i++ {
		r.Process(make([]float32, 64))
	}
	assert.Empty(t, buf.String(), "audio callback must not log")

	r.OnUpdateEnd()
	out := buf.String()
	assert.Contains(t, out, "Render failed 3 times (3 total): device lost")
	assert.Contains(t, out, "rejected")
	assert.Contains(t, out, "objects")
	rejected := r.Tracker(GroupObjects).Rejections()
	assert.Positive(t, rejected)

	// further failures inside the interval wait for the next report
	buf.Reset()
	r.Process(make([]float32, 64))
	r.OnUpdateEnd()
	assert.Empty(t, buf.String())

	r.reportedAt = time.Now().Add(-failureReportInterval)
	r.OnUpdateEnd()
	assert.Contains(t, buf.String(), "Render failed 1 times (4 total)")
	assert.Equal(t, 1, strings.Count(buf.String(), "Render failed"))

	// nothing new, nothing logged
	buf.Reset()
	r.reportedAt = time.Time{}
	r.OnUpdateEnd()
	assert.NotContains(t, buf.String(), "Render failed")
}

func TestExternalRendererWatchdogCollectsTimings(t *testing.T) {
	r, _, _ := newExternalFixture(0)
	r.ScheduleAudioPlayback(0)

	for i := 0; i < minTimingResults; i++ {
		r.Process(make([]float32, 64))
	}
	_, ok := r.Watchdog().Check()
	assert.True(t, ok)

	r.OnUpdateBegin()
	r.OnUpdateEnd()
}

func TestExternalRendererReplaysTimelineAfterReschedule(t *testing.T) {
	const rate = 1000
	it := adm.NewItem(rawBlock(1, adm.TypeObjects, 0, []int{0}), rate)
	it.Append(rawBlock(1, adm.TypeObjects, 0, []int{0}))
	fadeOut := rawBlock(1, adm.TypeObjects, 1, []int{0})
	fadeOut.Gain = 0
	it.Append(fadeOut)

	r := NewExternalRenderer(Config{
		Items:      newFakeItems(it),
		Backend:    NewPanner(&constSamples{}, rate, 0),
		SampleRate: rate,
	})
	r.OnItemsReady([]uint64{1})
	r.ScheduleAudioPlayback(0)

	out := make([]float32, 100*Channels)
	r.Process(out)
	assert.InDelta(t, 0.1/math.Sqrt2, out[0], 1e-6, "first block plays at unit gain")

	// Play on to 1.4s, where the silent second block is in effect
	for i := 1; i < 14; i++ {
		r.Process(out)
	}
	assert.Equal(t, float32(0), out[0])
	cursor, _ := r.Tracker(GroupObjects).SendCursor(1)
	assert.Equal(t, 2, cursor)

	// Loop back to the start 0.1s from now
	r.ScheduleAudioPlayback(1.5)
	r.Process(out)
	assert.Equal(t, make([]float32, len(out)), out, "silent until the scheduled frame")

	r.Process(out)
	assert.InDelta(t, 0.1/math.Sqrt2, out[0], 1e-6, "first block plays again")
	assert.InDelta(t, 0.1/math.Sqrt2, out[1], 1e-6)
	assert.Equal(t, 2, r.LastPump().Sent)
}
