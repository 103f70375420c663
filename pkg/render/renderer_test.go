package render

import (
	"math"
	"testing"
	"time"

	"github.com/Resonate-Protocol/admsync/pkg/adm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"", KindNone},
		{"none", KindNone},
		{"Engine", KindEngine},
		{"external", KindExternal},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, got, mustParse(t, got.String()))
	}

	_, err := ParseKind("bear")
	assert.Error(t, err)
}

func mustParse(t *testing.T, s string) Kind {
	t.Helper()
	k, err := ParseKind(s)
	require.NoError(t, err)
	return k
}

func TestNewSelectsImplementation(t *testing.T) {
	items := newFakeItems()
	samples := &constSamples{}

	r, err := New(KindNone, Config{})
	require.NoError(t, err)
	out := []float32{1, 1}
	r.Process(out)
	assert.Equal(t, []float32{0, 0}, out)

	r, err = New(KindEngine, Config{Items: items, Samples: samples, SampleRate: 48000})
	require.NoError(t, err)
	assert.IsType(t, &EngineRenderer{}, r)

	_, err = New(KindEngine, Config{Items: items})
	assert.Error(t, err)

	r, err = New(KindExternal, Config{Items: items, Samples: samples, SampleRate: 48000})
	require.NoError(t, err)
	ext, ok := r.(*ExternalRenderer)
	require.True(t, ok)
	assert.IsType(t, &Panner{}, ext.backend)

	_, err = New(KindExternal, Config{Items: items})
	assert.Error(t, err)
}

func TestTransportAdvance(t *testing.T) {
	tr := newTransport(1000, -0.5)

	_, _, ok := tr.advance(100)
	assert.False(t, ok)

	tr.schedule(0.25)
	_, _, ok = tr.advance(100) // frames 100..200
	assert.False(t, ok)

	lead, src, ok := tr.advance(100) // frames 200..300, start at 250
	require.True(t, ok)
	assert.Equal(t, 50, lead)
	assert.Equal(t, -500, src)

	lead, src, ok = tr.advance(100)
	require.True(t, ok)
	assert.Equal(t, 0, lead)
	assert.Equal(t, -450, src)

	tr.stop()
	_, _, ok = tr.advance(100)
	assert.False(t, ok)
}

func TestTransportSchedulesPastTimeNow(t *testing.T) {
	tr := newTransport(1000, 0)
	tr.advance(500)
	tr.schedule(0.1)

	lead, src, ok := tr.advance(10)
	require.True(t, ok)
	assert.Equal(t, 0, lead)
	assert.Equal(t, 0, src)
}

func TestPanGains(t *testing.T) {
	l, r := panGains([3]float64{0, 1, 0})
	assert.InDelta(t, 1/math.Sqrt2, l, 1e-9)
	assert.InDelta(t, 1/math.Sqrt2, r, 1e-9)

	l, r = panGains([3]float64{-2, 0, 0})
	assert.InDelta(t, 1.0, l, 1e-9)
	assert.InDelta(t, 0.0, r, 1e-9)

	l, r = panGains([3]float64{})
	assert.InDelta(t, l, r, 1e-9)
}

func TestWatchdog(t *testing.T) {
	var w Watchdog
	for i := 0; i < minTimingResults-1; i++ {
		w.Record(480, 48000, time.Millisecond)
	}
	_, ok := w.Check()
	assert.False(t, ok)

	w.Record(480, 48000, time.Millisecond)
	report, ok := w.Check()
	require.True(t, ok)
	assert.Equal(t, int64(minTimingResults), report.Calls)
	assert.Equal(t, 100*time.Millisecond, report.Budget)
	assert.False(t, report.Overrun())

	for i := 0; i < minTimingResults; i++ {
		w.Record(48, 48000, 5*time.Millisecond)
	}
	report, ok = w.Check()
	require.True(t, ok)
	assert.True(t, report.Overrun())
	assert.Equal(t, int64(1), w.Overruns())
}

func TestGroupFor(t *testing.T) {
	g, ok := GroupFor(adm.TypeObjects)
	assert.True(t, ok)
	assert.Equal(t, GroupObjects, g)

	_, ok = GroupFor(adm.TypeMatrix)
	assert.False(t, ok)
	assert.Equal(t, "hoa", GroupHOA.String())
}
