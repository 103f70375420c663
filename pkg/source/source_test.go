package source

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/admsync/pkg/adm"
	"github.com/Resonate-Protocol/admsync/pkg/metadata"
)

// writeWAV writes a 16-bit file whose channel ch holds the constant value (ch+1)*1000
func writeWAV(t *testing.T, path string, sampleRate, channels, frames int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           make([]int, frames*channels),
		SourceBitDepth: 16,
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			buf.Data[i*channels+ch] = (ch + 1) * 1000
		}
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
}

func writeScene(t *testing.T, dir string, scene Scene) string {
	t.Helper()
	data, err := json.Marshal(scene)
	require.NoError(t, err)
	path := filepath.Join(dir, "scene.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func gain(g float64) *float64 { return &g }

func testScene() Scene {
	end := 1.5
	return Scene{
		SampleRate: 8000,
		Stems: []StemSpec{
			{Path: "bed.wav"},
			{Tone: &ToneSpec{Frequency: 100, Seconds: 2}},
		},
		Items: []ItemSpec{
			{
				ID: 10, Name: "Bed", Type: "directspeakers", Channels: []int{0, 1},
				Blocks: []BlockSpec{{RTime: 0, Duration: 4, Azimuth: 30, SpeakerLabel: "M+030"}},
			},
			{
				ID: 20, Name: "Tone", Type: "objects", Channels: []int{2},
				Programmes: []string{"AP_1001"}, AudioStart: 0.5, AudioEnd: &end,
				Blocks: []BlockSpec{
					{RTime: 1, Duration: 1, Azimuth: -90, Gain: gain(0.5)},
					{RTime: 0, Duration: 1, Cartesian: true, Y: 1},
				},
			},
			{
				ID: 30, Name: "Late", Type: "hoa", Channels: []int{0, 1, 2, 2},
				Wave: 1,
				Blocks: []BlockSpec{{RTime: 0, Duration: 4, Order: []int{0, 1, 1, 1}, Degree: []int{0, -1, 0, 1}}},
			},
		},
	}
}

func openTestScene(t *testing.T) *Source {
	t.Helper()
	dir := t.TempDir()
	writeWAV(t, filepath.Join(dir, "bed.wav"), 8000, 2, 4000)
	src, err := Open(writeScene(t, dir, testScene()))
	require.NoError(t, err)
	return src
}

func drain(src *Source) []adm.RawBlock {
	var out []adm.RawBlock
	for {
		b, ok := src.NextMetadataBlock()
		if !ok {
			return out
		}
		out = append(out, b)
	}
}

func TestOpenBuildsChannelSpace(t *testing.T) {
	src := openTestScene(t)

	assert.Equal(t, 8000, src.SampleRate())
	assert.Equal(t, 3, src.ChannelCount())
	assert.Equal(t, 16000, src.FrameCount())
	assert.Equal(t, []string{"bed.wav", "tone:100Hz"}, src.Stems())
}

func TestDiscoveryReleasesWavesInOrder(t *testing.T) {
	src := openTestScene(t)

	_, ok := src.NextMetadataBlock()
	assert.False(t, ok, "nothing is readable before discovery")

	assert.Equal(t, 2, src.DiscoverNewItems())
	blocks := drain(src)
	require.Len(t, blocks, 3)

	// Time ordered, scene order on ties
	assert.Equal(t, uint64(10), blocks[0].ID)
	assert.Equal(t, uint64(20), blocks[1].ID)
	assert.Equal(t, 0.0, blocks[1].RTime)
	assert.Equal(t, 1.0, blocks[2].RTime)

	assert.Equal(t, 1, src.DiscoverNewItems())
	late := drain(src)
	require.Len(t, late, 1)
	assert.Equal(t, adm.TypeHOA, late[0].Type)
	assert.Equal(t, []int{0, 1, 1, 1}, late[0].Order)

	assert.Equal(t, 0, src.DiscoverNewItems())
	assert.Equal(t, 3, src.Released())
}

func TestRawBlockConversion(t *testing.T) {
	src := openTestScene(t)
	src.DiscoverNewItems()
	blocks := drain(src)

	bed := blocks[0]
	assert.Equal(t, adm.TypeDirectSpeakers, bed.Type)
	assert.Equal(t, "M+030", bed.SpeakerLabel)
	assert.Equal(t, 1.0, bed.Distance, "spherical blocks default to unit distance")
	assert.Equal(t, 1.0, bed.Gain)
	assert.True(t, math.IsNaN(bed.AbsoluteDistance))
	assert.True(t, math.IsInf(bed.AudioEndTime, 1))
	assert.Empty(t, bed.ProgrammeIDs)

	tone := blocks[2]
	assert.Equal(t, []int{0x1001}, tone.ProgrammeIDs)
	assert.Equal(t, 0.5, tone.Gain)
	assert.Equal(t, 0.5, tone.AudioStartTime)
	assert.Equal(t, 1.5, tone.AudioEndTime)

	assert.True(t, blocks[1].Cartesian)
	assert.Equal(t, 1.0, blocks[1].Y)
}

func TestReadChannelHonoursBounds(t *testing.T) {
	src := openTestScene(t)
	all := adm.ChannelBounds{LowerFrame: 0, UpperFrame: math.MaxInt32}

	dst := make([]float32, 4)
	assert.Equal(t, 4, src.ReadChannel(1, 0, all, dst))
	for _, s := range dst {
		assert.InDelta(t, 2000.0/32768, s, 1e-6)
	}

	// Straddling the end of the stem
	src.ReadChannel(0, 3998, all, dst)
	assert.InDelta(t, 1000.0/32768, dst[1], 1e-6)
	assert.Equal(t, float32(0), dst[2])
	assert.Equal(t, float32(0), dst[3])

	// Straddling the lower bound and negative frames
	src.ReadChannel(0, -2, adm.ChannelBounds{LowerFrame: 1, UpperFrame: 2}, dst)
	assert.Equal(t, []float32{0, 0, 0, 1000.0 / 32768}, dst)

	// Unknown channel
	dst[0] = 1
	src.ReadChannel(9, 0, all, dst)
	assert.Equal(t, make([]float32, 4), dst)
}

func TestResampleMismatchedStem(t *testing.T) {
	dir := t.TempDir()
	writeWAV(t, filepath.Join(dir, "bed.wav"), 4000, 2, 2000)

	scene := testScene()
	scene.Resample = true
	src, err := New(&scene, dir)
	require.NoError(t, err)

	assert.Equal(t, 8000, src.SampleRate())
	assert.Equal(t, 16000, src.FrameCount(), "the tone is the longest stem")
	assert.Len(t, src.channels[0], 4000)

	dst := make([]float32, 2)
	src.ReadChannel(1, 1000, adm.ChannelBounds{UpperFrame: math.MaxInt32}, dst)
	assert.InDelta(t, 2000.0/32768, dst[0], 1e-6)
}

func TestToneStem(t *testing.T) {
	st := toneStem(ToneSpec{Frequency: 1000, Seconds: 0.01, Channels: 2}, 8000)
	require.Len(t, st.channels, 2)
	assert.Equal(t, 80, st.frames())
	assert.Equal(t, float32(0), st.channels[0][0])
	// Quarter period of 1 kHz at 8 kHz is two frames
	assert.InDelta(t, defaultToneLevel, st.channels[1][2], 1e-6)
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()
	writeWAV(t, filepath.Join(dir, "bed.wav"), 44100, 1, 10)

	scene := testScene()
	_, err := Open(writeScene(t, dir, scene))
	assert.ErrorIs(t, err, ErrSampleRateMismatch)

	scene.SampleRate = 0
	scene.Stems = []StemSpec{{Path: "bed.aiff"}}
	_, err = New(&scene, dir)
	assert.ErrorIs(t, err, ErrUnknownStem)

	scene.Stems = []StemSpec{{}}
	_, err = New(&scene, dir)
	assert.ErrorIs(t, err, ErrUnknownStem)

	scene.Stems = []StemSpec{{Path: "bed.wav"}}
	_, err = New(&scene, dir)
	assert.ErrorIs(t, err, ErrInvalidScene, "channel 1 is outside a mono stem")

	scene.Stems = nil
	_, err = New(&scene, dir)
	assert.ErrorIs(t, err, ErrInvalidScene)

	_, err = Open(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	_, err = DecodeScene(strings.NewReader(`{"bogus": 1}`))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		items []ItemSpec
	}{
		{"duplicate id", []ItemSpec{
			{ID: 1, Type: "objects", Channels: []int{0}},
			{ID: 1, Type: "objects", Channels: []int{0}},
		}},
		{"unknown type", []ItemSpec{{ID: 1, Type: "ambience", Channels: []int{0}}}},
		{"no channels", []ItemSpec{{ID: 1, Type: "objects"}}},
		{"bad programme", []ItemSpec{{ID: 1, Type: "objects", Channels: []int{0}, Programmes: []string{"AP_zz"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Scene{Items: tt.items}
			assert.ErrorIs(t, s.validate(1), ErrInvalidScene)
		})
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	src := openTestScene(t)
	src.DiscoverNewItems()
	require.NoError(t, src.Close())

	_, ok := src.NextMetadataBlock()
	assert.False(t, ok)
	assert.Equal(t, 0, src.DiscoverNewItems())
}

func TestSourceFeedsHandler(t *testing.T) {
	dir := t.TempDir()
	writeWAV(t, filepath.Join(dir, "bed.wav"), 8000, 2, 4000)
	path := writeScene(t, dir, testScene())

	h := metadata.NewHandler(metadata.Config{Opener: Opener})
	require.NoError(t, h.Load(path))
	defer h.Shutdown()

	n, err := h.InitialPull()
	require.NoError(t, err)
	assert.Equal(t, 3, n, "blocks ingested")
	assert.Equal(t, []uint64{10, 20}, h.ItemIDs())

	found, err := h.DiscoverNewItems()
	require.NoError(t, err)
	assert.Equal(t, 1, found)
}
