// ABOUTME: Stem decoders for WAV, FLAC, MP3, Ogg Vorbis and generated tones
// ABOUTME: Each stem decodes fully into per-channel float buffers
package source

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/Resonate-Protocol/admsync/pkg/audio"
	"github.com/Resonate-Protocol/admsync/pkg/audio/resample"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"
)

const (
	defaultToneLevel = 0.5
	mp3Channels      = 2
)

// stem is one decoded audio file, one slice per channel
type stem struct {
	name       string
	sampleRate int
	channels   [][]float32
}

func (s *stem) frames() int {
	if len(s.channels) == 0 {
		return 0
	}
	return len(s.channels[0])
}

// resample converts every channel to rate
func (s *stem) resample(rate int) {
	for ch, data := range s.channels {
		s.channels[ch] = resample.Convert(data, s.sampleRate, rate)
	}
	s.sampleRate = rate
}

// loadStem decodes spec. Relative paths resolve against dir.
func loadStem(spec StemSpec, dir string, sampleRate int) (*stem, error) {
	if spec.Tone != nil {
		return toneStem(*spec.Tone, sampleRate), nil
	}
	if spec.Path == "" {
		return nil, ErrUnknownStem
	}

	path := spec.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}

	var decode func(io.ReadSeeker) (*stem, error)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		decode = decodeWAV
	case ".flac":
		decode = decodeFLAC
	case ".mp3":
		decode = decodeMP3
	case ".ogg", ".oga":
		decode = decodeVorbis
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStem, spec.Path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stem: %w", err)
	}
	st, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", spec.Path, err)
	}
	st.name = spec.Path
	return st, nil
}

func decodeWAV(r io.ReadSeeker) (*stem, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("not a valid wav file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("wav file has no channels")
	}

	bitDepth := int(dec.BitDepth)
	interleaved := make([]float32, len(buf.Data))
	for i, s := range buf.Data {
		interleaved[i] = audio.SampleToFloat(s, bitDepth)
	}

	return &stem{
		sampleRate: buf.Format.SampleRate,
		channels:   audio.Deinterleave(interleaved, buf.Format.NumChannels),
	}, nil
}

func decodeFLAC(r io.ReadSeeker) (*stem, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, err
	}

	info := stream.Info
	channels := int(info.NChannels)
	bitDepth := int(info.BitsPerSample)
	if channels <= 0 {
		return nil, fmt.Errorf("flac stream has no channels")
	}

	st := &stem{
		sampleRate: int(info.SampleRate),
		channels:   make([][]float32, channels),
	}
	if info.NSamples > 0 {
		for ch := range st.channels {
			st.channels[ch] = make([]float32, 0, info.NSamples)
		}
	}

	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		for ch := 0; ch < channels; ch++ {
			for _, v := range frame.Subframes[ch].Samples[:frame.BlockSize] {
				st.channels[ch] = append(st.channels[ch], audio.SampleToFloat(int(v), bitDepth))
			}
		}
	}
	return st, nil
}

func decodeMP3(r io.ReadSeeker) (*stem, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}

	// go-mp3 always produces 16-bit little-endian stereo
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, err
	}

	samples := len(pcm) / 2
	interleaved := make([]float32, samples)
	for i := 0; i < samples; i++ {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		interleaved[i] = audio.SampleToFloat(int(v), 16)
	}

	return &stem{
		sampleRate: dec.SampleRate(),
		channels:   audio.Deinterleave(interleaved, mp3Channels),
	}, nil
}

func decodeVorbis(r io.ReadSeeker) (*stem, error) {
	interleaved, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return &stem{
		sampleRate: format.SampleRate,
		channels:   audio.Deinterleave(interleaved, format.Channels),
	}, nil
}

// toneStem generates a sine at the scene rate, duplicated across its channels
func toneStem(spec ToneSpec, sampleRate int) *stem {
	level := spec.Level
	if level == 0 {
		level = defaultToneLevel
	}
	channels := spec.Channels
	if channels <= 0 {
		channels = 1
	}

	frames := int(spec.Seconds * float64(sampleRate))
	if frames < 0 {
		frames = 0
	}
	wave := make([]float32, frames)
	for i := range wave {
		t := float64(i) / float64(sampleRate)
		wave[i] = float32(math.Sin(2*math.Pi*spec.Frequency*t) * level)
	}

	st := &stem{
		name:       fmt.Sprintf("tone:%gHz", spec.Frequency),
		sampleRate: sampleRate,
		channels:   make([][]float32, channels),
	}
	for ch := range st.channels {
		st.channels[ch] = wave
	}
	return st
}
