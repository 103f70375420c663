// ABOUTME: Scene source serving metadata blocks and stem samples
// ABOUTME: Implements the metadata handler's Source and the renderer's SampleProvider
package source

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Resonate-Protocol/admsync/internal/logging"
	"github.com/Resonate-Protocol/admsync/pkg/adm"
	"github.com/Resonate-Protocol/admsync/pkg/metadata"
)

// DefaultSampleRate is used when neither the scene nor a file stem fixes the rate
const DefaultSampleRate = 48000

// Source is an opened scene
type Source struct {
	sampleRate int
	frames     int
	stems      []string

	// channel space, immutable after open
	channels [][]float32

	mu       sync.Mutex
	waves    [][]ItemSpec
	nextWave int
	queue    []adm.RawBlock
	released int
	closed   bool
}

// Opener adapts Open to the metadata handler
func Opener(path string) (metadata.Source, error) {
	return Open(path)
}

// Open reads a scene file and decodes all of its stems
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scene: %w", err)
	}
	defer f.Close()

	scene, err := DecodeScene(f)
	if err != nil {
		return nil, err
	}
	return New(scene, filepath.Dir(path))
}

// New builds a source from a decoded scene. Relative stem paths resolve against dir.
func New(scene *Scene, dir string) (*Source, error) {
	if len(scene.Stems) == 0 {
		return nil, fmt.Errorf("%w: no stems", ErrInvalidScene)
	}

	s := &Source{sampleRate: scene.SampleRate}

	for _, spec := range scene.Stems {
		rate := s.sampleRate
		if rate == 0 && spec.Tone != nil {
			rate = DefaultSampleRate
		}
		st, err := loadStem(spec, dir, rate)
		if err != nil {
			return nil, err
		}
		if s.sampleRate == 0 {
			s.sampleRate = st.sampleRate
		}
		if st.sampleRate != s.sampleRate {
			if !scene.Resample {
				return nil, fmt.Errorf("%w: %s is %d Hz, scene is %d Hz",
					ErrSampleRateMismatch, st.name, st.sampleRate, s.sampleRate)
			}
			log.Printf("Resampling %s from %d Hz to %d Hz", st.name, st.sampleRate, s.sampleRate)
			st.resample(s.sampleRate)
		}

		s.stems = append(s.stems, st.name)
		s.channels = append(s.channels, st.channels...)
		if n := st.frames(); n > s.frames {
			s.frames = n
		}
		logging.Debugf(logging.Startup, "Loaded stem %s: %d channels, %d frames",
			st.name, len(st.channels), st.frames())
	}

	if err := scene.validate(len(s.channels)); err != nil {
		return nil, err
	}
	s.waves = groupWaves(scene.Items)

	log.Printf("Scene loaded: %d stems, %d channels, %d items, %.1fs at %d Hz",
		len(s.stems), len(s.channels), len(scene.Items),
		float64(s.frames)/float64(s.sampleRate), s.sampleRate)
	return s, nil
}

// groupWaves buckets items by discovery wave, keeping scene order within a wave
func groupWaves(items []ItemSpec) [][]ItemSpec {
	byWave := make(map[int][]ItemSpec)
	var order []int
	for _, it := range items {
		if _, ok := byWave[it.Wave]; !ok {
			order = append(order, it.Wave)
		}
		byWave[it.Wave] = append(byWave[it.Wave], it)
	}
	sort.Ints(order)

	waves := make([][]ItemSpec, 0, len(order))
	for _, w := range order {
		waves = append(waves, byWave[w])
	}
	return waves
}

// DiscoverNewItems releases the next discovery wave and returns its item count
func (s *Source) DiscoverNewItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.nextWave >= len(s.waves) {
		return 0
	}
	wave := s.waves[s.nextWave]
	s.nextWave++

	var blocks []adm.RawBlock
	for _, it := range wave {
		blocks = append(blocks, it.rawBlocks()...)
	}
	// Deliver in time order the way a streaming reader would
	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].RTime < blocks[j].RTime })

	s.queue = append(s.queue, blocks...)
	s.released += len(wave)
	logging.Debugf(logging.Pull, "Discovered %d items (%d blocks), wave %d of %d",
		len(wave), len(blocks), s.nextWave, len(s.waves))
	return len(wave)
}

// NextMetadataBlock pops the next released block
func (s *Source) NextMetadataBlock() (adm.RawBlock, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || len(s.queue) == 0 {
		return adm.RawBlock{}, false
	}
	b := s.queue[0]
	s.queue[0] = adm.RawBlock{}
	s.queue = s.queue[1:]
	return b, true
}

// Pending returns the number of released blocks not yet pulled
func (s *Source) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Released returns how many items have been discovered so far
func (s *Source) Released() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

func (s *Source) SampleRate() int { return s.sampleRate }
func (s *Source) FrameCount() int { return s.frames }

// ChannelCount returns the size of the scene's channel space
func (s *Source) ChannelCount() int { return len(s.channels) }

// Stems returns the stem names in channel order
func (s *Source) Stems() []string {
	return append([]string(nil), s.stems...)
}

// ReadChannel copies samples of channel starting at startFrame into dst.
// Frames outside bounds or outside the stem are written as silence.
func (s *Source) ReadChannel(channel int, startFrame int, bounds adm.ChannelBounds, dst []float32) int {
	if channel < 0 || channel >= len(s.channels) {
		clear(dst)
		return len(dst)
	}
	data := s.channels[channel]

	lo := max(startFrame, bounds.LowerFrame, 0)
	hi := min(startFrame+len(dst), bounds.UpperFrame, len(data))
	if hi <= lo {
		clear(dst)
		return len(dst)
	}

	clear(dst[:lo-startFrame])
	copy(dst[lo-startFrame:hi-startFrame], data[lo:hi])
	clear(dst[hi-startFrame:])
	return len(dst)
}

// Close stops block delivery. Sample reads stay valid.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.queue = nil
	return nil
}
