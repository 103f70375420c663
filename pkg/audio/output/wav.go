// ABOUTME: WAV file output for offline bounces
// ABOUTME: Pulls the render callback block by block and encodes with go-audio
package output

import (
	"fmt"
	"log"
	"os"

	"github.com/Resonate-Protocol/admsync/pkg/audio"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavFormatPCM = 1

// WAV renders into a PCM wave file. Nothing is pulled until Pull is called.
type WAV struct {
	frameCounter

	path       string
	bitDepth   int
	blockSize  int
	sampleRate int
	channels   int

	file    *os.File
	encoder *wav.Encoder
	render  RenderFunc
	scratch []float32
	intBuf  *goaudio.IntBuffer
}

// NewWAV creates a bounce output writing bitDepth PCM to path in blocks of blockSize frames
func NewWAV(path string, bitDepth, blockSize int) *WAV {
	if bitDepth != 24 {
		bitDepth = 16
	}
	if blockSize <= 0 {
		blockSize = DefaultBufferFrames
	}
	return &WAV{path: path, bitDepth: bitDepth, blockSize: blockSize}
}

// Open creates the file
func (w *WAV) Open(sampleRate, channels int, render RenderFunc) error {
	if w.file != nil {
		return fmt.Errorf("output already open")
	}
	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", w.path, err)
	}

	w.file = f
	w.sampleRate = sampleRate
	w.channels = channels
	w.render = render
	w.encoder = wav.NewEncoder(f, sampleRate, w.bitDepth, channels, wavFormatPCM)
	w.scratch = make([]float32, w.blockSize*channels)
	w.intBuf = &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           make([]int, w.blockSize*channels),
		SourceBitDepth: w.bitDepth,
	}

	log.Printf("Bouncing to %s: %dHz, %d channels, %d-bit", w.path, sampleRate, channels, w.bitDepth)
	return nil
}

// Pull renders the given number of frames into the file
func (w *WAV) Pull(frames int) error {
	if w.encoder == nil {
		return fmt.Errorf("output not initialized")
	}

	for frames > 0 {
		n := min(frames, w.blockSize)
		buf := w.scratch[:n*w.channels]
		clear(buf)
		w.render(buf)

		data := w.intBuf.Data[:len(buf)]
		for i, s := range buf {
			data[i] = audio.FloatToInt(s, w.bitDepth)
		}
		w.intBuf.Data = data
		if err := w.encoder.Write(w.intBuf); err != nil {
			return fmt.Errorf("failed to write %s: %w", w.path, err)
		}
		w.intBuf.Data = w.intBuf.Data[:cap(w.intBuf.Data)]

		w.add(n)
		frames -= n
	}
	return nil
}

// Close finalizes the header and closes the file
func (w *WAV) Close() error {
	if w.file == nil {
		return nil
	}
	encErr := w.encoder.Close()
	fileErr := w.file.Close()
	w.file = nil
	w.encoder = nil
	if encErr != nil {
		return fmt.Errorf("failed to finalize %s: %w", w.path, encErr)
	}
	if fileErr != nil {
		return fmt.Errorf("failed to close %s: %w", w.path, fileErr)
	}
	log.Printf("Bounce complete: %d frames written to %s", w.Frames(), w.path)
	return nil
}

var _ Output = (*WAV)(nil)
