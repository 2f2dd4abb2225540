// Package upload turns a PCM buffer and request parameters into the ordered
// message sequence sent to the animation service.
package upload

import (
	"errors"
	"fmt"
	"iter"
	"maps"

	"github.com/RenatoCabral2022/facestream/internal/wire"
)

// DefaultChunkFrames is the number of output animation frames worth of audio
// carried by one chunk when no explicit chunk size is set. The service does
// not negotiate chunking; the sender picks it.
const DefaultChunkFrames = 30

// DefaultFrameRate is the output frame rate the service is expected to produce.
const DefaultFrameRate = 30

var (
	ErrInvalidHeader    = errors.New("invalid audio header")
	ErrInvalidChunkSize = errors.New("chunk size must be positive")
	ErrPartialSample    = errors.New("sample buffer is not a whole number of sample frames")
)

// DefaultChunkSize returns the chunk size in bytes for frames output frames at
// fps, rounded down to a whole sample frame. It never returns less than one
// sample frame.
func DefaultChunkSize(h wire.AudioHeader, frames, fps int) int {
	if frames <= 0 {
		frames = DefaultChunkFrames
	}
	if fps <= 0 {
		fps = DefaultFrameRate
	}
	fs := h.FrameSize()
	if fs <= 0 {
		return 0
	}
	size := h.BytesPerSecond() * frames / fps
	size -= size % fs
	if size < fs {
		size = fs
	}
	return size
}

// Writer produces the upload sequence for one request. It performs no I/O.
type Writer struct {
	Header    wire.AudioStreamHeader
	Samples   []byte
	ChunkSize int

	// Emotion, when set, is attached to every chunk as the preferred emotion
	// vector with the chunk's start time.
	Emotion map[string]float32
}

// Validate checks the audio header and chunk size.
func (w *Writer) Validate() error {
	a := w.Header.Audio
	if a.Format != wire.AudioFormatPCM {
		return fmt.Errorf("%w: unsupported format %d", ErrInvalidHeader, a.Format)
	}
	if a.SampleRate == 0 {
		return fmt.Errorf("%w: sample rate is zero", ErrInvalidHeader)
	}
	if a.BitsPerSample != 16 {
		return fmt.Errorf("%w: %d bits per sample, only 16 is supported", ErrInvalidHeader, a.BitsPerSample)
	}
	if a.ChannelCount < 1 {
		return fmt.Errorf("%w: no channels", ErrInvalidHeader)
	}
	if w.chunkSize() <= 0 {
		return ErrInvalidChunkSize
	}
	if len(w.Samples)%a.FrameSize() != 0 {
		return fmt.Errorf("%w: %d bytes, frame size %d", ErrPartialSample, len(w.Samples), a.FrameSize())
	}
	return nil
}

// ChunkCount returns the number of audio chunks Messages yields.
func (w *Writer) ChunkCount() int {
	c := w.chunkSize()
	if c <= 0 {
		return 0
	}
	return (len(w.Samples) + c - 1) / c
}

func (w *Writer) chunkSize() int {
	if w.ChunkSize != 0 {
		return w.ChunkSize
	}
	return DefaultChunkSize(w.Header.Audio, DefaultChunkFrames, DefaultFrameRate)
}

// Messages returns the upload sequence: the stream header, the audio chunks in
// order, then EndOfAudio. Chunks are sub-slices of Samples produced on demand.
// Each call starts from the beginning. Callers should Validate first; an
// invalid chunk size yields the header and EndOfAudio only.
func (w *Writer) Messages() iter.Seq[wire.Message] {
	return func(yield func(wire.Message) bool) {
		header := w.Header
		if !yield(&header) {
			return
		}

		size := w.chunkSize()
		rate := w.Header.Audio.BytesPerSecond()
		for off := 0; size > 0 && off < len(w.Samples); off += size {
			end := min(off+size, len(w.Samples))
			chunk := &wire.AudioChunk{Samples: w.Samples[off:end]}
			if w.Emotion != nil {
				var tc float64
				if rate > 0 {
					tc = float64(off) / float64(rate)
				}
				chunk.Emotion = &wire.EmotionKey{TimeCode: tc, Weights: maps.Clone(w.Emotion)}
			}
			if !yield(chunk) {
				return
			}
		}

		yield(&wire.EndOfAudio{})
	}
}
