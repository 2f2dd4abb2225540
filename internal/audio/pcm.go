// Package audio holds PCM helpers and the audio buffer submitted with an
// animation request.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/RenatoCabral2022/facestream/internal/wire"
)

const (
	// DefaultSampleRate is the rate the service is tuned for.
	DefaultSampleRate = 16000
	// DefaultPadding is the number of silent samples the service expects in
	// front of the audio before the first frame is produced.
	DefaultPadding = 4160
)

var ErrOddLength = errors.New("s16le buffer has an odd number of bytes")

// Buffer is PCM audio with its header.
type Buffer struct {
	Header  wire.AudioHeader
	Samples []byte
}

// PCM16Header describes signed 16-bit little-endian PCM.
func PCM16Header(sampleRate, channels int) wire.AudioHeader {
	return wire.AudioHeader{
		Format:        wire.AudioFormatPCM,
		ChannelCount:  uint32(channels),
		SampleRate:    uint32(sampleRate),
		BitsPerSample: 16,
	}
}

// NewMono16 wraps s16le mono bytes at sampleRate.
func NewMono16(sampleRate int, samples []byte) Buffer {
	return Buffer{Header: PCM16Header(sampleRate, 1), Samples: samples}
}

// Duration returns the length of the buffer in seconds.
func (b Buffer) Duration() float64 {
	rate := b.Header.BytesPerSecond()
	if rate == 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(rate)
}

// Validate checks that the buffer is 16-bit PCM and holds whole sample frames.
func (b Buffer) Validate() error {
	h := b.Header
	if h.Format != wire.AudioFormatPCM || h.BitsPerSample != 16 || h.ChannelCount == 0 || h.SampleRate == 0 {
		return fmt.Errorf("unsupported audio: format %d, %d bits, %d channels, %d Hz",
			h.Format, h.BitsPerSample, h.ChannelCount, h.SampleRate)
	}
	if len(b.Samples)%h.FrameSize() != 0 {
		return fmt.Errorf("%d bytes is not a whole number of %d-byte sample frames", len(b.Samples), h.FrameSize())
	}
	return nil
}

// PadFront returns a copy of b with n silent sample frames prepended.
func (b Buffer) PadFront(n int) Buffer {
	pad := n * b.Header.FrameSize()
	out := make([]byte, pad+len(b.Samples))
	copy(out[pad:], b.Samples)
	return Buffer{Header: b.Header, Samples: out}
}

// Int16ToBytes converts int16 samples to s16le bytes.
func Int16ToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// BytesToInt16 converts s16le bytes to int16 samples.
func BytesToInt16(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, ErrOddLength
	}
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples, nil
}

// FloatToInt16 converts samples in [-1, 1] to int16, saturating out of range
// values.
func FloatToInt16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		v := s * 32768
		switch {
		case v > 32767:
			v = 32767
		case v < -32768:
			v = -32768
		}
		out[i] = int16(v)
	}
	return out
}
