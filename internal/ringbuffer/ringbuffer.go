// Package ringbuffer keeps the most recent audio written to a player.
package ringbuffer

import (
	"sync"

	"github.com/RenatoCabral2022/facestream/internal/audio"
	"github.com/RenatoCabral2022/facestream/internal/wire"
)

// RingBuffer holds a fixed duration of PCM audio, dropping the oldest bytes
// once full. It is safe for concurrent use.
type RingBuffer struct {
	mu        sync.Mutex
	header    wire.AudioHeader
	buf       []byte
	writePos  int
	capacity  int
	written   int
	frameSize int
}

// New creates a ring buffer holding seconds of audio described by h. The
// capacity is rounded down to whole sample frames.
func New(h wire.AudioHeader, seconds float64) *RingBuffer {
	frameSize := max(h.FrameSize(), 1)
	capacity := int(seconds*float64(h.BytesPerSecond())) / frameSize * frameSize
	capacity = max(capacity, frameSize)
	return &RingBuffer{
		header:    h,
		buf:       make([]byte, capacity),
		capacity:  capacity,
		frameSize: frameSize,
	}
}

// Header returns the audio format of the buffer.
func (rb *RingBuffer) Header() wire.AudioHeader { return rb.header }

// Write appends PCM data, overwriting the oldest data when full.
func (rb *RingBuffer) Write(data []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(data) > rb.capacity {
		rb.written += len(data) - rb.capacity
		rb.writePos = (rb.writePos + len(data) - rb.capacity) % rb.capacity
		data = data[len(data)-rb.capacity:]
	}
	for len(data) > 0 {
		n := copy(rb.buf[rb.writePos:], data)
		data = data[n:]
		rb.writePos = (rb.writePos + n) % rb.capacity
		rb.written += n
	}
}

// partial is the length of a trailing incomplete sample frame.
func (rb *RingBuffer) partial() int {
	return rb.written % rb.frameSize
}

func (rb *RingBuffer) available() int {
	return (min(rb.written, rb.capacity) - rb.partial()) / rb.frameSize * rb.frameSize
}

// Snapshot returns a copy of the last seconds of audio, or everything held
// when seconds is not positive. The copy ends at the last whole sample frame.
func (rb *RingBuffer) Snapshot(seconds float64) audio.Buffer {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	available := rb.available()
	requested := available
	if seconds > 0 {
		requested = min(int(seconds*float64(rb.header.BytesPerSecond()))/rb.frameSize*rb.frameSize, available)
	}
	out := audio.Buffer{Header: rb.header}
	if requested == 0 {
		return out
	}

	end := (rb.writePos - rb.partial() + rb.capacity) % rb.capacity
	start := (end - requested + rb.capacity) % rb.capacity
	out.Samples = make([]byte, requested)
	if start+requested <= rb.capacity {
		copy(out.Samples, rb.buf[start:start+requested])
	} else {
		first := rb.capacity - start
		copy(out.Samples[:first], rb.buf[start:])
		copy(out.Samples[first:], rb.buf[:requested-first])
	}
	return out
}

// Available returns the number of seconds of audio currently stored.
func (rb *RingBuffer) Available() float64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return float64(rb.available()) / float64(rb.header.BytesPerSecond())
}

// Reset drops all buffered audio.
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.writePos = 0
	rb.written = 0
}
