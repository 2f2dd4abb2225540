// Package playback samples a received animation buffer against a local
// timeline.
package playback

import (
	"math"
	"sort"

	"github.com/RenatoCabral2022/facestream/internal/wire"
)

// Frame is one received animation frame.
type Frame struct {
	TimeCode float64            `msgpack:"t"`
	Weights  []float32          `msgpack:"w"`
	Emotions map[string]float32 `msgpack:"e,omitempty"`
}

// Buffer is a completed, time-ordered animation. It is immutable once built
// and safe for concurrent reads.
type Buffer struct {
	Header        wire.AnimationHeader `msgpack:"header"`
	Frames        []Frame              `msgpack:"frames"`
	AudioDuration float64              `msgpack:"audio_duration"`
}

// NewBuffer builds a buffer from a completed download. frames must be sorted
// by time code.
func NewBuffer(h *wire.AnimationHeader, frames []*wire.AnimationFrame, audioDuration float64) *Buffer {
	b := &Buffer{AudioDuration: audioDuration, Frames: make([]Frame, len(frames))}
	if h != nil {
		b.Header = *h
	}
	for i, f := range frames {
		b.Frames[i] = Frame{TimeCode: f.TimeCode, Weights: f.Weights, Emotions: f.Emotions}
	}
	return b
}

// Len returns the number of frames.
func (b *Buffer) Len() int { return len(b.Frames) }

// Channels returns the ordered channel names every frame is indexed by.
func (b *Buffer) Channels() []string { return b.Header.ChannelNames }

// Duration returns the time code of the last frame, or zero when empty.
func (b *Buffer) Duration() float64 {
	if len(b.Frames) == 0 {
		return 0
	}
	return b.Frames[len(b.Frames)-1].TimeCode
}

// Length returns the audio duration when known, otherwise Duration.
func (b *Buffer) Length() float64 {
	if b.AudioDuration > 0 {
		return b.AudioDuration
	}
	return b.Duration()
}

// Index returns the index of the frame effective at t: the last frame whose
// time code is at or before t, clamped to the first and last frames. It
// returns -1 for an empty buffer.
func (b *Buffer) Index(t float64) int {
	return b.index(t, Hold)
}

func (b *Buffer) index(t float64, post Infinity) int {
	n := len(b.Frames)
	if n == 0 {
		return -1
	}
	if math.IsNaN(t) {
		return 0
	}
	first, last := b.Frames[0].TimeCode, b.Frames[n-1].TimeCode
	if t > last && post == Cycle && n > 1 {
		period := (last - first) * float64(n) / float64(n-1)
		if period > 0 {
			t = first + math.Mod(t-first, period)
		}
	}
	i := sort.Search(n, func(i int) bool { return b.Frames[i].TimeCode > t })
	if i == 0 {
		return 0
	}
	return i - 1
}

// WeightsAt returns the weights effective at t, or nil for an empty buffer.
// The returned slice is shared and must not be modified.
func (b *Buffer) WeightsAt(t float64) []float32 {
	i := b.Index(t)
	if i < 0 {
		return nil
	}
	return b.Frames[i].Weights
}

// FrameIndex converts t in seconds to a frame number at fps, rounding up.
func FrameIndex(t, fps float64) int {
	if t <= 0 || fps <= 0 {
		return 0
	}
	return int(math.Ceil(t*fps - 1e-9))
}
