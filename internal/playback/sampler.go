package playback

import (
	"fmt"
	"strings"
)

// Infinity selects what happens past the last frame.
type Infinity int

const (
	// Hold keeps the last frame.
	Hold Infinity = iota
	// Cycle loops the buffer from its first frame.
	Cycle
)

// ParseInfinity parses "hold" or "cycle".
func ParseInfinity(s string) (Infinity, error) {
	switch strings.ToLower(s) {
	case "", "hold", "constant":
		return Hold, nil
	case "cycle":
		return Cycle, nil
	}
	return Hold, fmt.Errorf("unknown post infinity %q", s)
}

func (p Infinity) String() string {
	if p == Cycle {
		return "cycle"
	}
	return "hold"
}

// Window maps the local timeline onto the audio. Offset delays the audio on
// the timeline, Start trims its head, End trims its tail. A negative End means
// the full audio length.
type Window struct {
	Offset float64
	Start  float64
	End    float64
}

// FullWindow plays the whole audio from time zero.
var FullWindow = Window{End: -1}

// Apply returns the audio position for timeline time t, given the audio
// length in seconds.
func (w Window) Apply(t, length float64) float64 {
	start := clamp(w.Start, 0, length)
	end := w.End
	if end < 0 {
		end = length
	} else {
		end = clamp(end, start, length)
	}
	return clamp(t-w.Offset+start, start, end)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Sampler queries buffers through a window. Changing the window only changes
// the lookup; it never touches the buffer.
type Sampler struct {
	Window       Window
	PostInfinity Infinity
}

// Position returns the audio position for timeline time t.
func (s Sampler) Position(buf *Buffer, t float64) float64 {
	return s.Window.Apply(t, buf.Length())
}

// Sample returns the weights of buf effective at timeline time t.
func (s Sampler) Sample(buf *Buffer, t float64) []float32 {
	i := buf.index(s.Position(buf, t), s.PostInfinity)
	if i < 0 {
		return nil
	}
	return buf.Frames[i].Weights
}

// SampleEmotions returns the emotion aggregate of buf effective at t.
func (s Sampler) SampleEmotions(buf *Buffer, t float64) map[string]float32 {
	i := buf.index(s.Position(buf, t), s.PostInfinity)
	if i < 0 {
		return nil
	}
	return buf.Frames[i].Emotions
}
