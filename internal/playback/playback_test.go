package playback

import (
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/RenatoCabral2022/facestream/internal/wire"
)

func testBuffer() *Buffer {
	return &Buffer{
		Header: wire.AnimationHeader{ChannelNames: []string{"a"}},
		Frames: []Frame{
			{TimeCode: 1, Weights: []float32{10}},
			{TimeCode: 2, Weights: []float32{20}},
			{TimeCode: 3, Weights: []float32{30}, Emotions: map[string]float32{"joy": 1}},
		},
	}
}

func TestWeightsAtStepHold(t *testing.T) {
	b := testBuffer()
	tests := []struct {
		t    float64
		want float32
	}{
		{-5, 10},
		{0.999, 10},
		{1, 10},
		{1.5, 10},
		{1.999, 10},
		{2, 20},
		{2.5, 20},
		{3, 30},
		{100, 30},
	}
	for _, tt := range tests {
		if got := b.WeightsAt(tt.t); got[0] != tt.want {
			t.Errorf("WeightsAt(%v): expected %v, got %v", tt.t, tt.want, got[0])
		}
	}
	if got := (Sampler{Window: FullWindow}).SampleEmotions(b, 4); got["joy"] != 1 {
		t.Errorf("expected emotions of the last frame, got %v", got)
	}
}

func TestWeightsAtEmpty(t *testing.T) {
	b := &Buffer{}
	if b.WeightsAt(1) != nil || b.Index(1) != -1 {
		t.Error("expected nil weights and index -1 for an empty buffer")
	}
	if s := (Sampler{Window: FullWindow}).Sample(b, 1); s != nil {
		t.Errorf("expected nil sample, got %v", s)
	}
}

func TestWindowApply(t *testing.T) {
	tests := []struct {
		name   string
		w      Window
		t      float64
		length float64
		want   float64
	}{
		{"full", FullWindow, 1.5, 4, 1.5},
		{"before start", FullWindow, -1, 4, 0},
		{"after end", FullWindow, 9, 4, 4},
		{"offset delays", Window{Offset: 1, End: -1}, 1.5, 4, 0.5},
		{"start trims head", Window{Start: 1, End: -1}, 0, 4, 1},
		{"end trims tail", Window{Start: 1, End: 2}, 5, 4, 2},
		{"start clamped to length", Window{Start: 10, End: -1}, 0, 4, 4},
		{"end before start", Window{Start: 2, End: 1}, 0, 4, 2},
		{"end past length", Window{End: 10}, 8, 4, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.w.Apply(tt.t, tt.length); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSamplerWindowDoesNotTouchBuffer(t *testing.T) {
	b := testBuffer()
	before := slices.Clone(b.Frames)
	s := Sampler{Window: Window{Offset: 0.5, Start: 1, End: 2.5}}
	if got := s.Sample(b, 1.6); got[0] != 20 {
		t.Errorf("expected 20, got %v", got[0])
	}
	if got := s.Sample(b, 100); got[0] != 20 {
		t.Errorf("expected window end to hold frame at 2, got %v", got[0])
	}
	if diff := cmp.Diff(before, b.Frames); diff != "" {
		t.Errorf("buffer changed (-want +got):\n%s", diff)
	}
}

func TestCycle(t *testing.T) {
	b := testBuffer()
	b.AudioDuration = 10
	s := Sampler{Window: FullWindow, PostInfinity: Cycle}
	// Frames 1s apart starting at 1: period 3s.
	tests := []struct {
		t    float64
		want float32
	}{
		{3.5, 30},
		{4, 10},
		{5.2, 20},
		{6.1, 30},
		{7, 10},
	}
	for _, tt := range tests {
		if got := s.Sample(b, tt.t); got[0] != tt.want {
			t.Errorf("Sample(%v): expected %v, got %v", tt.t, tt.want, got[0])
		}
	}
	hold := Sampler{Window: FullWindow}
	if got := hold.Sample(b, 7); got[0] != 30 {
		t.Errorf("hold: expected 30, got %v", got[0])
	}
}

func TestFrameIndex(t *testing.T) {
	tests := []struct {
		t, fps float64
		want   int
	}{
		{0, 30, 0},
		{-1, 30, 0},
		{1, 30, 30},
		{0.01, 30, 1},
		{1.0 / 30, 30, 1},
	}
	for _, tt := range tests {
		if got := FrameIndex(tt.t, tt.fps); got != tt.want {
			t.Errorf("FrameIndex(%v, %v): expected %d, got %d", tt.t, tt.fps, tt.want, got)
		}
	}
}

func TestChannelMap(t *testing.T) {
	m := NewChannelMap([]string{"JawOpen", "EyeBlinkLeft", "TongueOut"})
	mp, warnings := m.MapTo([]string{"eyeblinkleft", "jawopen", "MouthSmile"})

	wantNames := []string{"eyeblinkleft", "jawopen", "MouthSmile", "TongueOut"}
	if diff := cmp.Diff(wantNames, mp.Names); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 0, -1, 2}, mp.Source); diff != "" {
		t.Errorf("sources (-want +got):\n%s", diff)
	}
	if len(warnings) != 2 {
		t.Errorf("expected 2 warnings, got %v", warnings)
	}
	got := mp.Apply([]float32{0.1, 0.2, 0.3})
	if diff := cmp.Diff([]float32{0.2, 0.1, 0, 0.3}, got); diff != "" {
		t.Errorf("apply (-want +got):\n%s", diff)
	}
}

func TestChannelMapNoTargets(t *testing.T) {
	m := NewChannelMap([]string{"a", "b"})
	mp, warnings := m.MapTo(nil)
	if len(warnings) != 0 {
		t.Errorf("expected no warnings for positional output, got %v", warnings)
	}
	if diff := cmp.Diff([]string{"a", "b"}, mp.Names); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}
}

func TestNewBuffer(t *testing.T) {
	h := &wire.AnimationHeader{ChannelNames: []string{"a", "b"}}
	frames := []*wire.AnimationFrame{{TimeCode: 0, Weights: []float32{1, 2}}, {TimeCode: 0.5, Weights: []float32{3, 4}}}
	b := NewBuffer(h, frames, 1)
	if b.Len() != 2 || b.Duration() != 0.5 || b.Length() != 1 {
		t.Errorf("unexpected buffer shape: len=%d duration=%v length=%v", b.Len(), b.Duration(), b.Length())
	}
	if diff := cmp.Diff([]string{"a", "b"}, b.Channels()); diff != "" {
		t.Errorf("channels (-want +got):\n%s", diff)
	}
}
