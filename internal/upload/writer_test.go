package upload

import (
	"bytes"
	"errors"
	"testing"

	"github.com/RenatoCabral2022/facestream/internal/wire"
)

var mono16k = wire.AudioHeader{Format: wire.AudioFormatPCM, ChannelCount: 1, SampleRate: 16000, BitsPerSample: 16}

func collect(w *Writer) []wire.Message {
	var out []wire.Message
	for m := range w.Messages() {
		out = append(out, m)
	}
	return out
}

func TestDefaultChunkSize(t *testing.T) {
	if got := DefaultChunkSize(mono16k, 0, 0); got != 32000 {
		t.Errorf("expected 32000 bytes (1s at 16kHz), got %d", got)
	}
	stereo := wire.AudioHeader{Format: wire.AudioFormatPCM, ChannelCount: 2, SampleRate: 44100, BitsPerSample: 16}
	got := DefaultChunkSize(stereo, 1, 30)
	if got%stereo.FrameSize() != 0 {
		t.Errorf("chunk size %d is not a whole sample frame", got)
	}
	if got != 5880 {
		t.Errorf("expected 5880, got %d", got)
	}
	if got := DefaultChunkSize(mono16k, 1, 100000); got != 2 {
		t.Errorf("expected at least one sample frame, got %d", got)
	}
}

func TestChunksReassemble(t *testing.T) {
	sizes := []int{0, 1, 2, 999, 1000, 1001, 32000, 64002}
	chunkSizes := []int{1, 2, 7, 1000, 32000, 100000}

	for _, n := range sizes {
		samples := make([]byte, n)
		for i := range samples {
			samples[i] = byte(i * 7)
		}
		for _, c := range chunkSizes {
			w := &Writer{Header: wire.AudioStreamHeader{Audio: mono16k}, Samples: samples, ChunkSize: c}
			msgs := collect(w)

			if _, ok := msgs[0].(*wire.AudioStreamHeader); !ok {
				t.Fatalf("n=%d c=%d: first message is %T", n, c, msgs[0])
			}
			if _, ok := msgs[len(msgs)-1].(*wire.EndOfAudio); !ok {
				t.Fatalf("n=%d c=%d: last message is %T", n, c, msgs[len(msgs)-1])
			}

			var joined []byte
			chunks := 0
			for _, m := range msgs[1 : len(msgs)-1] {
				chunk, ok := m.(*wire.AudioChunk)
				if !ok {
					t.Fatalf("n=%d c=%d: unexpected %T between header and end", n, c, m)
				}
				if len(chunk.Samples) == 0 || len(chunk.Samples) > c {
					t.Errorf("n=%d c=%d: chunk of %d bytes", n, c, len(chunk.Samples))
				}
				joined = append(joined, chunk.Samples...)
				chunks++
			}
			if !bytes.Equal(joined, samples) {
				t.Errorf("n=%d c=%d: reassembled audio differs", n, c)
			}
			if want := (n + c - 1) / c; chunks != want || w.ChunkCount() != want {
				t.Errorf("n=%d c=%d: expected %d chunks, got %d (ChunkCount %d)", n, c, want, chunks, w.ChunkCount())
			}
		}
	}
}

func TestMessagesRestart(t *testing.T) {
	w := &Writer{Header: wire.AudioStreamHeader{Audio: mono16k}, Samples: make([]byte, 100), ChunkSize: 30}

	// Stop the first pass early, then run a full pass.
	for m := range w.Messages() {
		if _, ok := m.(*wire.AudioChunk); ok {
			break
		}
	}
	if got := len(collect(w)); got != 6 {
		t.Errorf("expected 6 messages on a fresh pass, got %d", got)
	}
}

func TestEmotionTimeCodes(t *testing.T) {
	w := &Writer{
		Header:    wire.AudioStreamHeader{Audio: mono16k},
		Samples:   make([]byte, 4*32000),
		ChunkSize: 16000,
		Emotion:   map[string]float32{"joy": 1},
	}
	want := []float64{0, 0.5, 1, 1.5, 2, 2.5, 3, 3.5}
	var got []float64
	for m := range w.Messages() {
		if c, ok := m.(*wire.AudioChunk); ok {
			if c.Emotion == nil {
				t.Fatal("expected emotion on every chunk")
			}
			got = append(got, c.Emotion.TimeCode)
		}
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d: expected time code %v, got %v", i, want[i], got[i])
		}
	}
}

func TestEmptyBuffer(t *testing.T) {
	w := &Writer{Header: wire.AudioStreamHeader{Audio: mono16k}}
	msgs := collect(w)
	if len(msgs) != 2 {
		t.Fatalf("expected header and end only, got %d messages", len(msgs))
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		w    Writer
		want error
	}{
		{"ok", Writer{Header: wire.AudioStreamHeader{Audio: mono16k}, Samples: make([]byte, 10)}, nil},
		{"zero rate", Writer{Header: wire.AudioStreamHeader{Audio: wire.AudioHeader{Format: wire.AudioFormatPCM, ChannelCount: 1, BitsPerSample: 16}}}, ErrInvalidHeader},
		{"8 bit", Writer{Header: wire.AudioStreamHeader{Audio: wire.AudioHeader{Format: wire.AudioFormatPCM, ChannelCount: 1, SampleRate: 16000, BitsPerSample: 8}}}, ErrInvalidHeader},
		{"no channels", Writer{Header: wire.AudioStreamHeader{Audio: wire.AudioHeader{Format: wire.AudioFormatPCM, SampleRate: 16000, BitsPerSample: 16}}}, ErrInvalidHeader},
		{"no format", Writer{Header: wire.AudioStreamHeader{Audio: wire.AudioHeader{ChannelCount: 1, SampleRate: 16000, BitsPerSample: 16}}}, ErrInvalidHeader},
		{"negative chunk", Writer{Header: wire.AudioStreamHeader{Audio: mono16k}, ChunkSize: -1}, ErrInvalidChunkSize},
		{"odd bytes", Writer{Header: wire.AudioStreamHeader{Audio: mono16k}, Samples: make([]byte, 3)}, ErrPartialSample},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.w.Validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
