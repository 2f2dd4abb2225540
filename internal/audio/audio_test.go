package audio

import (
	"errors"
	"testing"
)

func TestInt16RoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768, 1234}
	got, err := BytesToInt16(Int16ToBytes(in))
	if err != nil {
		t.Fatalf("BytesToInt16: %v", err)
	}
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("sample %d: expected %d, got %d", i, in[i], got[i])
		}
	}
	if _, err := BytesToInt16([]byte{1}); !errors.Is(err, ErrOddLength) {
		t.Errorf("expected ErrOddLength, got %v", err)
	}
}

func TestDownsample(t *testing.T) {
	in := []int16{3, 6, 9, 30, 60, 90}
	out, err := Downsample(in, 48000, 16000)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[0] != 6 || out[1] != 60 {
		t.Errorf("expected [6 60], got %v", out)
	}

	tone := GenerateSineWave(1, ToneFrequency, 44100)
	out, err = Downsample(tone, 44100, 16000)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 16000 {
		t.Errorf("expected 16000 samples, got %d", len(out))
	}

	if _, err := Downsample(in, 8000, 16000); !errors.Is(err, ErrUpsample) {
		t.Errorf("expected ErrUpsample, got %v", err)
	}
}

func TestFloatToInt16(t *testing.T) {
	out := FloatToInt16([]float32{0, 1, -1, 2, 0.5})
	want := []int16{0, 32767, -32768, 32767, 16384}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("sample %d: expected %d, got %d", i, want[i], out[i])
		}
	}
}

func TestBuffer(t *testing.T) {
	b := Tone(2, DefaultSampleRate)
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if b.Duration() != 2 {
		t.Errorf("expected 2s, got %v", b.Duration())
	}
	padded := b.PadFront(DefaultPadding)
	if len(padded.Samples) != len(b.Samples)+DefaultPadding*2 {
		t.Errorf("unexpected padded length %d", len(padded.Samples))
	}
	for _, v := range padded.Samples[:DefaultPadding*2] {
		if v != 0 {
			t.Fatal("padding is not silent")
		}
	}

	odd := NewMono16(DefaultSampleRate, []byte{1, 2, 3})
	if err := odd.Validate(); err == nil {
		t.Error("expected error for partial sample frame")
	}
}
