package ringbuffer

import (
	"bytes"
	"testing"

	"github.com/RenatoCabral2022/facestream/internal/audio"
)

var mono16k = audio.PCM16Header(16000, 1)

const bytesPerSecond = 32000

func TestNewCapacity(t *testing.T) {
	rb := New(mono16k, 5)
	if rb.capacity != 5*bytesPerSecond {
		t.Errorf("expected capacity %d, got %d", 5*bytesPerSecond, rb.capacity)
	}
	// Rounded down to whole stereo frames.
	rb = New(audio.PCM16Header(10, 2), 0.35)
	if rb.capacity != 12 {
		t.Errorf("expected capacity 12, got %d", rb.capacity)
	}
}

func TestSnapshotEmpty(t *testing.T) {
	rb := New(mono16k, 5)
	snap := rb.Snapshot(1)
	if snap.Samples != nil {
		t.Errorf("expected no samples from empty buffer, got %d bytes", len(snap.Samples))
	}
	if snap.Header != mono16k {
		t.Errorf("expected header %+v, got %+v", mono16k, snap.Header)
	}
}

func TestWriteAndSnapshotExact(t *testing.T) {
	rb := New(mono16k, 1)
	data := make([]byte, bytesPerSecond)
	for i := range data {
		data[i] = byte(i % 256)
	}
	rb.Write(data)

	snap := rb.Snapshot(1)
	if !bytes.Equal(snap.Samples, data) {
		t.Error("snapshot data does not match written data")
	}
	if snap.Duration() != 1 {
		t.Errorf("expected 1s snapshot, got %v", snap.Duration())
	}
}

func TestSnapshotPartialFill(t *testing.T) {
	rb := New(mono16k, 5)
	rb.Write(make([]byte, bytesPerSecond))

	if got := len(rb.Snapshot(3).Samples); got != bytesPerSecond {
		t.Errorf("expected %d bytes (1 second), got %d", bytesPerSecond, got)
	}
	if got := len(rb.Snapshot(0).Samples); got != bytesPerSecond {
		t.Errorf("expected everything for a zero duration, got %d bytes", got)
	}
}

func TestWrapAround(t *testing.T) {
	rb := New(mono16k, 1)

	// 1.5 seconds written; the first half second is overwritten.
	rb.Write(bytes.Repeat([]byte{0xAA}, bytesPerSecond/2))
	rb.Write(bytes.Repeat([]byte{0xBB}, bytesPerSecond))

	snap := rb.Snapshot(1)
	if len(snap.Samples) != bytesPerSecond {
		t.Fatalf("expected %d bytes, got %d", bytesPerSecond, len(snap.Samples))
	}
	for i, b := range snap.Samples {
		if b != 0xBB {
			t.Fatalf("byte %d: expected 0xBB, got 0x%02X", i, b)
		}
	}

	// A single write larger than the buffer keeps its tail.
	big := make([]byte, 3*bytesPerSecond)
	for i := range big {
		big[i] = byte(i / bytesPerSecond)
	}
	rb.Write(big)
	for i, b := range rb.Snapshot(1).Samples {
		if b != 2 {
			t.Fatalf("byte %d: expected 2, got %d", i, b)
		}
	}
}

func TestPartialSampleFrame(t *testing.T) {
	rb := New(mono16k, 1)
	rb.Write([]byte{1, 2, 3})
	snap := rb.Snapshot(0)
	if !bytes.Equal(snap.Samples, []byte{1, 2}) {
		t.Errorf("expected [1 2], got %v", snap.Samples)
	}
	rb.Write([]byte{4})
	snap = rb.Snapshot(0)
	if !bytes.Equal(snap.Samples, []byte{1, 2, 3, 4}) {
		t.Errorf("expected [1 2 3 4], got %v", snap.Samples)
	}
}

func TestAvailableAndReset(t *testing.T) {
	rb := New(mono16k, 5)
	if rb.Available() != 0 {
		t.Errorf("expected 0 available, got %f", rb.Available())
	}

	rb.Write(make([]byte, bytesPerSecond*2))
	if rb.Available() != 2.0 {
		t.Errorf("expected 2.0 available, got %f", rb.Available())
	}

	rb.Write(make([]byte, bytesPerSecond*10))
	if rb.Available() != 5.0 {
		t.Errorf("expected 5.0 available (capped), got %f", rb.Available())
	}

	rb.Reset()
	if rb.Available() != 0 {
		t.Errorf("expected 0 available after Reset, got %f", rb.Available())
	}
}
