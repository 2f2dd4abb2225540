package download

import (
	"errors"
	"testing"

	"github.com/RenatoCabral2022/facestream/internal/wire"
)

func header(channels int) *wire.AnimationHeader {
	names := make([]string, channels)
	for i := range names {
		names[i] = "c"
	}
	return &wire.AnimationHeader{ChannelNames: names, JointNames: []string{"head"}}
}

func frame(tc float64, width int) *wire.AnimationFrame {
	return &wire.AnimationFrame{TimeCode: tc, Weights: make([]float32, width)}
}

func feed(t *testing.T, r *Reader, msgs ...wire.Message) error {
	t.Helper()
	var err error
	for _, m := range msgs {
		if err = r.Handle(m); err != nil {
			return err
		}
	}
	return nil
}

func TestHappyPath(t *testing.T) {
	r := NewReader()
	err := feed(t, r,
		header(2),
		frame(0, 2),
		&wire.Status{Code: wire.StatusInfo, Message: "progress"},
		frame(0.033, 2),
		frame(0.033, 2),
		&wire.Event{Type: wire.EventEndOfAudioProcessing},
		frame(0.066, 2),
		&wire.Status{Code: wire.StatusSuccess, Message: "sent all data"},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.Done() {
		t.Error("expected reader to be done after SUCCESS")
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	res := r.Result()
	if len(res.Frames) != 4 {
		t.Errorf("expected 4 frames, got %d", len(res.Frames))
	}
	if !res.Drained {
		t.Error("expected drained")
	}
	if len(res.Warnings) != 1 {
		t.Errorf("expected 1 warning, got %v", res.Warnings)
	}
	if res.Status == nil || res.Status.Code != wire.StatusSuccess {
		t.Errorf("expected SUCCESS status, got %v", res.Status)
	}
}

func TestOutOfOrderRejected(t *testing.T) {
	r := NewReader()
	err := feed(t, r, header(1), frame(0.1, 1), frame(0.2, 1), frame(0.15, 1))
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
	// Sticky.
	if err := r.Handle(frame(0.3, 1)); !errors.Is(err, ErrProtocol) {
		t.Errorf("expected sticky ErrProtocol, got %v", err)
	}
	res := r.Result()
	if res.Frames != nil {
		t.Errorf("expected no frames on failure, got %d", len(res.Frames))
	}
}

func TestBeforeHeader(t *testing.T) {
	tests := []struct {
		name string
		msg  wire.Message
	}{
		{"frame", frame(0, 1)},
		{"event", &wire.Event{Type: wire.EventEndOfAudioProcessing}},
		{"info", &wire.Status{Code: wire.StatusInfo}},
		{"success", &wire.Status{Code: wire.StatusSuccess}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader()
			if err := r.Handle(tt.msg); !errors.Is(err, ErrProtocol) {
				t.Fatalf("expected ErrProtocol, got %v", err)
			}
			if res := r.Result(); len(res.Frames) != 0 {
				t.Errorf("expected no frames, got %d", len(res.Frames))
			}
		})
	}
}

func TestErrorStatusBeforeHeader(t *testing.T) {
	r := NewReader()
	err := r.Handle(&wire.Status{Code: wire.StatusError, Message: "header must be sent first"})
	var se *ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if se.Message != "header must be sent first" {
		t.Errorf("expected verbatim message, got %q", se.Message)
	}
}

func TestShapeViolations(t *testing.T) {
	tests := []struct {
		name string
		msgs []wire.Message
	}{
		{"duplicate header", []wire.Message{header(2), header(2)}},
		{"width mismatch", []wire.Message{header(2), frame(0, 3)}},
		{"empty channel list", []wire.Message{header(0)}},
		{"upload message", []wire.Message{header(1), &wire.AudioChunk{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader()
			if err := feed(t, r, tt.msgs...); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestMalformedRaw(t *testing.T) {
	r := NewReader()
	if err := r.HandleRaw([]byte{0xff, 0x01}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestErrorAfterDrainIsWarning(t *testing.T) {
	r := NewReader()
	err := feed(t, r,
		header(1),
		frame(0, 1),
		&wire.Event{Type: wire.EventEndOfAudioProcessing},
		&wire.Status{Code: wire.StatusError, Message: "audio buffer underrun"},
		frame(0.1, 1),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	res := r.Result()
	if len(res.Frames) != 2 || len(res.Warnings) != 1 {
		t.Errorf("expected 2 frames and 1 warning, got %d and %v", len(res.Frames), res.Warnings)
	}
}

func TestFirstTerminalWins(t *testing.T) {
	r := NewReader()
	err := feed(t, r,
		header(1),
		frame(0, 1),
		&wire.Status{Code: wire.StatusSuccess},
		&wire.Status{Code: wire.StatusError, Message: "late"},
		frame(0.1, 1),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.HandleRaw([]byte{0xff}); err != nil {
		t.Fatalf("trailing garbage should be ignored, got %v", err)
	}
	res := r.Result()
	if res.Trailing != 3 {
		t.Errorf("expected 3 trailing messages, got %d", res.Trailing)
	}
	if len(res.Frames) != 1 {
		t.Errorf("expected 1 frame, got %d", len(res.Frames))
	}
}

func TestCloseBeforeHeader(t *testing.T) {
	r := NewReader()
	if err := r.Close(); !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestCloseAfterHeaderCompletes(t *testing.T) {
	r := NewReader()
	if err := feed(t, r, header(1), frame(0, 1)); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("expected clean close, got %v", err)
	}
}

func TestUseAfterResult(t *testing.T) {
	r := NewReader()
	r.Result()
	if err := r.Handle(header(1)); !errors.Is(err, ErrUsedAfterResult) {
		t.Errorf("expected ErrUsedAfterResult, got %v", err)
	}
}
