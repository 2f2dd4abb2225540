package mockserver_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/RenatoCabral2022/facestream/internal/audio"
	"github.com/RenatoCabral2022/facestream/internal/mockserver"
	"github.com/RenatoCabral2022/facestream/internal/testutil"
	"github.com/RenatoCabral2022/facestream/internal/transport"
	"github.com/RenatoCabral2022/facestream/internal/wire"
)

func header() *wire.AudioStreamHeader {
	return &wire.AudioStreamHeader{Audio: audio.PCM16Header(audio.DefaultSampleRate, 1)}
}

// exchange sends msgs, closes the upload and returns every decoded reply.
func exchange(t *testing.T, conn transport.Conn, msgs ...wire.Message) ([]wire.Message, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := conn.Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, m := range msgs {
		err := stream.Send(m)
		if errors.Is(err, io.EOF) {
			// The service ended the call; Recv returns its status.
			break
		}
		if err != nil {
			t.Fatalf("Send %s: %v", m.Kind(), err)
		}
	}
	if err := stream.CloseSend(); err != nil {
		t.Fatalf("CloseSend: %v", err)
	}
	var out []wire.Message
	for {
		raw, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		m, err := wire.Decode(raw)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		out = append(out, m)
	}
}

func lastStatus(t *testing.T, msgs []wire.Message) *wire.Status {
	t.Helper()
	if len(msgs) == 0 {
		t.Fatal("no messages received")
	}
	st, ok := msgs[len(msgs)-1].(*wire.Status)
	if !ok {
		t.Fatalf("expected final status, got %s", msgs[len(msgs)-1].Kind())
	}
	return st
}

func TestProcessAudioStream(t *testing.T) {
	conn, srv := testutil.StartMock(t, mockserver.Options{})
	samples := audio.Tone(0.5, audio.DefaultSampleRate).Samples

	msgs, err := exchange(t, conn, header(), &wire.AudioChunk{Samples: samples}, &wire.EndOfAudio{})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}

	hdr, ok := msgs[0].(*wire.AnimationHeader)
	if !ok {
		t.Fatalf("expected animation header first, got %s", msgs[0].Kind())
	}
	if len(hdr.ChannelNames) != mockserver.ChannelCount || hdr.ChannelNames[0] != "face0" {
		t.Errorf("unexpected channel names %v", hdr.ChannelNames)
	}

	var frames int
	var sawEvent bool
	for _, m := range msgs[1:] {
		switch v := m.(type) {
		case *wire.AnimationFrame:
			if sawEvent {
				t.Error("frame after end of processing event")
			}
			if len(v.Weights) != mockserver.ChannelCount {
				t.Errorf("expected %d weights, got %d", mockserver.ChannelCount, len(v.Weights))
			}
			if v.Audio == nil || len(v.Audio.Samples) == 0 {
				t.Error("expected echoed audio")
			}
			frames++
		case *wire.Event:
			sawEvent = v.Type == wire.EventEndOfAudioProcessing
		}
	}
	// 8000 samples at 533 per frame.
	if frames != 16 {
		t.Errorf("expected 16 frames, got %d", frames)
	}
	if !sawEvent {
		t.Error("expected end of processing event")
	}
	if st := lastStatus(t, msgs); st.Code != wire.StatusSuccess {
		t.Errorf("expected SUCCESS, got %v", st.Code)
	}
	if srv.Streams() != 1 {
		t.Errorf("expected 1 stream, got %d", srv.Streams())
	}
}

func TestHeaderMustComeFirst(t *testing.T) {
	conn, _ := testutil.StartMock(t, mockserver.Options{})

	msgs, err := exchange(t, conn, &wire.AudioChunk{Samples: []byte{0, 0}})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
	if st := lastStatus(t, msgs); st.Code != wire.StatusError {
		t.Errorf("expected ERROR, got %v", st.Code)
	}
}

func TestWarnings(t *testing.T) {
	conn, _ := testutil.StartMock(t, mockserver.Options{})
	chunk := &wire.AudioChunk{Samples: make([]byte, 3200)}

	msgs, err := exchange(t, conn, header(), chunk, &wire.EndOfAudio{}, chunk)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if !hasWarning(msgs, "received data after end of audio") {
		t.Error("expected warning for data after end of audio")
	}

	msgs, err = exchange(t, conn, header(), chunk)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if !hasWarning(msgs, "upload closed without end of audio") {
		t.Error("expected warning for missing end of audio")
	}
	if st := lastStatus(t, msgs); st.Code != wire.StatusSuccess {
		t.Errorf("expected SUCCESS, got %v", st.Code)
	}
}

func hasWarning(msgs []wire.Message, text string) bool {
	for _, m := range msgs {
		if st, ok := m.(*wire.Status); ok && st.Code == wire.StatusWarning && st.Message == text {
			return true
		}
	}
	return false
}

func TestFailAfterFrames(t *testing.T) {
	conn, _ := testutil.StartMock(t, mockserver.Options{FailAfterFrames: 3})

	msgs, err := exchange(t, conn, header(), &wire.AudioChunk{Samples: make([]byte, 32000)}, &wire.EndOfAudio{})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if st := lastStatus(t, msgs); st.Code != wire.StatusError || st.Message != "simulated failure" {
		t.Errorf("expected simulated failure, got %v %q", st.Code, st.Message)
	}
	// header + 3 frames + status
	if len(msgs) != 5 {
		t.Errorf("expected 5 messages, got %d", len(msgs))
	}
}

func TestHealth(t *testing.T) {
	conn, srv := testutil.StartMock(t, mockserver.Options{})
	if err := conn.Check(context.Background()); err != nil {
		t.Fatalf("Check: %v", err)
	}
	srv.Stop()
	err := conn.Check(context.Background())
	if err == nil {
		t.Fatal("expected health check to fail after Stop")
	}
	if p := transport.DiagnoseHealth(err); p == transport.HealthOK {
		t.Errorf("expected a problem, got %v", p)
	}
}
