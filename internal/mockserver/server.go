// Package mockserver is an in-process animation service that replays
// synthetic frames for uploaded audio.
package mockserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/RenatoCabral2022/facestream/internal/metrics"
	"github.com/RenatoCabral2022/facestream/internal/transport"
	"github.com/RenatoCabral2022/facestream/internal/wire"
)

const (
	// ChannelCount is the number of blend-shape channels in every frame.
	ChannelCount = 52
	// DefaultFrameRate is the output frame rate.
	DefaultFrameRate = 30

	headerFirstMessage = "header must be sent first"
)

// JointNames are the joints declared in the animation header.
var JointNames = []string{"head", "neck"}

// ChannelNames returns face0 .. face51.
func ChannelNames() []string {
	names := make([]string, ChannelCount)
	for i := range names {
		names[i] = fmt.Sprintf("face%d", i)
	}
	return names
}

// Options tune the mock's behavior. The zero value is a well-behaved service.
type Options struct {
	FrameRate int
	// FrameDelay is slept before each frame.
	FrameDelay time.Duration
	// FailAfterFrames, when positive, ends the stream with an ERROR status
	// after that many frames.
	FailAfterFrames int
	// OmitHeader skips the animation header.
	OmitHeader bool
	// ShuffleFrames sends each chunk's frames in reverse time order.
	ShuffleFrames bool
	// StallAfterHeader sends the header and then nothing until the call ends.
	StallAfterHeader bool
	// CorruptFrame, when positive, replaces that frame (1-based) with bytes
	// that do not decode.
	CorruptFrame int
}

// Server implements transport.AnimationServer.
type Server struct {
	opts    Options
	logger  *zap.Logger
	grpc    *grpc.Server
	health  *health.Server
	streams atomic.Int64
	active  atomic.Int64
}

// New creates a mock service with its own grpc.Server.
func New(opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = DefaultFrameRate
	}
	s := &Server{
		opts:   opts,
		logger: logger,
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
	}
	transport.RegisterAnimationServer(s.grpc, s)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus(transport.ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

// Serve accepts connections on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("mock animation service listening", zap.String("addr", lis.Addr().String()))
	return s.grpc.Serve(lis)
}

// Stop marks the service not serving and stops it. Open streams are aborted.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.Stop()
}

// GracefulStop waits for open streams to finish.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// Streams returns the number of streams started so far.
func (s *Server) Streams() int64 { return s.streams.Load() }

// Active returns the number of streams currently open.
func (s *Server) Active() int64 { return s.active.Load() }

// ProcessAudioStream answers one upload.
func (s *Server) ProcessAudioStream(stream *transport.ServerStream) error {
	id := s.streams.Add(1)
	s.active.Add(1)
	defer s.active.Add(-1)
	metrics.MockStreamsTotal.Inc()

	logger := s.logger.With(zap.Int64("stream", id))
	ctx := stream.Context()
	start := time.Now()

	first, err := stream.Recv()
	if err != nil {
		return err
	}
	hdr, ok := first.(*wire.AudioStreamHeader)
	if !ok {
		logger.Warn("first message is not a header", zap.Stringer("kind", first.Kind()))
		if err := stream.Send(&wire.Status{Code: wire.StatusError, Message: headerFirstMessage}); err != nil {
			return err
		}
		return status.Error(codes.InvalidArgument, headerFirstMessage)
	}
	audio := hdr.Audio
	frameSize := audio.FrameSize()
	if audio.SampleRate == 0 || frameSize == 0 {
		msg := fmt.Sprintf("unsupported audio header: %d Hz, %d channels, %d bits",
			audio.SampleRate, audio.ChannelCount, audio.BitsPerSample)
		if err := stream.Send(&wire.Status{Code: wire.StatusError, Message: msg}); err != nil {
			return err
		}
		return status.Error(codes.InvalidArgument, msg)
	}

	if !s.opts.OmitHeader {
		err := stream.Send(&wire.AnimationHeader{
			Audio:        audio,
			ChannelNames: ChannelNames(),
			JointNames:   slices.Clone(JointNames),
			StartEpoch:   float64(start.UnixNano()) / 1e9,
		})
		if err != nil {
			return err
		}
	}
	if s.opts.StallAfterHeader {
		<-ctx.Done()
		return ctx.Err()
	}

	weights := make([]float32, ChannelCount)
	for i := range weights {
		weights[i] = 1 + float32(i)/float32(ChannelCount)
	}

	samplesPerFrame := max(int(audio.SampleRate)/s.opts.FrameRate, 1)
	var (
		received int // sample frames consumed so far
		sent     int
		ended    bool
	)
	for {
		m, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, wire.ErrMalformed) {
			msg := "malformed upload message: " + err.Error()
			if err := stream.Send(&wire.Status{Code: wire.StatusError, Message: msg}); err != nil {
				return err
			}
			return status.Error(codes.InvalidArgument, msg)
		}
		if err != nil {
			return err
		}

		if ended {
			if err := stream.Send(&wire.Status{Code: wire.StatusWarning, Message: "received data after end of audio"}); err != nil {
				return err
			}
			continue
		}

		switch v := m.(type) {
		case *wire.EndOfAudio:
			ended = true
			if err := stream.Send(&wire.Event{Type: wire.EventEndOfAudioProcessing}); err != nil {
				return err
			}
		case *wire.AudioStreamHeader:
			if err := stream.Send(&wire.Status{Code: wire.StatusWarning, Message: "duplicate header ignored"}); err != nil {
				return err
			}
		case *wire.AudioChunk:
			n := len(v.Samples) / frameSize
			offset := float64(received) / float64(audio.SampleRate)
			received += n

			var frames []*wire.AnimationFrame
			for cursor := 0; cursor < n; cursor += samplesPerFrame {
				end := min(cursor+samplesPerFrame, n)
				tc := float64(cursor)/float64(audio.SampleRate) + offset
				frames = append(frames, &wire.AnimationFrame{
					TimeCode: tc,
					Weights:  weights,
					Audio:    &wire.AudioEcho{TimeCode: tc, Samples: v.Samples[cursor*frameSize : end*frameSize]},
				})
			}
			if s.opts.ShuffleFrames {
				slices.Reverse(frames)
			}
			for _, f := range frames {
				if err := s.sendFrame(ctx, stream, f, sent+1); err != nil {
					return err
				}
				sent++
				if s.opts.FailAfterFrames > 0 && sent >= s.opts.FailAfterFrames {
					logger.Info("failing stream on request", zap.Int("frames", sent))
					return stream.Send(&wire.Status{Code: wire.StatusError, Message: "simulated failure"})
				}
			}
		}
	}

	if !ended {
		if err := stream.Send(&wire.Status{Code: wire.StatusWarning, Message: "upload closed without end of audio"}); err != nil {
			return err
		}
	}
	logger.Info("stream complete", zap.Int("frames", sent), zap.Duration("elapsed", time.Since(start)))
	return stream.Send(&wire.Status{Code: wire.StatusSuccess, Message: "sent all data"})
}

func (s *Server) sendFrame(ctx context.Context, stream *transport.ServerStream, f *wire.AnimationFrame, n int) error {
	if s.opts.FrameDelay > 0 {
		t := time.NewTimer(s.opts.FrameDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	if s.opts.CorruptFrame > 0 && n == s.opts.CorruptFrame {
		return stream.SendRaw(wire.Raw{0x2a, 0xff, 0xff})
	}
	return stream.Send(f)
}
