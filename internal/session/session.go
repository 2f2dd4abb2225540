// Package session runs one animation request over a duplex stream and keeps
// a player's current result.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/RenatoCabral2022/facestream/internal/audio"
	"github.com/RenatoCabral2022/facestream/internal/download"
	"github.com/RenatoCabral2022/facestream/internal/metrics"
	"github.com/RenatoCabral2022/facestream/internal/params"
	"github.com/RenatoCabral2022/facestream/internal/playback"
	"github.com/RenatoCabral2022/facestream/internal/transport"
	"github.com/RenatoCabral2022/facestream/internal/upload"
)

// State is the lifecycle position of a session.
type State int32

const (
	StateIdle State = iota
	StateUploading
	StateAwaitingHeader
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateUploading:
		return "UPLOADING"
	case StateAwaitingHeader:
		return "AWAITING_HEADER"
	case StateStreaming:
		return "STREAMING"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	case StateCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("STATE(%d)", int32(s))
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s >= StateCompleted
}

// Config tunes request execution.
type Config struct {
	// ChunkSize is the upload chunk size in bytes; zero derives it from
	// ChunkFrames and FrameRate.
	ChunkSize   int
	ChunkFrames int
	FrameRate   int
	// Timeout bounds a request when it carries no deadline. Zero disables it.
	Timeout time.Duration
	// IdleTimeout fails a request when nothing is received for this long.
	// Zero disables it.
	IdleTimeout time.Duration
	// DrainTimeout bounds how long the call is read after SUCCESS before it
	// is closed. Zero closes it at once.
	DrainTimeout time.Duration
	// CheckHealth runs a health check before opening each stream.
	CheckHealth bool
}

// DefaultConfig returns the defaults used by the CLI and HTTP API.
func DefaultConfig() Config {
	return Config{
		ChunkFrames:  upload.DefaultChunkFrames,
		FrameRate:    upload.DefaultFrameRate,
		Timeout:      60 * time.Second,
		IdleTimeout:  10 * time.Second,
		DrainTimeout: time.Second,
	}
}

// Request is one animation request.
type Request struct {
	Audio  audio.Buffer
	Params params.Set
	// Deadline overrides Config.Timeout when set.
	Deadline time.Time
}

var (
	errDeadline = fmt.Errorf("request deadline exceeded: %w", context.DeadlineExceeded)
	errDrained  = errors.New("call still open after final status")
)

// Session is a single exchange: one audio buffer in, one animation out.
type Session struct {
	id     string
	conn   transport.Conn
	cfg    Config
	logger *zap.Logger

	// ctx is cancelled by Cancel, by the caller's context, or on failure.
	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}

	state    atomic.Int32
	frames   atomic.Int64
	trailing atomic.Int64
	lastRecv atomic.Int64

	mu       sync.Mutex
	finished bool
	result   *playback.Buffer
	err      error
	warnings []string
}

func newSession(id string, conn transport.Conn, cfg Config, logger *zap.Logger) *Session {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Session{
		id:     id,
		conn:   conn,
		cfg:    cfg,
		logger: logger.With(zap.String("session", id)),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State { return State(s.state.Load()) }

// ReceivedFrames returns the number of frames accepted so far.
func (s *Session) ReceivedFrames() int { return int(s.frames.Load()) }

// Trailing returns the number of messages received after the final status.
func (s *Session) Trailing() int { return int(s.trailing.Load()) }

// LastReceived returns when the last message arrived, or the zero time.
func (s *Session) LastReceived() time.Time {
	if ns := s.lastRecv.Load(); ns != 0 {
		return time.Unix(0, ns)
	}
	return time.Time{}
}

// Warnings returns the warnings reported by the service. Valid once Done is
// closed.
func (s *Session) Warnings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warnings
}

// Done is closed once every goroutine and transport resource of the session
// has been released.
func (s *Session) Done() <-chan struct{} { return s.done }

// Cancel aborts the session. It is safe to call more than once and before the
// session starts.
func (s *Session) Cancel() {
	s.cancelWith(&Error{Kind: KindCancelled, Err: errors.New("cancelled by caller")})
}

func (s *Session) cancelWith(err error) {
	s.cancel(err)
}

func (s *Session) transition(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

// streaming enters STREAMING from either pre-header state. A terminal state
// is never left.
func (s *Session) streaming() {
	if !s.transition(StateUploading, StateStreaming) {
		s.transition(StateAwaitingHeader, StateStreaming)
	}
}

// finish records the outcome once. Later calls return the recorded outcome.
func (s *Session) finish(buf *playback.Buffer, err error) (*playback.Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return s.result, s.err
	}
	s.finished = true

	var e *Error
	if err != nil {
		e = classify(err)
	}
	switch {
	case e == nil:
		s.result = buf
		s.state.Store(int32(StateCompleted))
		metrics.SessionOutcomesTotal.WithLabelValues("completed").Inc()
	case e.Kind == KindCancelled:
		s.err = e
		s.state.Store(int32(StateCancelled))
		metrics.SessionOutcomesTotal.WithLabelValues("cancelled").Inc()
	default:
		s.err = e
		s.state.Store(int32(StateFailed))
		metrics.SessionOutcomesTotal.WithLabelValues(e.Kind.String()).Inc()
	}
	return s.result, s.err
}

// outcome returns the recorded result.
func (s *Session) outcome() (*playback.Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.err
}

func (s *Session) setWarnings(w []string) {
	s.mu.Lock()
	s.warnings = w
	s.mu.Unlock()
	if len(w) > 0 {
		metrics.WarningsTotal.Add(float64(len(w)))
	}
}

// abort finishes a session that never opened a stream.
func (s *Session) abort(err error) (*playback.Buffer, error) {
	s.cancel(err)
	_, ferr := s.finish(nil, err)
	close(s.done)
	return nil, ferr
}

// abortOpen fails a session whose stream could not be set up. A pending
// cancellation or deadline takes precedence over err.
func (s *Session) abortOpen(ctx context.Context, release func(), err error) (*playback.Buffer, error) {
	if cause := context.Cause(ctx); cause != nil {
		err = cause
	} else {
		err = &Error{Kind: KindTransport, Err: err}
	}
	release()
	return s.abort(err)
}

// complete finishes a session with a buffer obtained without a stream. A
// cancellation that is already pending wins.
func (s *Session) complete(buf *playback.Buffer) (*playback.Buffer, error) {
	if cause := context.Cause(s.ctx); cause != nil {
		return s.abort(cause)
	}
	s.finish(buf, nil)
	s.cancel(nil)
	close(s.done)
	return buf, nil
}

// run performs the request. It returns as soon as the outcome is known; on
// timeout or cancellation the stream is torn down in the background and Done
// closes once that has finished.
func (s *Session) run(ctx context.Context, req Request) (*playback.Buffer, error) {
	stopCaller := context.AfterFunc(ctx, func() { s.cancel(context.Cause(ctx)) })

	streamCtx := s.ctx
	cancelDeadline := context.CancelFunc(func() {})
	if dl := s.deadline(req); !dl.IsZero() {
		streamCtx, cancelDeadline = context.WithDeadlineCause(s.ctx, dl, errDeadline)
	}
	release := func() {
		stopCaller()
		cancelDeadline()
		s.cancel(context.Canceled)
	}

	if err := context.Cause(ctx); err != nil {
		release()
		return s.abort(err)
	}
	if err := context.Cause(streamCtx); err != nil {
		release()
		return s.abort(err)
	}

	w := &upload.Writer{
		Header:    req.Params.StreamHeader(req.Audio.Header),
		Samples:   req.Audio.Samples,
		ChunkSize: s.chunkSize(req),
		Emotion:   req.Params.PreferredEmotion(),
	}

	if s.cfg.CheckHealth {
		if err := s.conn.Check(streamCtx); err != nil {
			return s.abortOpen(streamCtx, release, fmt.Errorf("health check: %w", err))
		}
	}

	s.transition(StateIdle, StateUploading)
	start := time.Now()
	stream, err := s.conn.Open(streamCtx)
	if err != nil {
		return s.abortOpen(streamCtx, release, fmt.Errorf("open stream: %w", err))
	}
	metrics.SessionsStartedTotal.Inc()
	metrics.ActiveSessions.Inc()
	s.logger.Debug("stream opened",
		zap.Int("bytes", len(req.Audio.Samples)),
		zap.Int("chunks", w.ChunkCount()),
	)

	var idle *time.Timer
	if s.cfg.IdleTimeout > 0 {
		idle = time.AfterFunc(s.cfg.IdleTimeout, func() { s.cancel(errIdle) })
	}

	reader := download.NewReader()
	completed := make(chan struct{})
	var (
		res   download.Result
		early bool
	)
	// succeed finishes the session as soon as the final SUCCESS arrives,
	// whether or not the service closes the call.
	succeed := func() {
		if idle != nil {
			idle.Stop()
		}
		res, early = reader.Result(), true
		s.setWarnings(res.Warnings)
		if _, err := s.finish(playback.NewBuffer(res.Header, res.Frames, req.Audio.Duration()), nil); err == nil {
			metrics.RequestLatency.WithLabelValues("total").Observe(float64(time.Since(start).Milliseconds()))
		}
		close(completed)
	}

	var g errgroup.Group
	g.Go(func() error {
		for m := range w.Messages() {
			if err := stream.Send(m); err != nil {
				if errors.Is(err, io.EOF) {
					// The server ended the call; Recv reports why.
					return nil
				}
				s.cancel(err)
				return fmt.Errorf("send %s: %w", m.Kind(), err)
			}
		}
		if err := stream.CloseSend(); err != nil {
			s.cancel(err)
			return fmt.Errorf("close send: %w", err)
		}
		s.transition(StateUploading, StateAwaitingHeader)
		return nil
	})
	g.Go(func() error {
		first := true
		for {
			raw, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return reader.Close()
			}
			if err != nil {
				s.cancel(err)
				return err
			}
			s.lastRecv.Store(time.Now().UnixNano())
			if idle != nil {
				idle.Reset(s.cfg.IdleTimeout)
			}

			herr := reader.HandleRaw(raw)
			if reader.HasHeader() {
				s.streaming()
			}
			if n := int64(reader.FrameCount()); n != s.frames.Load() {
				if first && n > 0 {
					first = false
					metrics.RequestLatency.WithLabelValues("first_frame").Observe(float64(time.Since(start).Milliseconds()))
				}
				metrics.FramesReceivedTotal.Add(float64(n - s.frames.Load()))
				s.frames.Store(n)
			}
			if herr != nil {
				s.cancel(herr)
				return herr
			}
			if reader.Done() {
				succeed()
				s.drain(stream)
				return nil
			}
		}
	})

	type outcome struct {
		buf *playback.Buffer
		err error
	}
	out := make(chan outcome, 1)
	go func() {
		err := g.Wait()
		if idle != nil {
			idle.Stop()
		}
		var (
			b    *playback.Buffer
			ferr error
		)
		if early {
			b, ferr = s.outcome()
		} else {
			res = reader.Result()
			if err == nil {
				err = res.Err
			}
			if err != nil && streamCtx.Err() != nil {
				err = context.Cause(streamCtx)
			}
			var buf *playback.Buffer
			if err == nil {
				buf = playback.NewBuffer(res.Header, res.Frames, req.Audio.Duration())
			}
			s.setWarnings(res.Warnings)
			b, ferr = s.finish(buf, err)
			if ferr == nil {
				metrics.RequestLatency.WithLabelValues("total").Observe(float64(time.Since(start).Milliseconds()))
			}
		}
		release()
		metrics.ActiveSessions.Dec()
		s.logger.Info("stream finished",
			zap.Stringer("state", s.State()),
			zap.Int("frames", len(res.Frames)),
			zap.Int("warnings", len(res.Warnings)),
			zap.Int("trailing", res.Trailing+s.Trailing()),
			zap.Error(ferr),
		)
		close(s.done)
		out <- outcome{b, ferr}
	}()

	select {
	case o := <-out:
		return o.buf, o.err
	case <-completed:
		// The call may still be draining; Done closes once it is released.
		return s.outcome()
	case <-streamCtx.Done():
		// Timeouts and cancellation return now; the goroutine above drains.
		return s.finish(nil, context.Cause(streamCtx))
	}
}

// drain reads whatever the service sends after SUCCESS until the call ends
// or DrainTimeout passes. Those messages are counted, never applied.
func (s *Session) drain(stream transport.Stream) {
	t := time.AfterFunc(s.cfg.DrainTimeout, func() { s.cancel(errDrained) })
	defer t.Stop()
	for {
		if _, err := stream.Recv(); err != nil {
			return
		}
		s.trailing.Add(1)
	}
}

func (s *Session) deadline(req Request) time.Time {
	if !req.Deadline.IsZero() {
		return req.Deadline
	}
	if s.cfg.Timeout > 0 {
		return time.Now().Add(s.cfg.Timeout)
	}
	return time.Time{}
}

func (s *Session) chunkSize(req Request) int {
	if s.cfg.ChunkSize > 0 {
		return s.cfg.ChunkSize
	}
	return upload.DefaultChunkSize(req.Audio.Header, s.cfg.ChunkFrames, s.cfg.FrameRate)
}
