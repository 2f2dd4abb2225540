package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RenatoCabral2022/facestream/internal/cache"
	"github.com/RenatoCabral2022/facestream/internal/metrics"
	"github.com/RenatoCabral2022/facestream/internal/playback"
	"github.com/RenatoCabral2022/facestream/internal/transport"
)

var (
	ErrClosed     = errors.New("player closed")
	errSuperseded = &Error{Kind: KindCancelled, Err: errors.New("superseded by a newer request")}
)

// Store persists completed buffers between requests.
type Store interface {
	Get(key string) (*playback.Buffer, error)
	Put(key string, buf *playback.Buffer) error
}

// Player owns at most one in-flight session and the buffer of the newest
// completed one.
type Player struct {
	conn   transport.Conn
	cfg    Config
	store  Store
	logger *zap.Logger

	mu        sync.Mutex
	seq       uint64
	current   *Session
	buffer    *playback.Buffer
	bufferKey string
	bufferSeq uint64
	closed    bool
}

// NewPlayer creates a player sending requests over conn. store may be nil.
func NewPlayer(conn transport.Conn, cfg Config, store Store, logger *zap.Logger) *Player {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.ActivePlayers.Inc()
	return &Player{conn: conn, cfg: cfg, store: store, logger: logger}
}

// RequestAnimation runs req, superseding any request still in flight. On
// success the result becomes the player's buffer; failures leave the previous
// buffer in place.
func (p *Player) RequestAnimation(ctx context.Context, req Request) (*playback.Buffer, error) {
	if err := req.Audio.Validate(); err != nil {
		return nil, &Error{Kind: KindMalformed, Err: fmt.Errorf("invalid audio: %w", err)}
	}
	key := cache.Key(req.Audio, req.Params)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if p.buffer != nil && p.bufferKey == key {
		buf, prev := p.buffer, p.current
		p.mu.Unlock()
		if prev != nil && !prev.State().Terminal() {
			prev.cancelWith(errSuperseded)
			<-prev.Done()
		}
		metrics.CacheLookupsTotal.WithLabelValues("current").Inc()
		return buf, nil
	}
	p.seq++
	seq := p.seq
	s := newSession(uuid.NewString(), p.conn, p.cfg, p.logger)
	prev := p.current
	p.current = s
	p.mu.Unlock()

	if prev != nil {
		prev.cancelWith(errSuperseded)
		select {
		case <-prev.Done():
		case <-ctx.Done():
			return s.abort(context.Cause(ctx))
		}
	}

	if buf := p.lookup(key); buf != nil {
		if _, err := s.complete(buf); err != nil {
			return nil, err
		}
		p.publish(seq, key, buf)
		return buf, nil
	}

	buf, err := s.run(ctx, req)
	if err != nil {
		p.logger.Warn("animation request failed", zap.String("session", s.ID()), zap.Error(err))
		return nil, err
	}
	if p.publish(seq, key, buf) && p.store != nil {
		if err := p.store.Put(key, buf); err != nil {
			p.logger.Warn("cache store failed", zap.Error(err))
		}
	}
	return buf, nil
}

func (p *Player) lookup(key string) *playback.Buffer {
	if p.store == nil {
		return nil
	}
	buf, err := p.store.Get(key)
	switch {
	case err == nil:
		metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
		return buf
	case errors.Is(err, cache.ErrNotFound):
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
	default:
		metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
		p.logger.Warn("cache lookup failed", zap.Error(err))
	}
	return nil
}

// publish installs buf unless a newer request already did.
func (p *Player) publish(seq uint64, key string, buf *playback.Buffer) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if seq <= p.bufferSeq {
		return false
	}
	p.buffer, p.bufferKey, p.bufferSeq = buf, key, seq
	return true
}

// Buffer returns the newest completed animation, or nil.
func (p *Player) Buffer() *playback.Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer
}

func (p *Player) session() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// State returns the state of the latest session, or StateIdle.
func (p *Player) State() State {
	if s := p.session(); s != nil {
		return s.State()
	}
	return StateIdle
}

// Received reports whether the current buffer holds a completed animation.
func (p *Player) Received() bool {
	return p.Buffer() != nil
}

// ReceivedFrames returns the frames received by the latest session.
func (p *Player) ReceivedFrames() int {
	if s := p.session(); s != nil {
		return s.ReceivedFrames()
	}
	return 0
}

// LastReceived returns when the latest session last received a message.
func (p *Player) LastReceived() time.Time {
	if s := p.session(); s != nil {
		return s.LastReceived()
	}
	return time.Time{}
}

// Cancel aborts the in-flight request, if any, and waits for it to release
// its stream.
func (p *Player) Cancel() {
	s := p.session()
	if s == nil {
		return
	}
	s.Cancel()
	<-s.Done()
}

// Close cancels any request and rejects new ones.
func (p *Player) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.Cancel()
	metrics.ActivePlayers.Dec()
}

// Warnings returns the service warnings of the latest finished session.
func (p *Player) Warnings() []string {
	if s := p.session(); s != nil {
		return s.Warnings()
	}
	return nil
}
