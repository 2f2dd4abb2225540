// Package server exposes players over HTTP: audio is appended to a per-player
// ring buffer, animation is requested from the ring and sampled by time.
package server

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RenatoCabral2022/facestream/internal/config"
	"github.com/RenatoCabral2022/facestream/internal/metrics"
	"github.com/RenatoCabral2022/facestream/internal/params"
	"github.com/RenatoCabral2022/facestream/internal/ringbuffer"
	"github.com/RenatoCabral2022/facestream/internal/session"
	"github.com/RenatoCabral2022/facestream/internal/transport"
	"github.com/RenatoCabral2022/facestream/internal/wire"
)

var (
	ErrTooManyPlayers = errors.New("max players reached")
	ErrPlayerNotFound = errors.New("player not found")
)

// player pairs a session.Player with the audio captured for it.
type player struct {
	id      string
	created time.Time
	player  *session.Player
	ring    *ringbuffer.RingBuffer

	// Output gains applied to sampled weights by channel name.
	mu          sync.Mutex
	multipliers params.Weights
	offsets     params.Weights
}

// gain adjusts one output channel; nil fields are left unchanged.
type gain struct {
	Multiplier *float32 `json:"multiplier,omitempty"`
	Offset     *float32 `json:"offset,omitempty"`
}

type gains struct {
	Multipliers params.Weights `json:"multipliers"`
	Offsets     params.Weights `json:"offsets"`
}

func (p *player) setGain(channel string, g gain) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if g.Multiplier != nil {
		p.multipliers.Set(channel, *g.Multiplier)
	}
	if g.Offset != nil {
		p.offsets.Set(channel, *g.Offset)
	}
}

// removeGain reports whether channel had a multiplier or an offset.
func (p *player) removeGain(channel string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := p.multipliers.Remove(channel)
	o := p.offsets.Remove(channel)
	return m || o
}

func (p *player) clearGains() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.multipliers.Clear()
	p.offsets.Clear()
}

func (p *player) gains() gains {
	p.mu.Lock()
	defer p.mu.Unlock()
	return gains{
		Multipliers: slices.Clone(p.multipliers),
		Offsets:     slices.Clone(p.offsets),
	}
}

// applyGains rewrites weights in place as w*multiplier+offset, matching
// names[i] to weights[i].
func (p *player) applyGains(names []string, weights []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, name := range names {
		if i >= len(weights) {
			return
		}
		if m, ok := p.multipliers.Get(name); ok {
			weights[i] *= m
		}
		if o, ok := p.offsets.Get(name); ok {
			weights[i] += o
		}
	}
}

// Server owns the players created through the HTTP API.
type Server struct {
	cfg    *config.Config
	conn   transport.Conn
	store  session.Store
	logger *zap.Logger

	mu      sync.RWMutex
	players map[string]*player
}

// New creates a server issuing requests over conn. store may be nil.
func New(cfg *config.Config, conn transport.Conn, store session.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:     cfg,
		conn:    conn,
		store:   store,
		logger:  logger,
		players: make(map[string]*player),
	}
}

// PlayerCount returns the number of live players.
func (s *Server) PlayerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players)
}

// CreatePlayer registers a player whose ring buffer holds audio in format h.
func (s *Server) CreatePlayer(h wire.AudioHeader) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.players) >= s.cfg.MaxPlayers {
		s.logger.Warn("player cap reached", zap.Int("current", len(s.players)), zap.Int("max", s.cfg.MaxPlayers))
		metrics.PlayersRejectedTotal.Inc()
		return "", ErrTooManyPlayers
	}
	id := uuid.New().String()
	logger := s.logger.With(zap.String("player", id))
	s.players[id] = &player{
		id:      id,
		created: time.Now(),
		player:  session.NewPlayer(s.conn, s.cfg.Session(), s.store, logger),
		ring:    ringbuffer.New(h, s.cfg.RingBufferSec),
	}
	logger.Info("player created", zap.Uint32("sample_rate", h.SampleRate), zap.Uint32("channels", h.ChannelCount))
	return id, nil
}

func (s *Server) get(id string) (*player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	return p, nil
}

// DeletePlayer cancels the player's request and removes it.
func (s *Server) DeletePlayer(id string) error {
	s.mu.Lock()
	p, ok := s.players[id]
	delete(s.players, id)
	s.mu.Unlock()
	if !ok {
		return ErrPlayerNotFound
	}
	p.player.Close()
	s.logger.Info("player deleted", zap.String("player", id))
	return nil
}

// Shutdown closes every player.
func (s *Server) Shutdown() {
	s.mu.Lock()
	players := s.players
	s.players = make(map[string]*player)
	s.mu.Unlock()

	for _, p := range players {
		p.player.Close()
	}
	s.logger.Info("server shut down", zap.Int("players", len(players)))
}
