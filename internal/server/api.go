package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/RenatoCabral2022/facestream/internal/audio"
	"github.com/RenatoCabral2022/facestream/internal/params"
	"github.com/RenatoCabral2022/facestream/internal/playback"
	"github.com/RenatoCabral2022/facestream/internal/session"
)

// maxAudioBody bounds one audio upload.
const maxAudioBody = 16 << 20

type createPlayerRequest struct {
	SampleRate int `json:"sampleRate"`
	Channels   int `json:"channels"`
}

type createPlayerResponse struct {
	ID string `json:"id"`
}

type animationRequest struct {
	// Seconds of captured audio to send; zero sends everything buffered.
	Seconds float64 `json:"seconds"`
	// Audio, when set, is sent instead of the captured audio. It must be in
	// the player's format.
	Audio     []byte      `json:"audio,omitempty"`
	Params    *params.Set `json:"params,omitempty"`
	TimeoutMs int         `json:"timeoutMs,omitempty"`
}

type animationResponse struct {
	Frames   int      `json:"frames"`
	Channels []string `json:"channels"`
	Joints   []string `json:"joints"`
	Duration float64  `json:"duration"`
	Length   float64  `json:"length"`
	Warnings []string `json:"warnings,omitempty"`
}

type weightsResponse struct {
	Time     float64            `json:"t"`
	Position float64            `json:"position"`
	Frame    int                `json:"frame"`
	Channels []string           `json:"channels"`
	Weights  []float32          `json:"weights"`
	Emotions map[string]float32 `json:"emotions,omitempty"`
	Warnings []string           `json:"warnings,omitempty"`
}

type statusResponse struct {
	ID              string     `json:"id"`
	State           string     `json:"state"`
	Received        bool       `json:"received"`
	Frames          int        `json:"frames"`
	LastReceived    *time.Time `json:"lastReceived,omitempty"`
	BufferedSeconds float64    `json:"bufferedSeconds"`
	Duration        float64    `json:"duration"`
}

// Handler returns the HTTP API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/players", func(r chi.Router) {
		r.Post("/", s.handleCreatePlayer)
		r.Route("/{playerId}", func(r chi.Router) {
			r.Delete("/", s.handleDeletePlayer)
			r.Post("/audio", s.handleAudio)
			r.Post("/animation", s.handleRequestAnimation)
			r.Delete("/animation", s.handleCancelAnimation)
			r.Get("/weights", s.handleWeights)
			r.Get("/gains", s.handleGains)
			r.Delete("/gains", s.handleClearGains)
			r.Put("/gains/{channel}", s.handleSetGain)
			r.Delete("/gains/{channel}", s.handleRemoveGain)
			r.Get("/status", s.handleStatus)
		})
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok", "players": s.PlayerCount()}
	if c, ok := s.store.(interface{ Len() (int, error) }); ok {
		n, err := c.Len()
		if err != nil {
			s.logger.Warn("cache count failed", zap.Error(err))
		} else {
			resp["cacheEntries"] = n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreatePlayer(w http.ResponseWriter, r *http.Request) {
	req := createPlayerRequest{SampleRate: audio.DefaultSampleRate, Channels: 1}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.SampleRate <= 0 || req.Channels <= 0 {
		writeError(w, http.StatusBadRequest, "sampleRate and channels must be positive")
		return
	}

	id, err := s.CreatePlayer(audio.PCM16Header(req.SampleRate, req.Channels))
	if errors.Is(err, ErrTooManyPlayers) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("create player failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "create player failed")
		return
	}
	writeJSON(w, http.StatusCreated, createPlayerResponse{ID: id})
}

// lookup resolves the {playerId} route parameter, writing 404 when unknown.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*player, bool) {
	p, err := s.get(chi.URLParam(r, "playerId"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return p, true
}

func (s *Server) handleDeletePlayer(w http.ResponseWriter, r *http.Request) {
	if err := s.DeletePlayer(chi.URLParam(r, "playerId")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAudio appends raw s16le PCM to the player's ring buffer. A "rate"
// query parameter above the player's rate downsamples mono input first.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookup(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "read body failed")
		return
	}

	h := p.ring.Header()
	if v := r.URL.Query().Get("rate"); v != "" {
		rate, err := strconv.Atoi(v)
		if err != nil || rate <= 0 {
			writeError(w, http.StatusBadRequest, "invalid rate")
			return
		}
		if rate != int(h.SampleRate) {
			if h.ChannelCount != 1 {
				writeError(w, http.StatusBadRequest, "resampling needs a mono player")
				return
			}
			if body, err = resample(body, rate, int(h.SampleRate)); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
	}

	p.ring.Write(body)
	w.WriteHeader(http.StatusNoContent)
}

func resample(body []byte, from, to int) ([]byte, error) {
	in, err := audio.BytesToInt16(body)
	if err != nil {
		return nil, err
	}
	out, err := audio.Downsample(in, from, to)
	if err != nil {
		return nil, err
	}
	return audio.Int16ToBytes(out), nil
}

func (s *Server) handleRequestAnimation(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req animationRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	buf := p.ring.Snapshot(req.Seconds)
	if len(req.Audio) > 0 {
		buf.Samples = req.Audio
	}
	if len(buf.Samples) == 0 {
		writeError(w, http.StatusBadRequest, "no audio buffered")
		return
	}
	if err := buf.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sreq := session.Request{Audio: buf, Params: s.cfg.Params}
	if req.Params != nil {
		sreq.Params = *req.Params
	}
	if req.TimeoutMs > 0 {
		sreq.Deadline = time.Now().Add(time.Duration(req.TimeoutMs) * time.Millisecond)
	}

	anim, err := p.player.RequestAnimation(r.Context(), sreq)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, animationResponse{
		Frames:   anim.Len(),
		Channels: anim.Channels(),
		Joints:   anim.Header.JointNames,
		Duration: anim.Duration(),
		Length:   anim.Length(),
		Warnings: p.player.Warnings(),
	})
}

// statusFor maps a request error to an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, session.ErrClosed) {
		return http.StatusGone
	}
	switch session.KindOf(err) {
	case session.KindCancelled:
		return http.StatusConflict
	case session.KindTimeout:
		return http.StatusGatewayTimeout
	case session.KindMalformed, session.KindProtocol, session.KindService, session.KindTransport:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) handleCancelAnimation(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookup(w, r)
	if !ok {
		return
	}
	p.player.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWeights(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookup(w, r)
	if !ok {
		return
	}
	buf := p.player.Buffer()
	if buf == nil {
		writeError(w, http.StatusNotFound, "no animation received")
		return
	}

	q := r.URL.Query()
	sampler := playback.Sampler{Window: playback.FullWindow}
	fps := float64(s.cfg.FrameRate)
	var t float64
	var err error
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"t", &t},
		{"offset", &sampler.Window.Offset},
		{"start", &sampler.Window.Start},
		{"end", &sampler.Window.End},
		{"fps", &fps},
	} {
		if v := q.Get(f.name); v != "" {
			if *f.dst, err = strconv.ParseFloat(v, 64); err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", f.name))
				return
			}
		}
	}
	if sampler.PostInfinity, err = playback.ParseInfinity(q.Get("post")); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var targets []string
	if v := q.Get("channels"); v != "" {
		targets = strings.Split(v, ",")
	}
	mapping, warnings := playback.NewChannelMap(buf.Channels()).MapTo(targets)
	weights := mapping.Apply(sampler.Sample(buf, t))
	p.applyGains(mapping.Names, weights)
	pos := sampler.Position(buf, t)

	writeJSON(w, http.StatusOK, weightsResponse{
		Time:     t,
		Position: pos,
		Frame:    playback.FrameIndex(pos, fps),
		Channels: mapping.Names,
		Weights:  weights,
		Emotions: sampler.SampleEmotions(buf, t),
		Warnings: warnings,
	})
}

func (s *Server) handleGains(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p.gains())
}

func (s *Server) handleSetGain(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var g gain
	if err := json.NewDecoder(r.Body).Decode(&g); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if g.Multiplier == nil && g.Offset == nil {
		writeError(w, http.StatusBadRequest, "multiplier or offset required")
		return
	}
	p.setGain(chi.URLParam(r, "channel"), g)
	writeJSON(w, http.StatusOK, p.gains())
}

func (s *Server) handleRemoveGain(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if !p.removeGain(chi.URLParam(r, "channel")) {
		writeError(w, http.StatusNotFound, "no gain for channel")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearGains(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookup(w, r)
	if !ok {
		return
	}
	p.clearGains()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookup(w, r)
	if !ok {
		return
	}
	resp := statusResponse{
		ID:              p.id,
		State:           p.player.State().String(),
		Received:        p.player.Received(),
		Frames:          p.player.ReceivedFrames(),
		BufferedSeconds: p.ring.Available(),
	}
	if last := p.player.LastReceived(); !last.IsZero() {
		resp.LastReceived = &last
	}
	if buf := p.player.Buffer(); buf != nil {
		resp.Duration = buf.Length()
	}
	writeJSON(w, http.StatusOK, resp)
}
