package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(FileEnv, "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("expected :9090, got %q", cfg.ListenAddr)
	}
	if cfg.ChunkFrames != 30 || cfg.FrameRate != 30 {
		t.Errorf("expected 30 frames at 30 fps, got %d at %d", cfg.ChunkFrames, cfg.FrameRate)
	}
	if cfg.Params.Emotion.LiveBlendCoef != 0.7 {
		t.Errorf("expected default params, got %+v", cfg.Params.Emotion)
	}
	sc := cfg.Session()
	if sc.Timeout != time.Minute || sc.IdleTimeout != 10*time.Second || sc.DrainTimeout != time.Second {
		t.Errorf("unexpected session config %+v", sc)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facestream.yaml")
	data := []byte(`
server_url: https://grpc.example.com
api_key: $A2F_KEY
request_timeout: 30s
max_players: 4
ring_buffer_sec: 12.5
params:
  emotion:
    emotion_strength: 0.9
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(FileEnv, path)
	t.Setenv("FACESTREAM_MAX_PLAYERS", "8")
	t.Setenv("FACESTREAM_CHECK_HEALTH", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerURL != "https://grpc.example.com" || cfg.APIKey != "$A2F_KEY" {
		t.Errorf("file values not applied: %q %q", cfg.ServerURL, cfg.APIKey)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("expected 30s, got %v", cfg.RequestTimeout)
	}
	if cfg.MaxPlayers != 8 {
		t.Errorf("expected env to override max_players, got %d", cfg.MaxPlayers)
	}
	if !cfg.CheckHealth {
		t.Error("expected check_health from env")
	}
	if cfg.RingBufferSec != 12.5 {
		t.Errorf("expected 12.5, got %v", cfg.RingBufferSec)
	}
	if cfg.Params.Emotion.EmotionStrength != 0.9 {
		t.Errorf("expected emotion strength 0.9, got %v", cfg.Params.Emotion.EmotionStrength)
	}
	// Unset keys keep their defaults.
	if cfg.Params.Face.TongueStrength != 1.3 {
		t.Errorf("expected default tongue strength, got %v", cfg.Params.Face.TongueStrength)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Setenv(FileEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Error("expected error for missing file")
	}

	t.Setenv(FileEnv, "")
	t.Setenv("FACESTREAM_FRAME_RATE", "fast")
	if _, err := Load(); err == nil {
		t.Error("expected error for invalid frame rate")
	}

	t.Setenv("FACESTREAM_FRAME_RATE", "0")
	if _, err := Load(); err == nil {
		t.Error("expected validation error for zero frame rate")
	}
}
