// Package config loads settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/RenatoCabral2022/facestream/internal/params"
	"github.com/RenatoCabral2022/facestream/internal/session"
	"github.com/RenatoCabral2022/facestream/internal/upload"
)

// FileEnv names the environment variable holding the YAML file path.
const FileEnv = "FACESTREAM_CONFIG"

type Config struct {
	ServerURL  string `yaml:"server_url"`
	APIKey     string `yaml:"api_key"`
	FunctionID string `yaml:"function_id"`

	ListenAddr string `yaml:"listen_addr"`
	MockAddr   string `yaml:"mock_addr"`
	LogLevel   string `yaml:"log_level"`

	ChunkFrames    int           `yaml:"chunk_frames"`
	FrameRate      int           `yaml:"frame_rate"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"`
	CheckHealth    bool          `yaml:"check_health"`

	CacheDir string        `yaml:"cache_dir"`
	CacheTTL time.Duration `yaml:"cache_ttl"`

	MaxPlayers    int     `yaml:"max_players"`
	RingBufferSec float64 `yaml:"ring_buffer_sec"`

	Params params.Set `yaml:"params"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		ServerURL:      "http://localhost:52000",
		ListenAddr:     ":9090",
		MockAddr:       ":52000",
		LogLevel:       "info",
		ChunkFrames:    upload.DefaultChunkFrames,
		FrameRate:      upload.DefaultFrameRate,
		RequestTimeout: 60 * time.Second,
		IdleTimeout:    10 * time.Second,
		DrainTimeout:   time.Second,
		MaxPlayers:     16,
		RingBufferSec:  30,
		Params:         params.Default(),
	}
}

// Load reads the file named by FACESTREAM_CONFIG, if any, and applies
// environment overrides.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	c.ServerURL = getEnv("FACESTREAM_SERVER_URL", c.ServerURL)
	c.APIKey = getEnv("FACESTREAM_API_KEY", c.APIKey)
	c.FunctionID = getEnv("FACESTREAM_FUNCTION_ID", c.FunctionID)
	c.ListenAddr = getEnv("LISTEN_ADDR", c.ListenAddr)
	c.MockAddr = getEnv("MOCK_ADDR", c.MockAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.CacheDir = getEnv("FACESTREAM_CACHE_DIR", c.CacheDir)

	var errs []error
	c.ChunkFrames = getEnvParsed("FACESTREAM_CHUNK_FRAMES", c.ChunkFrames, strconv.Atoi, &errs)
	c.FrameRate = getEnvParsed("FACESTREAM_FRAME_RATE", c.FrameRate, strconv.Atoi, &errs)
	c.MaxPlayers = getEnvParsed("FACESTREAM_MAX_PLAYERS", c.MaxPlayers, strconv.Atoi, &errs)
	c.RequestTimeout = getEnvParsed("FACESTREAM_REQUEST_TIMEOUT", c.RequestTimeout, time.ParseDuration, &errs)
	c.IdleTimeout = getEnvParsed("FACESTREAM_IDLE_TIMEOUT", c.IdleTimeout, time.ParseDuration, &errs)
	c.DrainTimeout = getEnvParsed("FACESTREAM_DRAIN_TIMEOUT", c.DrainTimeout, time.ParseDuration, &errs)
	c.CacheTTL = getEnvParsed("FACESTREAM_CACHE_TTL", c.CacheTTL, time.ParseDuration, &errs)
	c.CheckHealth = getEnvParsed("FACESTREAM_CHECK_HEALTH", c.CheckHealth, strconv.ParseBool, &errs)
	c.RingBufferSec = getEnvParsed("RING_BUFFER_SEC", c.RingBufferSec, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	}, &errs)
	return errors.Join(errs...)
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch {
	case c.ChunkFrames <= 0:
		return fmt.Errorf("chunk_frames must be positive, got %d", c.ChunkFrames)
	case c.FrameRate <= 0:
		return fmt.Errorf("frame_rate must be positive, got %d", c.FrameRate)
	case c.MaxPlayers <= 0:
		return fmt.Errorf("max_players must be positive, got %d", c.MaxPlayers)
	case c.RingBufferSec <= 0:
		return fmt.Errorf("ring_buffer_sec must be positive, got %v", c.RingBufferSec)
	case c.RequestTimeout < 0 || c.IdleTimeout < 0 || c.DrainTimeout < 0:
		return errors.New("timeouts must not be negative")
	}
	return nil
}

// Session returns the request settings.
func (c *Config) Session() session.Config {
	return session.Config{
		ChunkFrames:  c.ChunkFrames,
		FrameRate:    c.FrameRate,
		Timeout:      c.RequestTimeout,
		IdleTimeout:  c.IdleTimeout,
		DrainTimeout: c.DrainTimeout,
		CheckHealth:  c.CheckHealth,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvParsed[T any](key string, fallback T, parse func(string) (T, error), errs *[]error) T {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	out, err := parse(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return out
}
