// Package config reads stemdeck settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "STEMDECK_"

type Config struct {
	SampleRate      int
	BufferSize      time.Duration
	ResampleQuality int

	SyncInterval  time.Duration
	SyncThreshold float64 // seconds
	MasterVolume  float64 // percent

	SocketPath string
	WatchDir   string

	LogLevel      string
	LogFile       string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int
}

func Default() Config {
	return Config{
		SampleRate:      48000,
		BufferSize:      100 * time.Millisecond,
		ResampleQuality: 4,
		SyncInterval:    100 * time.Millisecond,
		SyncThreshold:   0.1,
		MasterVolume:    80,
		SocketPath:      "/tmp/stemdeck.sock",
		LogLevel:        "info",
		LogMaxSize:      10,
		LogMaxBackups:   3,
		LogMaxAge:       28,
	}
}

// Load applies the given .env files (default ".env"; missing files are
// skipped, existing variables win) and then reads STEMDECK_* variables
// over the defaults.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from a lookup function such as os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	r := reader{lookup: lookup}

	cfg.SampleRate = r.int("SAMPLE_RATE", cfg.SampleRate)
	cfg.BufferSize = r.millis("BUFFER_MS", cfg.BufferSize)
	cfg.ResampleQuality = r.int("RESAMPLE_QUALITY", cfg.ResampleQuality)
	cfg.SyncInterval = r.millis("SYNC_INTERVAL_MS", cfg.SyncInterval)
	cfg.SyncThreshold = r.float("SYNC_THRESHOLD", cfg.SyncThreshold)
	cfg.MasterVolume = r.float("MASTER_VOLUME", cfg.MasterVolume)
	cfg.SocketPath = r.str("SOCKET", cfg.SocketPath)
	cfg.WatchDir = r.str("WATCH_DIR", cfg.WatchDir)
	cfg.LogLevel = r.str("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = r.str("LOG_FILE", cfg.LogFile)
	cfg.LogMaxSize = r.int("LOG_MAX_SIZE", cfg.LogMaxSize)
	cfg.LogMaxBackups = r.int("LOG_MAX_BACKUPS", cfg.LogMaxBackups)
	cfg.LogMaxAge = r.int("LOG_MAX_AGE", cfg.LogMaxAge)

	if r.err != nil {
		return nil, r.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.SampleRate < 8000 || c.SampleRate > 192000:
		return fmt.Errorf("sample rate %d out of range", c.SampleRate)
	case c.BufferSize <= 0:
		return errors.New("buffer size must be positive")
	case c.ResampleQuality < 1 || c.ResampleQuality > 64:
		return fmt.Errorf("resample quality %d out of range 1-64", c.ResampleQuality)
	case c.SyncInterval <= 0:
		return errors.New("sync interval must be positive")
	case c.SyncThreshold <= 0:
		return errors.New("sync threshold must be positive")
	case c.MasterVolume < 0 || c.MasterVolume > 100:
		return fmt.Errorf("master volume %v out of range 0-100", c.MasterVolume)
	case c.SocketPath == "":
		return errors.New("socket path is empty")
	}
	return nil
}

// reader keeps the first parse error so callers can read every key before
// checking.
type reader struct {
	lookup func(string) (string, bool)
	err    error
}

func (r *reader) get(key string) (string, bool) {
	v, ok := r.lookup(envPrefix + key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (r *reader) fail(key, v string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%s%s=%q: %w", envPrefix, key, v, err)
	}
}

func (r *reader) str(key, fallback string) string {
	if v, ok := r.get(key); ok {
		return v
	}
	return fallback
}

func (r *reader) int(key string, fallback int) int {
	v, ok := r.get(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return fallback
	}
	return n
}

func (r *reader) float(key string, fallback float64) float64 {
	v, ok := r.get(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, v, err)
		return fallback
	}
	return f
}

func (r *reader) millis(key string, fallback time.Duration) time.Duration {
	v, ok := r.get(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return fallback
	}
	return time.Duration(n) * time.Millisecond
}
