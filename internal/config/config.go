// Package config loads the proctrace configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the root of the configuration file.
type Config struct {
	WorkDir  string         `mapstructure:"work_dir"`
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Hub      HubConfig      `mapstructure:"hub"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Reaper   ReaperConfig   `mapstructure:"reaper"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type StoreConfig struct {
	Backend string      `mapstructure:"backend"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig configures the redis snapshot store. ClaimTTL bounds how long a process name
// stays claimed across replicas when its owner dies; zero disables name claims.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
	ClaimTTL time.Duration `mapstructure:"claim_ttl"`
}

type HubConfig struct {
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	ReconnectHint time.Duration `mapstructure:"reconnect_hint"`
	Buffer        int           `mapstructure:"buffer"`
	StallTimeout  time.Duration `mapstructure:"stall_timeout"`
}

type DispatchConfig struct {
	Queue int `mapstructure:"queue"`
}

// ReaperConfig configures the stale process reaper. A zero MaxAge disables it.
type ReaperConfig struct {
	MaxAge   time.Duration `mapstructure:"max_age"`
	Interval time.Duration `mapstructure:"interval"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		WorkDir: ".",
		Log:     LogConfig{Level: "info"},
		Server:  ServerConfig{Addr: ":8080"},
		Store: StoreConfig{
			Backend: BackendFile,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "proctrace:",
			},
		},
		Hub: HubConfig{
			IdleTimeout:   10 * time.Minute,
			ReconnectHint: time.Second,
			Buffer:        64,
			StallTimeout:  30 * time.Second,
		},
		Dispatch: DispatchConfig{Queue: 1024},
		Reaper:   ReaperConfig{Interval: time.Minute},
	}
}

// Load reads a YAML or JSON file (by extension) on top of Default.
// An empty path or a missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	raw := map[string]any{}
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &raw); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	} else {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	}

	if err := Decode(raw, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Decode applies raw onto cfg. Durations accept strings such as "10m".
func Decode(raw map[string]any, cfg *Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("failed to build config decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Validate checks the values Load cannot fix by defaulting.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendFile, BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("invalid config: unknown store backend %q", c.Store.Backend)
	}
	if c.Hub.Buffer < 1 {
		return fmt.Errorf("invalid config: hub.buffer must be positive")
	}
	if c.Hub.StallTimeout < 0 {
		return fmt.Errorf("invalid config: hub.stall_timeout cannot be negative")
	}
	if c.Dispatch.Queue < 1 {
		return fmt.Errorf("invalid config: dispatch.queue must be positive")
	}
	if c.Reaper.MaxAge < 0 {
		return fmt.Errorf("invalid config: reaper.max_age cannot be negative")
	}
	return nil
}
