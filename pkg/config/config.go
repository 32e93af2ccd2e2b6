package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalidBackend is returned when sandbox.backend names no known backend.
var ErrInvalidBackend = errors.New("invalid sandbox backend")

const (
	BackendGoja   = "goja"
	BackendDocker = "docker"

	EnvPrefix = "CODECHAT"
)

type Config struct {
	LogLevel  string        `mapstructure:"log_level"`
	LogFile   string        `mapstructure:"log_file"`
	Latency   time.Duration `mapstructure:"latency"`
	Responder string        `mapstructure:"responder"`
	Sandbox   SandboxConfig `mapstructure:"sandbox"`
	Server    ServerConfig  `mapstructure:"server"`
	Events    EventsConfig  `mapstructure:"events"`
}

type SandboxConfig struct {
	Backend string        `mapstructure:"backend"`
	Timeout time.Duration `mapstructure:"timeout"`
	Image   string        `mapstructure:"image"`
	Memory  string        `mapstructure:"memory"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type EventsConfig struct {
	RedisAddr    string `mapstructure:"redis_addr"`
	RedisChannel string `mapstructure:"redis_channel"`
}

// SetDefaults registers every key so environment variables bind even when no
// config file is present.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "codechat.log")
	v.SetDefault("latency", time.Second)
	v.SetDefault("responder", "canned")
	v.SetDefault("sandbox.backend", BackendGoja)
	v.SetDefault("sandbox.timeout", 5*time.Second)
	v.SetDefault("sandbox.image", "node:20-alpine")
	v.SetDefault("sandbox.memory", "128m")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("events.redis_addr", "")
	v.SetDefault("events.redis_channel", "codechat:events")
}

// New returns a viper instance with defaults and CODECHAT_* env binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path, or the default config file when path is empty, and
// decodes the result. A missing default file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "codechat"))
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		slog.Debug("Loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Sandbox.Backend {
	case BackendGoja, BackendDocker:
	default:
		return fmt.Errorf("%w: %q (supported: %s, %s)", ErrInvalidBackend, c.Sandbox.Backend, BackendGoja, BackendDocker)
	}
	if c.Latency < 0 {
		return fmt.Errorf("latency must not be negative, got %s", c.Latency)
	}
	if c.Sandbox.Timeout <= 0 {
		return fmt.Errorf("sandbox.timeout must be positive, got %s", c.Sandbox.Timeout)
	}
	return nil
}

// SlogLevel maps log_level onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
