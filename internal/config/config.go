// Package config loads the optional chatflow.yaml used by the CLI and servers.
// JSON files are accepted too since YAML is a superset of JSON.
package config

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "chatflow.yaml"

// Store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Config is the root of the configuration file.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Server    ServerConfig    `yaml:"server"`
	Validator ValidatorConfig `yaml:"validator"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StoreConfig selects where sessions live.
type StoreConfig struct {
	Backend string        `yaml:"backend"`
	Path    string        `yaml:"path"`
	Redis   RedisConfig   `yaml:"redis"`
	LockTTL time.Duration `yaml:"lock_ttl"`

	// EncryptionKey is a base64 AES-256 key. When set, sessions are sealed
	// before they reach the backend. FallbackKeys still open older sessions.
	EncryptionKey string   `yaml:"encryption_key"`
	FallbackKeys  []string `yaml:"fallback_keys"`

	// MaskPatterns are regular expressions over run variable names whose
	// values are masked before saving.
	MaskPatterns []string `yaml:"mask_patterns"`
}

// Keys decodes the encryption keys. It returns a nil active key when
// encryption is off.
func (s StoreConfig) Keys() (active []byte, fallback [][]byte, err error) {
	if s.EncryptionKey == "" {
		if len(s.FallbackKeys) > 0 {
			return nil, nil, errors.New("fallback_keys need an encryption_key")
		}
		return nil, nil, nil
	}
	if active, err = decodeKey(s.EncryptionKey); err != nil {
		return nil, nil, fmt.Errorf("encryption_key: %w", err)
	}
	for i, k := range s.FallbackKeys {
		key, err := decodeKey(k)
		if err != nil {
			return nil, nil, fmt.Errorf("fallback_keys[%d]: %w", i, err)
		}
		fallback = append(fallback, key)
	}
	return active, fallback, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

// ValidatorConfig tunes the structural rules. A nil RequireContainer keeps
// the version-based default.
type ValidatorConfig struct {
	StrictBranching  bool  `yaml:"strict_branching"`
	RequireContainer *bool `yaml:"require_container"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Log:    LogConfig{Level: "info", Format: "text"},
		Store:  StoreConfig{Backend: BackendMemory, LockTTL: 30 * time.Second},
		Server: ServerConfig{Port: 8080},
	}
}

// Load reads path over the defaults. An empty path tries DefaultFile and
// falls back to the defaults when it does not exist.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := Parse(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data into cfg, rejecting unknown keys, and validates it.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode: %w", err)
	}
	return cfg.Validate()
}

// Validate checks the values that cannot be caught by decoding.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendFile:
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			return errors.New("store.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Store.LockTTL < 0 || c.Store.Redis.TTL < 0 {
		return errors.New("durations must not be negative")
	}
	if _, _, err := c.Store.Keys(); err != nil {
		return err
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
