// Package config loads service configuration from ZOMBIES_* environment
// variables and an optional YAML tuning file.
package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/niczy/zombies/internal/models"
)

const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// Config is shared by the arena and authority services.
type Config struct {
	ArenaAddr     string `env:"ZOMBIES_ARENA_ADDR"     envDefault:":50051"`
	AuthorityAddr string `env:"ZOMBIES_AUTHORITY_ADDR" envDefault:":50052"`
	ProgramID     string `env:"ZOMBIES_PROGRAM_ID"`

	Storage       string `env:"ZOMBIES_STORAGE"        envDefault:"memory"`
	RedisAddr     string `env:"ZOMBIES_REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string `env:"ZOMBIES_REDIS_PASSWORD"`
	RedisDB       int    `env:"ZOMBIES_REDIS_DB"       envDefault:"0"`
	RedisPrefix   string `env:"ZOMBIES_REDIS_PREFIX"   envDefault:"zombies"`

	S3Bucket    string `env:"ZOMBIES_S3_BUCKET"`
	S3Prefix    string `env:"ZOMBIES_S3_PREFIX"`
	S3Region    string `env:"ZOMBIES_S3_REGION"     envDefault:"us-east-1"`
	S3Endpoint  string `env:"ZOMBIES_S3_ENDPOINT"`
	S3AccessKey string `env:"ZOMBIES_S3_ACCESS_KEY"`
	S3SecretKey string `env:"ZOMBIES_S3_SECRET_KEY"`
	S3PathStyle bool   `env:"ZOMBIES_S3_PATH_STYLE" envDefault:"false"`

	SessionDB           string        `env:"ZOMBIES_SESSION_DB"            envDefault:"zombies-sessions.db"`
	SessionIssuer       string        `env:"ZOMBIES_SESSION_ISSUER"        envDefault:"zombies-authority"`
	SessionMaxTTL       time.Duration `env:"ZOMBIES_SESSION_MAX_TTL"       envDefault:"24h"`
	AuthorityPublicKey  string        `env:"ZOMBIES_AUTHORITY_PUBLIC_KEY"`
	AuthorityPrivateKey string        `env:"ZOMBIES_AUTHORITY_PRIVATE_KEY"`

	MaxClockSkew time.Duration `env:"ZOMBIES_MAX_CLOCK_SKEW" envDefault:"5m"`
	AuditDir     string        `env:"ZOMBIES_AUDIT_DIR"`
	TuningPath   string        `env:"ZOMBIES_TUNING_PATH"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Storage = strings.ToLower(strings.TrimSpace(cfg.Storage))
	switch cfg.Storage {
	case StorageMemory, StorageRedis:
	default:
		return Config{}, fmt.Errorf("ZOMBIES_STORAGE must be %q or %q, got %q", StorageMemory, StorageRedis, cfg.Storage)
	}
	if strings.TrimSpace(cfg.ProgramID) == "" {
		return Config{}, fmt.Errorf("ZOMBIES_PROGRAM_ID is required")
	}
	if _, err := cfg.Program(); err != nil {
		return Config{}, err
	}
	if cfg.SessionMaxTTL <= 0 {
		return Config{}, fmt.Errorf("ZOMBIES_SESSION_MAX_TTL must be positive")
	}
	if cfg.MaxClockSkew <= 0 {
		return Config{}, fmt.Errorf("ZOMBIES_MAX_CLOCK_SKEW must be positive")
	}
	return cfg, nil
}

// Program returns the program identity.
func (c Config) Program() (models.Pubkey, error) {
	id, err := models.ParsePubkey(strings.TrimSpace(c.ProgramID))
	if err != nil {
		return models.Pubkey{}, fmt.Errorf("ZOMBIES_PROGRAM_ID: %w", err)
	}
	return id, nil
}

// VerifyKey returns the session authority public key, or nil when sessions are disabled.
func (c Config) VerifyKey() (ed25519.PublicKey, error) {
	raw := strings.TrimSpace(c.AuthorityPublicKey)
	if raw == "" {
		if strings.TrimSpace(c.AuthorityPrivateKey) == "" {
			return nil, nil
		}
		priv, err := c.SigningKey()
		if err != nil {
			return nil, err
		}
		return priv.Public().(ed25519.PublicKey), nil
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode ZOMBIES_AUTHORITY_PUBLIC_KEY: %w", err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("ZOMBIES_AUTHORITY_PUBLIC_KEY must be %d bytes", ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(b), nil
}

// SigningKey returns the session authority private key. Both the 32-byte seed
// and the 64-byte expanded form are accepted.
func (c Config) SigningKey() (ed25519.PrivateKey, error) {
	raw := strings.TrimSpace(c.AuthorityPrivateKey)
	if raw == "" {
		return nil, fmt.Errorf("ZOMBIES_AUTHORITY_PRIVATE_KEY is required")
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode ZOMBIES_AUTHORITY_PRIVATE_KEY: %w", err)
	}
	switch len(b) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(b), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(b), nil
	default:
		return nil, fmt.Errorf("ZOMBIES_AUTHORITY_PRIVATE_KEY must be %d or %d bytes", ed25519.SeedSize, ed25519.PrivateKeySize)
	}
}

// Tuning holds gameplay constants that may change without a rebuild.
type Tuning struct {
	RestIntervalSeconds int `yaml:"rest_interval_seconds"`
}

// RestInterval returns the zombie cooldown; zero means the program default.
func (t Tuning) RestInterval() time.Duration {
	return time.Duration(t.RestIntervalSeconds) * time.Second
}

// LoadTuning reads a tuning file. An empty path yields zero tuning.
func LoadTuning(path string) (Tuning, error) {
	var t Tuning
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if t.RestIntervalSeconds < 0 {
		return t, fmt.Errorf("tuning.yaml: rest_interval_seconds must not be negative")
	}
	return t, nil
}
