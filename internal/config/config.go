package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ResolverAPI and ResolverBrowser select how the Kick listener turns a
// channel name into a chatroom id.
const (
	ResolverAPI     = "api"
	ResolverBrowser = "browser"
)

// Config holds the application configuration. Values come from the YAML file,
// overridden by environment variables.
type Config struct {
	AppEnv  string        `yaml:"app_env" env:"APP_ENV"`
	Bus     BusConfig     `yaml:"bus"`
	Health  HealthConfig  `yaml:"health"`
	Kick    KickConfig    `yaml:"kick"`
	Forward ForwardConfig `yaml:"forward"`
	Archive ArchiveConfig `yaml:"archive"`
	S3      S3Config      `yaml:"s3"`
}

// BusConfig holds the pub/sub broker endpoint.
type BusConfig struct {
	Addr string `yaml:"addr" env:"BUS_ADDR"`
}

// HealthConfig holds the liveness/metrics listen address.
type HealthConfig struct {
	Addr string `yaml:"addr" env:"HEALTH_ADDR"`
}

// KickConfig holds Kick-specific configuration.
type KickConfig struct {
	// Resolver is "api" or "browser". The browser resolver drives headless
	// Chrome and survives Cloudflare interstitials the plain API call does not.
	Resolver string `yaml:"resolver" env:"KICK_RESOLVER"`
	// ChatroomID skips resolution entirely when set.
	ChatroomID int `yaml:"chatroom_id" env:"KICK_CHATROOM_ID"`
}

// ForwardConfig controls republishing cleaned records on the bus.
type ForwardConfig struct {
	Enabled bool `yaml:"enabled" env:"FORWARD_ENABLED"`
}

// ArchiveConfig holds the cleaned-record JSONL archive settings.
type ArchiveConfig struct {
	Enabled         bool   `yaml:"enabled" env:"ARCHIVE_ENABLED"`
	OutputDir       string `yaml:"output_dir" env:"ARCHIVE_OUTPUT_DIR"`
	BufferSize      int    `yaml:"buffer_size"`
	RotateMinutes   int    `yaml:"rotate_minutes"`
	RotateMegabytes int    `yaml:"rotate_megabytes"`
	DeleteAfterShip bool   `yaml:"delete_after_ship"`
	ShipMaxRetries  int    `yaml:"ship_max_retries"`
}

// S3Config holds archive shipping configuration. Leaving Bucket empty
// disables shipping; rotated files then stay on disk.
type S3Config struct {
	Bucket          string `yaml:"bucket" env:"S3_BUCKET"`
	Region          string `yaml:"region" env:"S3_REGION"`
	RoleARN         string `yaml:"role_arn" env:"AWS_ROLE_ARN"`
	AccessKeyID     string `yaml:"access_key_id" env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"S3_SECRET_ACCESS_KEY"`
}

// Load reads configuration from path, then applies environment overrides,
// defaults and validation. A missing file is fine: everything has a default
// or an env var.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.AppEnv == "" {
		c.AppEnv = "local"
	}
	if c.Bus.Addr == "" {
		c.Bus.Addr = "localhost:6379"
	}
	if c.Health.Addr == "" {
		c.Health.Addr = ":8080"
	}
	if c.Kick.Resolver == "" {
		c.Kick.Resolver = ResolverAPI
	}
	if c.Archive.OutputDir == "" {
		c.Archive.OutputDir = "./data"
	}
	if c.Archive.BufferSize == 0 {
		c.Archive.BufferSize = 100
	}
	if c.Archive.RotateMinutes == 0 {
		c.Archive.RotateMinutes = 60
	}
	if c.Archive.RotateMegabytes == 0 {
		c.Archive.RotateMegabytes = 100
	}
	if c.Archive.ShipMaxRetries == 0 {
		c.Archive.ShipMaxRetries = 3
	}
}

func (c *Config) validate() error {
	if c.Kick.Resolver != ResolverAPI && c.Kick.Resolver != ResolverBrowser {
		return fmt.Errorf("kick.resolver must be %q or %q, got %q", ResolverAPI, ResolverBrowser, c.Kick.Resolver)
	}
	if c.S3.Bucket != "" {
		if c.S3.Region == "" {
			return fmt.Errorf("s3.region is required when s3.bucket is set")
		}
		if c.S3.RoleARN == "" && c.S3.AccessKeyID == "" {
			return fmt.Errorf("either s3.role_arn (OIDC) or s3.access_key_id (legacy) is required when s3.bucket is set")
		}
		if c.S3.AccessKeyID != "" && c.S3.SecretAccessKey == "" {
			return fmt.Errorf("s3.secret_access_key is required when using access_key_id")
		}
	}
	return nil
}
