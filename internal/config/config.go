package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all companion configuration loaded from environment variables.
type Config struct {
	Port       string `env:"PORT"          envDefault:"8080"`
	APIBaseURL string `env:"API_BASE_URL"  envDefault:"http://localhost:3001/api"`
	Platform   string `env:"PLATFORM_NAME" envDefault:"Tipfinity"`
	LogLevel   string `env:"LOG_LEVEL"     envDefault:"info"`

	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"15s"`

	SessionBackend string `env:"SESSION_BACKEND"           envDefault:"file"`
	SessionFile    string `env:"SESSION_FILE"`
	SessionPrefix  string `env:"SESSION_REDIS_PREFIX"      envDefault:"tipfinity:"`
	DisconnectMode string `env:"SESSION_DISCONNECT_POLICY" envDefault:"always"`

	RedisAddr     string `env:"REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	MinioEndpoint  string `env:"MINIO_ENDPOINT"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY"`
	MinioBucket    string `env:"MINIO_BUCKET"     envDefault:"tipfinity-avatars"`
	MinioPublicURL string `env:"MINIO_PUBLIC_URL"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL"    envDefault:"false"`

	PriceAPIURL string        `env:"PRICE_API_URL" envDefault:"https://api.coingecko.com"`
	PriceTTL    time.Duration `env:"PRICE_TTL"     envDefault:"60s"`

	WalletKeystore   string `env:"WALLET_KEYSTORE"`
	WalletPassphrase string `env:"WALLET_PASSPHRASE"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://localhost:3000"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	switch c.SessionBackend {
	case "file", "redis":
	default:
		return fmt.Errorf("SESSION_BACKEND must be file or redis, got %q", c.SessionBackend)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	if c.WalletKeystore != "" && c.WalletPassphrase == "" {
		return fmt.Errorf("WALLET_PASSPHRASE is required with WALLET_KEYSTORE")
	}
	return nil
}

// MinioEnabled reports whether avatar uploads go to object storage.
func (c *Config) MinioEnabled() bool {
	return c.MinioEndpoint != "" && c.MinioAccessKey != "" && c.MinioSecretKey != ""
}
