package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Tipos de store soportados por SESSION_STORE.
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config centraliza la configuración del cliente.
type Config struct {
	APIBaseURL       string        `env:"API_BASE_URL" envDefault:"http://localhost:5000"`
	HTTPTimeout      time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	SessionStore     string        `env:"SESSION_STORE" envDefault:"file"`
	SessionFile      string        `env:"SESSION_FILE"`
	EncryptionKey    string        `env:"SESSION_ENCRYPTION_KEY"`
	InstallationID   string        `env:"INSTALLATION_ID"`
	RedisAddr        string        `env:"REDIS_ADDR"`
	RedisPassword    string        `env:"REDIS_PASSWORD"`
	RedisDB          int           `env:"REDIS_DB" envDefault:"0"`
	HealthTimeout    time.Duration `env:"HEALTH_TIMEOUT" envDefault:"5s"`
	HealthRetries    int           `env:"HEALTH_RETRIES" envDefault:"2"`
	HealthRetryDelay time.Duration `env:"HEALTH_RETRY_DELAY" envDefault:"1s"`
	AssetBaseURL     string        `env:"ASSET_BASE_URL"`
	LogDevelopment   bool          `env:"LOG_DEVELOPMENT" envDefault:"false"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	c.SessionStore = strings.ToLower(strings.TrimSpace(c.SessionStore))
	switch c.SessionStore {
	case StoreFile, StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("invalid SESSION_STORE %q", c.SessionStore)
	}
	if c.SessionStore == StoreRedis && c.RedisAddr == "" {
		return fmt.Errorf("SESSION_STORE=redis requires REDIS_ADDR")
	}
	if c.HealthRetries < 0 {
		return fmt.Errorf("invalid HEALTH_RETRIES %d", c.HealthRetries)
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	if c.AssetBaseURL == "" {
		c.AssetBaseURL = c.APIBaseURL
	}
	return nil
}

// SessionDir devuelve el directorio del store de archivos. SESSION_FILE
// tiene prioridad; si no, se usa el directorio de configuración del usuario.
func (c *Config) SessionDir() (string, error) {
	if c.SessionFile != "" {
		return c.SessionFile, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(base, "chat-client"), nil
}
