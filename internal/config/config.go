// Package config loads l3vision configuration from YAML, .env and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for l3vision. It is built once at start-up
// and passed to the components that need it.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Gateway       GatewayConfig       `yaml:"gateway"`
	Conversion    ConversionConfig    `yaml:"conversion"`
	Slides        SlidesConfig        `yaml:"slides"`
	Auth          AuthConfig          `yaml:"auth"`
	Session       SessionConfig       `yaml:"session"`
	Upload        UploadConfig        `yaml:"upload"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// GatewayConfig holds the OpenRouter model gateway settings.
type GatewayConfig struct {
	APIKey       string              `yaml:"api_key"`
	BaseURL      string              `yaml:"base_url"`
	AppName      string              `yaml:"app_name"`
	AppURL       string              `yaml:"app_url"`
	DefaultModel string              `yaml:"default_model"`
	Temperature  float64             `yaml:"temperature"`
	Timeout      time.Duration       `yaml:"timeout"`
	Models       map[string][]string `yaml:"models"`
	// ProviderOrder fixes the listing order of Models.
	ProviderOrder []string `yaml:"provider_order"`
}

// ConversionConfig holds document normalization settings.
type ConversionConfig struct {
	DPI          int `yaml:"dpi"`
	MaxDimension int `yaml:"max_dimension"`
	JPEGQuality  int `yaml:"jpeg_quality"`
	// PreserveSinglePageAspect resizes single pages like composites (width
	// to max, height proportional) instead of to an exact square.
	PreserveSinglePageAspect bool `yaml:"preserve_single_page_aspect"`
}

// SlidesConfig holds the slide-deck conversion service settings.
type SlidesConfig struct {
	APIKey   string        `yaml:"api_key"`
	Endpoint string        `yaml:"endpoint"`
	MaxBytes int64         `yaml:"max_bytes"`
	Timeout  time.Duration `yaml:"timeout"`
}

// AuthConfig holds Google OAuth2 login settings.
type AuthConfig struct {
	Enabled        bool     `yaml:"enabled"`
	ClientID       string   `yaml:"client_id"`
	ClientSecret   string   `yaml:"client_secret"`
	RedirectURL    string   `yaml:"redirect_url"`
	CookieHashKey  string   `yaml:"cookie_hash_key"`
	CookieBlockKey string   `yaml:"cookie_block_key"`
	AllowedDomains []string `yaml:"allowed_domains"`
	SecureCookies  bool     `yaml:"secure_cookies"`
}

// SessionConfig holds chat session storage settings.
type SessionConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// UploadConfig holds upload limits.
type UploadConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies environment
// overrides. A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		// A models map in the file replaces the defaults instead of merging.
		var gw struct {
			Gateway struct {
				Models map[string][]string `yaml:"models"`
			} `yaml:"gateway"`
		}
		if err := yaml.Unmarshal(data, &gw); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		if gw.Gateway.Models != nil {
			cfg.Gateway.Models = nil
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8502,
			ReadTimeout:      60 * time.Second,
			WriteTimeout:     180 * time.Second,
			IdleTimeout:      120 * time.Second,
			RequestTimeout:   170 * time.Second,
			GracefulShutdown: 10 * time.Second,
		},
		Gateway: GatewayConfig{
			BaseURL:      "https://openrouter.ai/api/v1",
			AppName:      "VQA Chatbot",
			AppURL:       "http://localhost:8502/",
			DefaultModel: "google/gemini-3-pro-preview",
			Temperature:  0.0,
			Timeout:      150 * time.Second,
			Models: map[string][]string{
				"llama": {
					"meta-llama/llama-3.2-11b-vision-instruct",
					"meta-llama/llama-4-maverick",
				},
				"google": {
					"google/gemini-3-pro-preview",
				},
			},
			ProviderOrder: []string{"llama", "google"},
		},
		Conversion: ConversionConfig{
			DPI:          200,
			MaxDimension: 1024,
			JPEGQuality:  75,
		},
		Slides: SlidesConfig{
			Endpoint: "https://api.cloudmersive.com/convert/pptx/to/pdf",
			MaxBytes: 3 * 1024 * 1024,
			Timeout:  60 * time.Second,
		},
		Auth: AuthConfig{
			Enabled:     false,
			RedirectURL: "http://localhost:8502/oauth2callback",
		},
		Session: SessionConfig{
			Driver:     "memory",
			TTL:        24 * time.Hour,
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
				Prefix:   "l3v:",
			},
		},
		Upload: UploadConfig{
			MaxBytes: 20 * 1024 * 1024,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "l3vision",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Conversion.DPI < 36 || c.Conversion.DPI > 600 {
		return fmt.Errorf("conversion dpi must be between 36 and 600, got %d", c.Conversion.DPI)
	}

	if c.Conversion.MaxDimension < 1 {
		return fmt.Errorf("conversion max_dimension must be positive, got %d", c.Conversion.MaxDimension)
	}

	if c.Conversion.JPEGQuality < 1 || c.Conversion.JPEGQuality > 100 {
		return fmt.Errorf("conversion jpeg_quality must be between 1 and 100, got %d", c.Conversion.JPEGQuality)
	}

	if c.Slides.MaxBytes < 1 {
		return fmt.Errorf("slides max_bytes must be positive")
	}

	if c.Session.Driver != "memory" && c.Session.Driver != "redis" {
		return fmt.Errorf("invalid session driver: %s", c.Session.Driver)
	}

	if len(c.Gateway.Models) == 0 {
		return fmt.Errorf("gateway models must list at least one provider")
	}

	if c.Auth.Enabled {
		if c.Auth.ClientID == "" || c.Auth.ClientSecret == "" {
			return fmt.Errorf("auth enabled but OAuth client id/secret not set")
		}
		if len(c.Auth.CookieHashKey) < 32 {
			return fmt.Errorf("auth cookie_hash_key must be at least 32 bytes")
		}
		switch len(c.Auth.CookieBlockKey) {
		case 16, 24, 32:
		default:
			return fmt.Errorf("auth cookie_block_key must be 16, 24 or 32 bytes")
		}
	}

	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}

	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Gateway.DefaultModel = v
	}

	if v := os.Getenv("APP_URL"); v != "" {
		cfg.Gateway.AppURL = v
	}

	if v := os.Getenv("CLOUDMERSIVE_API_KEY"); v != "" {
		cfg.Slides.APIKey = v
	}

	if v := os.Getenv("CONVERSION_DPI"); v != "" {
		if dpi, err := strconv.Atoi(v); err == nil {
			cfg.Conversion.DPI = dpi
		}
	}

	if v := os.Getenv("OAUTH_CLIENT_ID"); v != "" {
		cfg.Auth.ClientID = v
	}

	if v := os.Getenv("OAUTH_CLIENT_SECRET"); v != "" {
		cfg.Auth.ClientSecret = v
	}

	if v := os.Getenv("OAUTH_REDIRECT_URL"); v != "" {
		cfg.Auth.RedirectURL = v
	}

	if v := os.Getenv("COOKIE_HASH_KEY"); v != "" {
		cfg.Auth.CookieHashKey = v
	}

	if v := os.Getenv("COOKIE_BLOCK_KEY"); v != "" {
		cfg.Auth.CookieBlockKey = v
	}

	if v := os.Getenv("AUTH_ENABLED"); v != "" {
		cfg.Auth.Enabled = v == "true"
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Session.Driver = "redis"
		cfg.Session.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
