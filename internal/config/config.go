package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Local cache paths
	DBPath    string `mapstructure:"db-path"`
	AssetDir  string `mapstructure:"asset-dir"`
	FSMDBPath string `mapstructure:"fsm-db-path"`

	// Remote API
	APIBaseURL     string        `mapstructure:"api-base-url"`
	HTTPTimeout    time.Duration `mapstructure:"http-timeout"`
	ProbeTimeout   time.Duration `mapstructure:"probe-timeout"`
	ProbeID        int           `mapstructure:"probe-id"`
	ItemTimeout    time.Duration `mapstructure:"item-timeout"`
	RemoteCacheTTL time.Duration `mapstructure:"remote-cache-ttl"`

	// Assets
	MaxAssetSize int64  `mapstructure:"max-asset-size"`
	S3Region     string `mapstructure:"s3-region"`

	// Bulk warm range
	WarmFrom int `mapstructure:"warm-from"`
	WarmTo   int `mapstructure:"warm-to"`

	// FSM configuration
	FSMMaxRetries int `mapstructure:"fsm-max-retries"`

	// Observability
	MetricsAddr string `mapstructure:"metrics-addr"`
	LogLevel    string `mapstructure:"log-level"`
}

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("db-path", ".artifacts/pokemon.db")
	v.SetDefault("asset-dir", ".artifacts/sprites")
	v.SetDefault("fsm-db-path", ".artifacts/fsm")
	v.SetDefault("api-base-url", "https://pokeapi.co/api/v2")
	v.SetDefault("http-timeout", 10*time.Second)
	v.SetDefault("probe-timeout", 3*time.Second)
	v.SetDefault("probe-id", 1)
	v.SetDefault("item-timeout", 15*time.Second)
	v.SetDefault("remote-cache-ttl", 10*time.Minute)
	v.SetDefault("max-asset-size", 5*1024*1024)
	v.SetDefault("s3-region", "us-east-1")
	v.SetDefault("warm-from", 1)
	v.SetDefault("warm-to", 151)
	v.SetDefault("fsm-max-retries", 5)
	v.SetDefault("metrics-addr", "")
	v.SetDefault("log-level", "info")
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads configuration through the given viper instance
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	// Environment variables (will be POKEDEX_DB_PATH, etc.)
	v.SetEnvPrefix("POKEDEX")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.pokedexos")

	// Read config file (ignore if not found)
	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db-path cannot be empty")
	}
	if c.AssetDir == "" {
		return fmt.Errorf("asset-dir cannot be empty")
	}
	if within(c.AssetDir, c.DBPath) {
		return fmt.Errorf("db-path %q must not be inside asset-dir %q", c.DBPath, c.AssetDir)
	}
	if c.APIBaseURL == "" {
		return fmt.Errorf("api-base-url cannot be empty")
	}
	if c.HTTPTimeout <= 0 || c.ProbeTimeout <= 0 || c.ItemTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.ProbeID <= 0 {
		return fmt.Errorf("probe-id must be positive")
	}
	if c.MaxAssetSize <= 0 {
		return fmt.Errorf("max-asset-size must be positive")
	}
	if c.WarmFrom < 1 || c.WarmTo < c.WarmFrom {
		return fmt.Errorf("warm range %d..%d is invalid", c.WarmFrom, c.WarmTo)
	}
	if c.FSMMaxRetries < 0 {
		return fmt.Errorf("fsm-max-retries must be non-negative")
	}
	return nil
}

// within reports whether path lies inside dir
func within(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
