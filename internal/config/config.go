// Package config holds the tool configuration with optional YAML file
// overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML either as a Go
// duration string ("10s", "1m30s") or as a bare number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := value.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("config: invalid duration value on line %d", value.Line)
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full tool configuration.
type Config struct {
	// RPCURL is the Solana JSON-RPC endpoint.
	RPCURL string `yaml:"rpc_url"`

	// CoinGeckoURL is the base URL of the price API.
	CoinGeckoURL string `yaml:"coingecko_url"`

	// BatchSize and Cooldown shape the RPC request batching.
	BatchSize int      `yaml:"batch_size"`
	Cooldown  Duration `yaml:"cooldown"`

	HTTPTimeout   Duration `yaml:"http_timeout"`
	RetryAttempts int      `yaml:"retry_attempts"`

	// CachePath points at the SQLite price cache; empty disables caching.
	CachePath string `yaml:"cache_path"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the configuration used without a config file. The
// batching values match what the public mainnet RPC endpoint tolerates.
func Default() Config {
	return Config{
		RPCURL:        "https://api.mainnet-beta.solana.com",
		CoinGeckoURL:  "https://api.coingecko.com",
		BatchSize:     38,
		Cooldown:      Duration(10 * time.Second),
		HTTPTimeout:   Duration(30 * time.Second),
		RetryAttempts: 3,
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// Load returns Default overlaid with the YAML file at path. An empty
// path means defaults only.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("cooldown must not be negative")
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("retry_attempts must be at least 1, got %d", c.RetryAttempts)
	}
	return nil
}
