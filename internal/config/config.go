// Package config loads the server's TOML configuration file, applying
// environment-variable and flag overrides per spec §6. Grounded on the
// teacher's cmd/eph/main.go Config struct and loadConfig function.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server struct {
		Host           string `toml:"host"`
		Port           int    `toml:"port"`
		IdleTimeoutSec int    `toml:"idle_timeout_seconds"`
	} `toml:"server"`
	Storage struct {
		DataDir string `toml:"data_dir"`
	} `toml:"storage"`
	Limits struct {
		MaxRequestBodyBytes int64 `toml:"max_request_body_bytes"`
		MaxLFSObjectBytes   int64 `toml:"max_lfs_object_bytes"`
	} `toml:"limits"`
	Auth struct {
		AllowUserTokenCreation bool `toml:"allow_user_token_creation"`
	} `toml:"auth"`
	LogLevel string `toml:"log_level"`
}

func defaults() Config {
	var c Config
	c.Server.Host = "0.0.0.0"
	c.Server.Port = 8080
	c.Server.IdleTimeoutSec = 120
	c.Storage.DataDir = "./data"
	c.Limits.MaxRequestBodyBytes = 50 << 20  // 50 MiB
	c.Limits.MaxLFSObjectBytes = 5 << 30     // 5 GiB
	c.Auth.AllowUserTokenCreation = false
	c.LogLevel = "info"
	return c
}

// Load reads path if present (defaults otherwise), then applies the
// CUTMAN_* environment variables per spec §6 ("Flags take precedence over
// env" — callers apply any cobra flag overrides after Load returns).
func Load(path string) (*Config, error) {
	c := defaults()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &c); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat config %s: %w", path, err)
	}

	applyEnv(&c)
	return &c, nil
}

func applyEnv(c *Config) {
	if v := os.Getenv("CUTMAN_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("CUTMAN_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("CUTMAN_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("CUTMAN_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}
