// Package config loads engine configuration from a YAML file with
// environment-variable overrides. A missing file yields the defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Cache    CacheConfig    `yaml:"cache"`
	Resolver ResolverConfig `yaml:"resolver"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port      int    `yaml:"port"`
	TokenFile string `yaml:"token_file"`
}

type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

type CacheConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

type ResolverConfig struct {
	RemoteTimeout time.Duration `yaml:"remote_timeout"`
	DisableSync   bool          `yaml:"disable_sync"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:      8080,
			TokenFile: ".preplab-token",
		},
		Storage: StorageConfig{
			DBPath: "./preplab.db",
		},
		Cache: CacheConfig{
			Path: "./preplab-cache",
		},
		Resolver: ResolverConfig{
			RemoteTimeout: 3 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path (when non-empty and present), then applies PREPLAB_*
// environment overrides on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PREPLAB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PREPLAB_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("PREPLAB_CACHE_PATH"); v != "" {
		cfg.Cache.Path = v
	}
	if v := os.Getenv("PREPLAB_REMOTE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Resolver.RemoteTimeout = d
		}
	}
	if v := os.Getenv("PREPLAB_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
