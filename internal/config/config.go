// Package config provides configuration loading and validation for odns.
//
// Configuration is loaded with the following priority (highest to lowest):
//  1. Command-line flags (not handled here, see cmd/odns/main.go)
//  2. Environment variables (ODNS_* prefix)
//  3. YAML config file (if specified with --config)
//  4. Hardcoded defaults
//
// Environment variables are mapped from ODNS_CATEGORY_SETTING format, e.g.,
// ODNS_SERVER_HOST maps to server.host in YAML.
//
// All configuration is validated during Load() to ensure correctness early.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// MinWorkers and MaxWorkers bound the number of query-handling worker
// goroutines sharing the server's single UDP socket and TCP listener.
const (
	MinWorkers     = 1
	MaxWorkers     = 10
	DefaultWorkers = 5
)

// initConfig sets up the config loader with defaults, env binding, and config file.
func initConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	// Uses ODNS_ prefix: ODNS_SERVER_HOST -> server.host
	v.SetEnvPrefix("ODNS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 53)
	v.SetDefault("server.workers", DefaultWorkers)

	v.SetDefault("upstream.host", "1.1.1.1")
	v.SetDefault("upstream.port", 53)
	v.SetDefault("upstream.timeout", "2s")

	v.SetDefault("lists.denylist_path", "")
	v.SetDefault("lists.hosts_path", "")

	v.SetDefault("database.path", "odns.sqlite3")

	v.SetDefault("cache.capacity", 1000)

	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.structured", false)
	v.SetDefault("logging.structured_format", "json")
	v.SetDefault("logging.include_pid", false)
	v.SetDefault("logging.extra_fields", map[string]string{})

	// Default to disabled and bound to localhost for safety.
	v.SetDefault("api.enabled", false)
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.api_key", "")
}

// loadFromSource loads configuration from file and environment.
func loadFromSource(configPath string) (*Config, error) {
	v, err := initConfig(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	loadServerConfig(v, cfg)
	loadUpstreamConfig(v, cfg)
	loadListsConfig(v, cfg)
	loadDatabaseConfig(v, cfg)
	loadCacheConfig(v, cfg)
	loadLoggingConfig(v, cfg)
	loadAPIConfig(v, cfg)

	if err := normalizeConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadServerConfig(v *viper.Viper, cfg *Config) {
	cfg.Server.Host = v.GetString("server.host")
	cfg.Server.Port = v.GetInt("server.port")
	cfg.Server.Workers = v.GetInt("server.workers")
}

func loadUpstreamConfig(v *viper.Viper, cfg *Config) {
	cfg.Upstream.Host = v.GetString("upstream.host")
	cfg.Upstream.Port = v.GetInt("upstream.port")
	cfg.Upstream.Timeout = v.GetString("upstream.timeout")
}

func loadListsConfig(v *viper.Viper, cfg *Config) {
	cfg.Lists.DenylistPath = v.GetString("lists.denylist_path")
	cfg.Lists.HostsPath = v.GetString("lists.hosts_path")
}

func loadDatabaseConfig(v *viper.Viper, cfg *Config) {
	cfg.Database.Path = v.GetString("database.path")
}

func loadCacheConfig(v *viper.Viper, cfg *Config) {
	cfg.Cache.Capacity = v.GetInt("cache.capacity")
}

func loadLoggingConfig(v *viper.Viper, cfg *Config) {
	cfg.Logging.Level = strings.ToUpper(v.GetString("logging.level"))
	cfg.Logging.Structured = v.GetBool("logging.structured")
	cfg.Logging.StructuredFormat = v.GetString("logging.structured_format")
	cfg.Logging.IncludePID = v.GetBool("logging.include_pid")
	cfg.Logging.ExtraFields = v.GetStringMapString("logging.extra_fields")
}

func loadAPIConfig(v *viper.Viper, cfg *Config) {
	cfg.API.Enabled = v.GetBool("api.enabled")
	cfg.API.Host = v.GetString("api.host")
	cfg.API.Port = v.GetInt("api.port")
	cfg.API.APIKey = v.GetString("api.api_key")
}

// normalizeConfig validates and normalizes the configuration.
func normalizeConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New("server.port must be 1..65535")
	}
	if cfg.Server.Workers <= 0 {
		cfg.Server.Workers = DefaultWorkers
	}
	if cfg.Server.Workers > MaxWorkers {
		cfg.Server.Workers = MaxWorkers
	}
	if cfg.Server.Workers < MinWorkers {
		cfg.Server.Workers = MinWorkers
	}

	if cfg.Upstream.Host == "" {
		cfg.Upstream.Host = "1.1.1.1"
	}
	if cfg.Upstream.Port <= 0 || cfg.Upstream.Port > 65535 {
		cfg.Upstream.Port = 53
	}
	if cfg.Upstream.Timeout == "" {
		cfg.Upstream.Timeout = "2s"
	}

	if cfg.Cache.Capacity <= 0 {
		cfg.Cache.Capacity = 1000
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "odns.sqlite3"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}

	if cfg.API.Host == "" {
		cfg.API.Host = "127.0.0.1"
	}
	if cfg.API.Enabled {
		if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
			return errors.New("api.port must be 1..65535")
		}
	}

	return nil
}
