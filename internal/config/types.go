// Package config provides configuration loading for odns using Viper.
// Configuration is loaded from YAML files with automatic environment variable
// binding.
//
// Environment variables use the ODNS_ prefix and underscore-separated keys:
//   - ODNS_SERVER_HOST -> server.host
//   - ODNS_SERVER_PORT -> server.port
//   - ODNS_UPSTREAM_HOST -> upstream.host
//   - ODNS_API_ENABLED -> api.enabled
package config

import (
	"net"
	"os"
	"strconv"
	"strings"
)

// ServerConfig contains listener/worker settings.
type ServerConfig struct {
	Host    string `yaml:"host"     mapstructure:"host"`
	Port    int    `yaml:"port"     mapstructure:"port"`
	Workers int    `yaml:"workers"  mapstructure:"workers"` // 1..10
}

// UpstreamConfig contains the single recursive/forwarding upstream resolver.
type UpstreamConfig struct {
	Host    string `yaml:"host"    mapstructure:"host"`
	Port    int    `yaml:"port"    mapstructure:"port"`
	Timeout string `yaml:"timeout" mapstructure:"timeout"` // e.g. "2s"
}

// Address returns the upstream's host:port.
func (u UpstreamConfig) Address() string {
	return net.JoinHostPort(u.Host, strconv.Itoa(u.Port))
}

// ListsConfig locates the on-disk seed files for the denylist and hosts
// list. Both are optional; an empty path means "start with no entries from
// this source" (the database still seeds any dynamically added entries).
type ListsConfig struct {
	DenylistPath string `yaml:"denylist_path" mapstructure:"denylist_path"`
	HostsPath    string `yaml:"hosts_path"    mapstructure:"hosts_path"`
}

// DatabaseConfig locates the SQLite file backing the query log and the
// dynamic access-list entries added through the admin API.
type DatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// CacheConfig sizes the in-memory response cache.
type CacheConfig struct {
	Capacity int `yaml:"capacity" mapstructure:"capacity"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level            string            `yaml:"level"             mapstructure:"level"             json:"level"`
	Structured       bool              `yaml:"structured"        mapstructure:"structured"        json:"structured"`
	StructuredFormat string            `yaml:"structured_format" mapstructure:"structured_format" json:"structured_format"`
	IncludePID       bool              `yaml:"include_pid"       mapstructure:"include_pid"       json:"include_pid"`
	ExtraFields      map[string]string `yaml:"extra_fields"      mapstructure:"extra_fields"      json:"extra_fields,omitempty"`
}

// APIConfig contains admin HTTP API settings.
//
// Note: APIKey is intentionally treated as a secret and should not be
// returned by API endpoints.
type APIConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Host    string `yaml:"host"    mapstructure:"host"`
	Port    int    `yaml:"port"    mapstructure:"port"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
}

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"   mapstructure:"server"`
	Upstream UpstreamConfig `yaml:"upstream" mapstructure:"upstream"`
	Lists    ListsConfig    `yaml:"lists"    mapstructure:"lists"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Cache    CacheConfig    `yaml:"cache"    mapstructure:"cache"`
	Logging  LoggingConfig  `yaml:"logging"  mapstructure:"logging"`
	API      APIConfig      `yaml:"api"      mapstructure:"api"`
}

// ResolveConfigPath determines the config file path from flag or environment.
func ResolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if v := strings.TrimSpace(os.Getenv("ODNS_CONFIG")); v != "" {
		return v
	}
	return ""
}

// Load loads configuration from a YAML file with environment variable
// overrides. This is the main entry point for loading configuration.
//
// Configuration priority (highest to lowest):
//  1. Environment variables (ODNS_*)
//  2. Config file values
//  3. Default values
func Load(path string) (*Config, error) {
	return loadFromSource(path)
}
