package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the symcache configuration file (~/.config/symcache/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	CachesDir string `yaml:"caches_dir"`

	// Server
	ServerAddress string   `yaml:"server_address"`
	OpenCaches    *int64   `yaml:"open_caches"`
	RateLimit     *float64 `yaml:"rate_limit"`
	VerifyOnOpen  *bool    `yaml:"verify_on_open"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "symcache", "config.yaml")
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	return loadConfigFrom(configPath())
}

func loadConfigFrom(path string) Config {
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}

// applyCachesDirConfig fills --caches-dir from the config file when the flag was not set.
func applyCachesDirConfig(c *cli.Command, cfg Config) {
	if cfg.CachesDir != "" && !c.IsSet("caches-dir") {
		cachesDir = cfg.CachesDir
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string, openCaches *int64, rateLimit *float64, verifyOnOpen *bool) {
	applyCachesDirConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.OpenCaches != nil && !c.IsSet("open-caches") {
		*openCaches = *cfg.OpenCaches
	}
	if cfg.RateLimit != nil && !c.IsSet("rate-limit") {
		*rateLimit = *cfg.RateLimit
	}
	if cfg.VerifyOnOpen != nil && !c.IsSet("verify-on-open") {
		*verifyOnOpen = *cfg.VerifyOnOpen
	}
}
