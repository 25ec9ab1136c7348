// Package config provides configuration loading and structs for the Omoide server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Memory    MemoryConfig    `yaml:"memory"`
	Generator GeneratorConfig `yaml:"generator"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the conversation archive and session database.
type StorageConfig struct {
	DataDir      string `yaml:"data_dir"`
	DatabasePath string `yaml:"database_path"`
}

// MemoryConfig holds retrieval settings for the conversation store.
type MemoryConfig struct {
	TopN       int     `yaml:"top_n"`
	MinScore   float64 `yaml:"min_score"`
	Dimensions int     `yaml:"dimensions"`
	CacheSize  int     `yaml:"cache_size"`
}

// GeneratorConfig holds Gemini settings. The API key can also come from the
// GOOGLE_API_KEY environment variable, which takes precedence.
type GeneratorConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// Load reads and parses the config file at path, expands paths, and applies
// defaults and the environment overlay. Returns an error if the file cannot
// be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	applyEnv(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)

	return &cfg, nil
}

// Default returns a config with defaults and the environment overlay applied,
// for running without a config file.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	applyEnv(&cfg)
	return &cfg
}

// applyEnv overlays environment variables onto cfg.
func applyEnv(cfg *Config) {
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		cfg.Generator.APIKey = key
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home
// directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
