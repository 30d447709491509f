package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

const (
	dirName    = "cinestream"
	fileName   = "config.json"
	dirPerms   = 0700
	filePerms  = 0600
	DefaultURL = "http://localhost:8080"

	DefaultChunkSizeMB   = 8
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 2 * time.Second
)

// Config holds persisted CLI configuration.
type Config struct {
	ServerURL string         `json:"server_url"`
	Token     string         `json:"token"`
	Upload    UploadSettings `json:"upload"`
}

// UploadSettings tunes the chunked uploader. Zero values mean defaults.
type UploadSettings struct {
	ChunkSizeMB       int `json:"chunk_size_mb,omitempty"`
	RetryAttempts     int `json:"retry_attempts,omitempty"`
	RetryDelaySeconds int `json:"retry_delay_seconds,omitempty"`
}

// ChunkSize returns the chunk size in bytes.
func (u UploadSettings) ChunkSize() int64 {
	if u.ChunkSizeMB <= 0 {
		return DefaultChunkSizeMB * 1024 * 1024
	}
	return int64(u.ChunkSizeMB) * 1024 * 1024
}

func (u UploadSettings) Attempts() int {
	if u.RetryAttempts <= 0 {
		return DefaultRetryAttempts
	}
	return u.RetryAttempts
}

func (u UploadSettings) Delay() time.Duration {
	if u.RetryDelaySeconds <= 0 {
		return DefaultRetryDelay
	}
	return time.Duration(u.RetryDelaySeconds) * time.Second
}

// Path returns the full path to the config file.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, dirName, fileName), nil
}

// Load reads the config from disk. A missing file yields the defaults.
// CINESTREAM_SERVER and CINESTREAM_TOKEN override the stored values.
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if v := os.Getenv("CINESTREAM_SERVER"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("CINESTREAM_TOKEN"); v != "" {
		cfg.Token = v
	}
	return cfg, nil
}

func load() (*Config, error) {
	p, err := Path()
	if err != nil {
		return &Config{ServerURL: DefaultURL}, nil
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{ServerURL: DefaultURL}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultURL
	}
	return &cfg, nil
}

// Save writes the config to disk, creating the directory if needed.
func Save(cfg *Config) error {
	p, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), dirPerms); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, filePerms)
}

// Clear removes the config file.
func Clear() error {
	p, err := Path()
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (c *Config) HasToken() bool {
	return c.Token != ""
}
