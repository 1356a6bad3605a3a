// Package config loads the Publisher/Subscriber service configuration: a
// single human-edited JSON-with-comments file, standardized with hujson and
// unmarshaled with encoding/json, layered default -> file -> CLI override.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// Config holds every setting a mdpublisherd/mdsubclient process needs.
type Config struct {
	PublisherID   uint32 `json:"publisher_id"`
	PublisherName string `json:"publisher_name"`

	// Network is "unix" or "tcp". ListenAddress is a filesystem socket path
	// for "unix", or a host:port pair for "tcp".
	Network       string `json:"network"`
	ListenAddress string `json:"listen_address"`

	MessageLogPath string `json:"message_log_path"`
	FlushEvery     int    `json:"flush_every"`

	// SequenceStoreBackend is "file" or "master".
	SequenceStoreBackend string `json:"sequence_store_backend"`
	SequenceStoreDir     string `json:"sequence_store_dir"`
	SequenceMasterPath   string `json:"sequence_master_path"`

	RegistryDir string `json:"registry_dir"`

	RecoveryWorkerCount int `json:"recovery_worker_count"`

	LogPath string `json:"log_path,omitempty"`
}

// DefaultConfig returns the baseline configuration every load starts from.
func DefaultConfig() Config {
	return Config{
		Network:              "unix",
		ListenAddress:        "/tmp/mdpublisherd.sock",
		MessageLogPath:       "./data/messages",
		FlushEvery:           1,
		SequenceStoreBackend: "file",
		SequenceStoreDir:     "./data/sequence",
		RegistryDir:          "./config/registry.d",
		RecoveryWorkerCount:  4,
	}
}

// LoadInput holds LoadConfig's inputs.
type LoadInput struct {
	// ConfigPath is the JSONC config file to load. Required to exist if
	// non-empty; no config file is read if empty.
	ConfigPath string

	// Overrides is applied last, after the file, so CLI flags win.
	Overrides Config
}

// LoadConfig loads configuration with the following precedence (highest
// wins): 1. defaults, 2. ConfigPath's file, 3. Overrides.
func LoadConfig(input LoadInput) (Config, error) {
	cfg := DefaultConfig()

	if input.ConfigPath != "" {
		fileCfg, err := loadConfigFile(input.ConfigPath)
		if err != nil {
			return Config{}, err
		}

		cfg = mergeConfig(cfg, fileCfg)
	}

	cfg = mergeConfig(cfg, input.Overrides)

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC in %q: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON in %q: %w", path, err)
	}

	return cfg, nil
}

// mergeConfig returns base with every non-zero field of overlay applied on
// top. Zero values in overlay mean "not set", so a file or override cannot
// un-set a default by omission.
func mergeConfig(base, overlay Config) Config {
	if overlay.PublisherID != 0 {
		base.PublisherID = overlay.PublisherID
	}

	if overlay.PublisherName != "" {
		base.PublisherName = overlay.PublisherName
	}

	if overlay.Network != "" {
		base.Network = overlay.Network
	}

	if overlay.ListenAddress != "" {
		base.ListenAddress = overlay.ListenAddress
	}

	if overlay.MessageLogPath != "" {
		base.MessageLogPath = overlay.MessageLogPath
	}

	if overlay.FlushEvery != 0 {
		base.FlushEvery = overlay.FlushEvery
	}

	if overlay.SequenceStoreBackend != "" {
		base.SequenceStoreBackend = overlay.SequenceStoreBackend
	}

	if overlay.SequenceStoreDir != "" {
		base.SequenceStoreDir = overlay.SequenceStoreDir
	}

	if overlay.SequenceMasterPath != "" {
		base.SequenceMasterPath = overlay.SequenceMasterPath
	}

	if overlay.RegistryDir != "" {
		base.RegistryDir = overlay.RegistryDir
	}

	if overlay.RecoveryWorkerCount != 0 {
		base.RecoveryWorkerCount = overlay.RecoveryWorkerCount
	}

	if overlay.LogPath != "" {
		base.LogPath = overlay.LogPath
	}

	return base
}

func validateConfig(cfg Config) error {
	if cfg.PublisherName == "" {
		return fmt.Errorf("publisher_name is required")
	}

	if cfg.Network != "unix" && cfg.Network != "tcp" {
		return fmt.Errorf("network must be \"unix\" or \"tcp\", got %q", cfg.Network)
	}

	if cfg.ListenAddress == "" {
		return fmt.Errorf("listen_address is required")
	}

	if cfg.SequenceStoreBackend != "file" && cfg.SequenceStoreBackend != "master" {
		return fmt.Errorf("sequence_store_backend must be \"file\" or \"master\", got %q", cfg.SequenceStoreBackend)
	}

	if cfg.RecoveryWorkerCount < 1 {
		return fmt.Errorf("recovery_worker_count must be >= 1")
	}

	return nil
}
