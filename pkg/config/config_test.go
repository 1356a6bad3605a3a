package config

import (
	"os"
	"path/filepath"
	"testing"
)

func Test_LoadConfig_Applies_File_Then_Overrides_Over_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "publisher.jsonc")

	content := `{
  // market data feed A
  "publisher_name": "feed-a",
  "listen_address": "/tmp/feed-a.sock",
  "recovery_worker_count": 8,
}`

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadConfig(LoadInput{
		ConfigPath: path,
		Overrides:  Config{RecoveryWorkerCount: 16},
	})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.PublisherName != "feed-a" {
		t.Fatalf("PublisherName=%q, want feed-a", cfg.PublisherName)
	}

	if cfg.ListenAddress != "/tmp/feed-a.sock" {
		t.Fatalf("ListenAddress=%q, want /tmp/feed-a.sock", cfg.ListenAddress)
	}

	if cfg.RecoveryWorkerCount != 16 {
		t.Fatalf("RecoveryWorkerCount=%d, want 16 (override wins)", cfg.RecoveryWorkerCount)
	}

	if cfg.Network != "unix" {
		t.Fatalf("Network=%q, want default unix", cfg.Network)
	}
}

func Test_LoadConfig_Rejects_Missing_PublisherName(t *testing.T) {
	_, err := LoadConfig(LoadInput{})
	if err == nil {
		t.Fatalf("LoadConfig: want error for missing publisher_name, got nil")
	}
}

func Test_LoadConfig_Rejects_Unknown_SequenceStoreBackend(t *testing.T) {
	_, err := LoadConfig(LoadInput{
		Overrides: Config{PublisherName: "x", SequenceStoreBackend: "bogus"},
	})
	if err == nil {
		t.Fatalf("LoadConfig: want error for unknown sequence_store_backend, got nil")
	}
}
