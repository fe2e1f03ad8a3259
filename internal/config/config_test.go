package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := &Config{DefaultProfile: "work", RelayURL: "http://relay:9000", Username: "ana", MarkReadRemote: true}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultProfile != "work" {
		t.Errorf("DefaultProfile = %q, want %q", loaded.DefaultProfile, "work")
	}
	if loaded.RelayURL != "http://relay:9000" {
		t.Errorf("RelayURL = %q", loaded.RelayURL)
	}
	if !loaded.MarkReadRemote {
		t.Error("MarkReadRemote = false, want true")
	}
	if loaded.PageSize != DefaultPageSize {
		t.Errorf("PageSize = %d, want default %d", loaded.PageSize, DefaultPageSize)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load("/nonexistent/config.toml"); err == nil {
		t.Error("Load() expected error for missing file")
	}
	cfg := LoadOrDefault("/nonexistent/config.toml")
	if cfg.RelayURL != DefaultRelayURL {
		t.Errorf("RelayURL = %q, want default", cfg.RelayURL)
	}
}

func TestTypingTTL(t *testing.T) {
	if got := (&Config{}).TypingTTL(); got != 2*time.Second {
		t.Errorf("zero TypingTTL = %v, want 2s", got)
	}
	if got := (&Config{TypingTTLMs: 500}).TypingTTL(); got != 500*time.Millisecond {
		t.Errorf("TypingTTL = %v, want 500ms", got)
	}
}

func TestSavePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
