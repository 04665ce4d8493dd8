package bootstrap

import (
	"testing"

	"voxd-server/internal/platform/config"
)

func TestBuildStore_SelectsBackendByName(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Storage.Backend = "file"
	cfg.Storage.File.Dir = dir

	store, err := buildStore(cfg)
	if err != nil {
		t.Fatalf("buildStore failed: %v", err)
	}
	if store == nil {
		t.Fatal("expected a non-nil store")
	}
}

func TestBuildStore_RejectsUnknownBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Backend = "dynamodb"

	if _, err := buildStore(cfg); err == nil {
		t.Fatal("expected an error for an unknown storage backend")
	}
}

func TestBuildSynthesizer_SelectsProviderByName(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Synth.Provider = "piper"

	s, err := buildSynthesizer(cfg)
	if err != nil {
		t.Fatalf("buildSynthesizer failed: %v", err)
	}
	if s == nil {
		t.Fatal("expected a non-nil synthesizer")
	}
}

func TestBuildSynthesizer_RejectsUnknownProvider(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Synth.Provider = "bogus"

	if _, err := buildSynthesizer(cfg); err == nil {
		t.Fatal("expected an error for an unknown synth provider")
	}
}

func TestBuildSynthesizer_EdgeProviderWithCacheSucceeds(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Synth.Provider = "edge"
	cfg.Synth.CacheDir = t.TempDir()

	s, err := buildSynthesizer(cfg)
	if err != nil {
		t.Fatalf("buildSynthesizer failed: %v", err)
	}
	if s == nil {
		t.Fatal("expected a non-nil synthesizer")
	}
}
