package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoader_Load_Defaults(t *testing.T) {
	loader := NewLoader().WithDotEnv(false)
	result, err := loader.Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if result.Config.Server.WSPort != 8000 {
		t.Errorf("expected default ws port 8000, got %d", result.Config.Server.WSPort)
	}
	if result.Path != "" {
		t.Errorf("expected empty path for defaults, got %q", result.Path)
	}
}

func TestLoader_Load_File(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "config.yaml")

	content := `
server:
  ip: "127.0.0.1"
  ws_port: 9001
  http_port: 9002
log:
  level: "DEBUG"
storage:
  backend: "sqlite"
  sqlite:
    dsn: "test.db"
synth:
  provider: "edge"
`
	if err := os.WriteFile(configFile, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	loader := NewLoader().WithDotEnv(false)
	result, err := loader.Load(configFile)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if result.Config.Server.IP != "127.0.0.1" {
		t.Errorf("expected server ip 127.0.0.1, got %s", result.Config.Server.IP)
	}
	if result.Config.Server.WSPort != 9001 {
		t.Errorf("expected ws port 9001, got %d", result.Config.Server.WSPort)
	}
	if result.Config.Log.Level != "DEBUG" {
		t.Errorf("expected log level DEBUG, got %s", result.Config.Log.Level)
	}
	if result.Config.Storage.Backend != "sqlite" {
		t.Errorf("expected storage backend sqlite, got %s", result.Config.Storage.Backend)
	}
}

func TestLoader_Load_UnknownField(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "config.yaml")
	if err := os.WriteFile(configFile, []byte("server:\n  not_a_real_field: true\n"), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	loader := NewLoader().WithDotEnv(false)
	if _, err := loader.Load(configFile); err == nil {
		t.Error("expected error for unknown config field, got nil")
	}
}

func TestLoader_Validate(t *testing.T) {
	loader := NewLoader()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid ws port",
			mutate:  func(c *Config) { c.Server.WSPort = 70000 },
			wantErr: true,
		},
		{
			name:    "unknown storage backend",
			mutate:  func(c *Config) { c.Storage.Backend = "memcached" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := loader.validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
