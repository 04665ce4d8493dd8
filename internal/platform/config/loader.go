package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	platformerrors "voxd-server/internal/platform/errors"
)

// Loader reads Config from a YAML file, falling back to DefaultConfig when
// the path doesn't exist, and applies a handful of environment-variable
// overrides for secrets that shouldn't live in a checked-in YAML file.
type Loader struct {
	useDotEnv bool
}

// NewLoader constructs a Loader that also loads a .env file, mirroring the
// teacher's godotenv + os.Getenv split.
func NewLoader() *Loader {
	return &Loader{useDotEnv: true}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// Result captures the loaded configuration and the file it came from, if
// any ("" means defaults were used).
type Result struct {
	Config *Config
	Path   string
}

// Load reads path (or DefaultConfig() if path is empty or missing),
// rejecting unknown YAML keys so a typo in the config file fails loudly
// instead of silently keeping a default.
func (l *Loader) Load(path string) (*Result, error) {
	if l.useDotEnv {
		_ = godotenv.Load()
	}

	cfg := DefaultConfig()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return &Result{Config: cfg, Path: ""}, nil
			}
			return nil, platformerrors.Wrap(platformerrors.KindPermanent, "config.Load", "open config file", err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindPermanent, "config.Load", "decode config file", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := l.validate(cfg); err != nil {
		return nil, err
	}

	return &Result{Config: cfg, Path: path}, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VOXD_BACKEND_EXE"); v != "" {
		cfg.Backend.ExePath = v
	}
	if v := os.Getenv("VOXD_DIALOG_BASE_URL"); v != "" {
		cfg.Dialog.BaseURL = v
	}
	if v := os.Getenv("VOXD_AUTH_SECRET"); v != "" {
		cfg.Auth.Secret = v
		cfg.Auth.Enabled = true
	}
	if v := os.Getenv("VOXD_REDIS_PASSWORD"); v != "" {
		cfg.Storage.Redis.Password = v
	}
}

func (l *Loader) validate(cfg *Config) error {
	if cfg.Server.WSPort <= 0 || cfg.Server.WSPort > 65535 {
		return platformerrors.New(platformerrors.KindPermanent, "config.validate", fmt.Sprintf("invalid ws port %d", cfg.Server.WSPort))
	}
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return platformerrors.New(platformerrors.KindPermanent, "config.validate", fmt.Sprintf("invalid http port %d", cfg.Server.HTTPPort))
	}
	switch cfg.Storage.Backend {
	case "file", "sqlite", "redis":
	default:
		return platformerrors.New(platformerrors.KindPermanent, "config.validate", fmt.Sprintf("unknown storage backend %q", cfg.Storage.Backend))
	}
	switch cfg.Synth.Provider {
	case "piper", "edge":
	default:
		return platformerrors.New(platformerrors.KindPermanent, "config.validate", fmt.Sprintf("unknown synth provider %q", cfg.Synth.Provider))
	}
	return nil
}
