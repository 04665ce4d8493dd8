package config

import "time"

// DefaultConfig returns the configuration used when no YAML file is
// present, tuned for a single-process local deployment.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:               "0.0.0.0",
			WSPort:           8000,
			HTTPPort:         8080,
			HandshakeTimeout: 10 * time.Second,
			IdleTimeout:      5 * time.Minute,
		},
		Log: LogConfig{
			Level: "INFO",
			Dir:   "data/logs",
			File:  "server.log",
		},
		Audio: AudioConfig{
			SampleRateHz:  16000,
			Channels:      1,
			FrameMillis:   20,
			PrerollMillis: 100, // 5 preroll frames at the 20ms frame size
		},
		VAD: VADConfig{
			SpeechThreshold:         0.45,
			SilenceThreshold:        0.2,
			NoiseBufferClearSeconds: 1.0,
		},
		Segmenter: SegmenterConfig{
			SilenceFramesRequired: 10,
			MinUtteranceSeconds:   0.3,
			MaxUtteranceSeconds:   20.0,
		},
		Dialog: DialogConfig{
			BaseURL:         "http://127.0.0.1:8090/v1",
			Model:           "local",
			SystemPrompt:    "You are a concise, friendly voice assistant. Keep replies short.",
			MaxHistoryTurns: 10,
			Temperature:     0.7,
			RequestTimeout:  30 * time.Second,
			RetryAttempts:   3,
			RetryBaseDelay:  time.Second,
			ToolsEnabled:    true,
			ToolsCommand:    "voxd-tools",
			ToolsArgs:       nil,
		},
		STT: STTConfig{
			BaseURL: "http://127.0.0.1:8091/v1",
			Model:   "whisper-1",
		},
		Splitter: SplitterConfig{
			MinChunkRunes: 8,
			PrefetchDepth: 2,
		},
		Synth: SynthConfig{
			Provider: "piper",
			Voice:    "en_US-default",
			CacheDir: "data/tts_cache",
			RetryAttempts: 2,
			RetryDelay:    500 * time.Millisecond,
		},
		Backend: BackendConfig{
			ExePath:          "llama-server",
			Args:             []string{"-m", "model.gguf", "-c", "4096", "--port", "8090"},
			HealthURL:        "http://127.0.0.1:8090/health",
			StartupTimeout:   60 * time.Second,
			HealthInterval:   30 * time.Second,
			HealthTimeout:    5 * time.Second,
			FailureThreshold: 3,
			MaxRestarts:      5,
			BackoffInitial:   time.Second,
			BackoffMax:       30 * time.Second,
		},
		Storage: StorageConfig{
			Backend: "file",
			File:    FileStoreConfig{Dir: "data/sessions"},
			SQLite:  SQLiteStoreConfig{DSN: "data/sessions.db"},
			Redis:   RedisStoreConfig{Addr: "127.0.0.1:6379", Prefix: "voxd:session:"},
		},
		Auth: AuthConfig{Enabled: false},
		Web: WebConfig{
			Enabled:   true,
			StaticDir: "web/dist",
		},
	}
}
