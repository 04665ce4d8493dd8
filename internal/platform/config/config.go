// Package config defines the server's typed configuration record and its
// YAML + environment loader.
package config

import "time"

// Config is the top-level server configuration, loaded from a YAML file
// with environment-variable overrides.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Audio      AudioConfig      `yaml:"audio"`
	VAD        VADConfig        `yaml:"vad"`
	Segmenter  SegmenterConfig  `yaml:"segmenter"`
	Dialog     DialogConfig     `yaml:"dialog"`
	STT        STTConfig        `yaml:"stt"`
	Splitter   SplitterConfig   `yaml:"splitter"`
	Synth      SynthConfig      `yaml:"synth"`
	Backend    BackendConfig    `yaml:"backend"`
	Storage    StorageConfig    `yaml:"storage"`
	Auth       AuthConfig       `yaml:"auth"`
	Web        WebConfig        `yaml:"web"`
}

// ServerConfig configures the transport listeners.
type ServerConfig struct {
	IP             string        `yaml:"ip"`
	WSPort         int           `yaml:"ws_port"`
	HTTPPort       int           `yaml:"http_port"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
}

// LogConfig configures internal/platform/logging.
type LogConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
	File  string `yaml:"file"`
}

// AudioConfig describes the fixed audio contract §2 of the protocol: 16kHz
// mono PCM float32, framed in 20ms chunks.
type AudioConfig struct {
	SampleRateHz   int `yaml:"sample_rate_hz"`
	Channels       int `yaml:"channels"`
	FrameMillis    int `yaml:"frame_millis"`
	PrerollMillis  int `yaml:"preroll_millis"`
}

// VADConfig configures the energy-based default VAD provider, thresholds
// grounded in the Python original's vad.py defaults.
type VADConfig struct {
	SpeechThreshold float64 `yaml:"speech_threshold"`
	SilenceThreshold float64 `yaml:"silence_threshold"`
	NoiseBufferClearSeconds float64 `yaml:"noise_buffer_clear_seconds"`
}

// SegmenterConfig configures utterance segmentation (§4.1).
type SegmenterConfig struct {
	SilenceFramesRequired int     `yaml:"silence_frames_required"`
	MinUtteranceSeconds   float64 `yaml:"min_utterance_seconds"`
	MaxUtteranceSeconds   float64 `yaml:"max_utterance_seconds"`
}

// DialogConfig configures the streaming dialog engine (§4.3) and its
// OpenAI-compatible client against the local backend.
type DialogConfig struct {
	BaseURL         string        `yaml:"base_url"`
	Model           string        `yaml:"model"`
	SystemPrompt    string        `yaml:"system_prompt"`
	MaxHistoryTurns int           `yaml:"max_history_turns"`
	Temperature     float32       `yaml:"temperature"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay"`
	ToolsEnabled    bool          `yaml:"tools_enabled"`
	ToolsCommand    string        `yaml:"tools_command"`
	ToolsArgs       []string      `yaml:"tools_args"`
}

// STTConfig points the transcriber at an OpenAI-audio-API-compatible
// local speech-to-text server (e.g. a whisper.cpp server).
type STTConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// SplitterConfig configures sentence splitting and the prefetch queue.
type SplitterConfig struct {
	MinChunkRunes int `yaml:"min_chunk_runes"`
	PrefetchDepth int `yaml:"prefetch_depth"`
}

// SynthConfig configures the Synthesizer and its retry/caching behavior.
type SynthConfig struct {
	Provider      string        `yaml:"provider"` // "piper" | "edge"
	Voice         string        `yaml:"voice"`
	PiperExePath  string        `yaml:"piper_exe_path"`
	PiperModelPath string       `yaml:"piper_model_path"`
	CacheDir      string        `yaml:"cache_dir"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// BackendConfig configures the supervised external LLM backend process
// (§4.6): launch command, health polling, and restart policy.
type BackendConfig struct {
	ExePath              string        `yaml:"exe_path"`
	Args                 []string      `yaml:"args"`
	WorkDir              string        `yaml:"work_dir"`
	HealthURL            string        `yaml:"health_url"`
	StartupTimeout       time.Duration `yaml:"startup_timeout"`
	HealthInterval       time.Duration `yaml:"health_interval"`
	HealthTimeout        time.Duration `yaml:"health_timeout"`
	FailureThreshold     int           `yaml:"failure_threshold"`
	MaxRestarts          int           `yaml:"max_restarts"`
	BackoffInitial       time.Duration `yaml:"backoff_initial"`
	BackoffMax           time.Duration `yaml:"backoff_max"`
}

// StorageConfig selects and configures the session.Store backend.
type StorageConfig struct {
	Backend string       `yaml:"backend"` // "file" | "sqlite" | "redis"
	File    FileStoreConfig `yaml:"file"`
	SQLite  SQLiteStoreConfig `yaml:"sqlite"`
	Redis   RedisStoreConfig `yaml:"redis"`
}

type FileStoreConfig struct {
	Dir string `yaml:"dir"`
}

type SQLiteStoreConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisStoreConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// AuthConfig optionally gates /ws/audio and /health behind a bearer JWT.
type AuthConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Secret    string `yaml:"secret"`
}

// WebConfig configures the optional debug static client served over HTTP.
type WebConfig struct {
	Enabled   bool   `yaml:"enabled"`
	StaticDir string `yaml:"static_dir"`
}
