package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the process-wide configuration for orac-stt, loaded from
// environment variables (with an optional .env file) and then layered with
// CLI flag overrides.
type Config struct {
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"40"`
	CORSOrigins    string  `env:"CORS_ORIGINS"` // comma-separated allowed origins; empty = allow all (*)
	LogLevel       string  `env:"LOG_LEVEL" envDefault:"info"`
	MetricsEnabled bool    `env:"METRICS_ENABLED" envDefault:"true"`

	DataDir            string `env:"DATA_DIR" envDefault:"./data"`
	DebugRecordingsDir string `env:"DEBUG_RECORDINGS_DIR" envDefault:"./debug_recordings"`
	DebugRecordingCap  int    `env:"DEBUG_RECORDING_CAP" envDefault:"5"`

	// Whisper engine (C2/C3)
	ModelName            string        `env:"MODEL_NAME" envDefault:"base.en"`
	WhisperPrompt        string        `env:"WHISPER_PROMPT"`
	WhisperServerHost    string        `env:"WHISPER_SERVER_HOST" envDefault:"127.0.0.1"`
	WhisperServerPort    int           `env:"WHISPER_SERVER_PORT" envDefault:"8178"`
	UseWhisperServer     bool          `env:"USE_WHISPER_SERVER" envDefault:"true"`
	WhisperBinary        string        `env:"WHISPER_BINARY" envDefault:"whisper-server"`
	ModelDir             string        `env:"MODEL_DIR" envDefault:"./models"`
	WhisperTimeout       time.Duration `env:"WHISPER_TIMEOUT" envDefault:"30s"`
	WhisperHealthTimeout time.Duration `env:"WHISPER_HEALTH_TIMEOUT" envDefault:"5s"`

	SupervisorStartDeadline    time.Duration `env:"SUPERVISOR_START_DEADLINE" envDefault:"60s"`
	SupervisorHealthInterval   time.Duration `env:"SUPERVISOR_HEALTH_INTERVAL" envDefault:"60s"`
	SupervisorFailureThreshold int           `env:"SUPERVISOR_FAILURE_THRESHOLD" envDefault:"2"`
	SupervisorStopGrace        time.Duration `env:"SUPERVISOR_STOP_GRACE" envDefault:"5s"`

	// Audio preprocessing (optional, requires sox in PATH)
	PreprocessAudio bool `env:"PREPROCESS_AUDIO" envDefault:"false"`

	// Audio buffer / duration cap (C1). MaxAudioSeconds is validated here
	// only; audio.LoadWAV enforces its own fixed audio.MaxDurationSeconds.
	StreamThresholdMS int     `env:"STREAM_THRESHOLD_MS" envDefault:"300"`
	MaxAudioSeconds   float64 `env:"MAX_AUDIO_SECONDS" envDefault:"15.0"`

	// Topic registry (C4)
	TopicsFile string `env:"TOPICS_FILE" envDefault:"data/topics.yaml"`

	// Settings (C10)
	SettingsFile string `env:"SETTINGS_FILE" envDefault:"data/settings.yaml"`

	// Core client (C7) / default routing
	CoreURL     string        `env:"CORE_URL" envDefault:"http://127.0.0.1:8000"`
	CoreTimeout time.Duration `env:"CORE_TIMEOUT" envDefault:"30s"`

	// Heartbeat aggregator (C6)
	HeartbeatTTL      time.Duration `env:"HEARTBEAT_TTL" envDefault:"120s"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"5s"`

	// Command history ring (C5)
	HistoryCapacity int `env:"HISTORY_CAPACITY" envDefault:"5"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile   string
	HTTPAddr  string
	LogLevel  string
	CoreURL   string
	DataDir   string
	ModelDir  string
	ModelName string
}

// Load reads configuration from a .env file, environment variables, and CLI
// overrides. Priority: CLI flags > environment variables > .env file > struct
// defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.CoreURL != "" {
		cfg.CoreURL = overrides.CoreURL
	}
	if overrides.DataDir != "" {
		cfg.DataDir = overrides.DataDir
	}
	if overrides.ModelDir != "" {
		cfg.ModelDir = overrides.ModelDir
	}
	if overrides.ModelName != "" {
		cfg.ModelName = overrides.ModelName
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks invariants the rest of the process relies on once config
// is loaded.
func (c *Config) Validate() error {
	if c.CoreURL == "" {
		return fmt.Errorf("CORE_URL must not be empty")
	}
	if c.HistoryCapacity < 1 {
		return fmt.Errorf("HISTORY_CAPACITY must be >= 1")
	}
	if c.MaxAudioSeconds <= 0 {
		return fmt.Errorf("MAX_AUDIO_SECONDS must be > 0")
	}
	return nil
}
