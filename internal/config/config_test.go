package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":8080" {
			t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "info" {
			t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
		}
		if cfg.CoreURL != "http://127.0.0.1:8000" {
			t.Errorf("CoreURL = %q, want http://127.0.0.1:8000", cfg.CoreURL)
		}
		if cfg.HistoryCapacity != 5 {
			t.Errorf("HistoryCapacity = %d, want 5", cfg.HistoryCapacity)
		}
		if cfg.MaxAudioSeconds != 15.0 {
			t.Errorf("MaxAudioSeconds = %v, want 15.0", cfg.MaxAudioSeconds)
		}
		if cfg.HeartbeatTTL.Seconds() != 120 {
			t.Errorf("HeartbeatTTL = %v, want 120s", cfg.HeartbeatTTL)
		}
	})

	t.Run("cli_overrides_take_priority", func(t *testing.T) {
		cfg, err := Load(Overrides{
			EnvFile:  "nonexistent.env",
			HTTPAddr: ":9090",
			LogLevel: "debug",
			CoreURL:  "http://override:9000",
		})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":9090" {
			t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
		}
		if cfg.CoreURL != "http://override:9000" {
			t.Errorf("CoreURL = %q, want override", cfg.CoreURL)
		}
	})

	t.Run("env_vars_read", func(t *testing.T) {
		cleanup := setEnvs(t, map[string]string{
			"CORE_URL":  "http://env-core:8000",
			"LOG_LEVEL": "warn",
		})
		defer cleanup()

		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.CoreURL != "http://env-core:8000" {
			t.Errorf("CoreURL = %q, want http://env-core:8000", cfg.CoreURL)
		}
		if cfg.LogLevel != "warn" {
			t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
		}
	})
}

func TestLoadInvalid(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{
		"CORE_URL":         "",
		"HISTORY_CAPACITY": "0",
	})
	defer cleanup()

	_, err := Load(Overrides{EnvFile: "nonexistent.env"})
	if err == nil {
		t.Error("expected error when CORE_URL is empty and HISTORY_CAPACITY is 0")
	}
}

// setEnvs sets environment variables and returns a cleanup function.
func setEnvs(t *testing.T, envs map[string]string) func() {
	t.Helper()
	originals := make(map[string]string)
	unset := make([]string, 0)

	for k, v := range envs {
		if orig, ok := os.LookupEnv(k); ok {
			originals[k] = orig
		} else {
			unset = append(unset, k)
		}
		os.Setenv(k, v)
	}

	return func() {
		for k, v := range originals {
			os.Setenv(k, v)
		}
		for _, k := range unset {
			os.Unsetenv(k)
		}
	}
}
