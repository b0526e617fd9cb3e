// Package settings is C10: the runtime-mutable settings store (the default
// orac-core URL and its timeout), persisted to a YAML snapshot after every
// mutation, loaded tolerantly (missing or unparsable file starts from
// defaults rather than failing startup).
package settings

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Settings is the persisted, operator-mutable configuration.
type Settings struct {
	CoreURL        string  `yaml:"orac_core_url"`
	CoreTimeoutSec float64 `yaml:"orac_core_timeout_s"`
}

// Store holds the current settings in memory, synced to path on every
// mutation.
type Store struct {
	mu      sync.RWMutex
	path    string
	log     zerolog.Logger
	current Settings
}

// New loads settings from path, falling back to defaults if the file is
// missing or unparsable (best-effort load, same policy as internal/topics).
func New(path string, defaults Settings, log zerolog.Logger) *Store {
	s := &Store{
		path:    path,
		log:     log.With().Str("component", "settings").Logger(),
		current: defaults,
	}
	s.load(defaults)
	return s
}

func (s *Store) load(defaults Settings) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Msg("failed to read settings snapshot; using defaults")
		}
		return
	}
	var loaded Settings
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		s.log.Warn().Err(err).Msg("failed to parse settings snapshot; using defaults")
		return
	}
	if loaded.CoreURL == "" {
		loaded.CoreURL = defaults.CoreURL
	}
	if loaded.CoreTimeoutSec <= 0 {
		loaded.CoreTimeoutSec = defaults.CoreTimeoutSec
	}
	s.current = loaded
}

// Get returns a copy of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SetCoreURL validates and persists a new default Core URL. Admin mutations
// fail loudly, per spec.md's ConfigInvalid policy for administrative paths.
func (s *Store) SetCoreURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid core URL %q", rawURL)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.CoreURL = rawURL
	return s.persistLocked()
}

// SetCoreTimeout validates and persists a new default Core request timeout.
func (s *Store) SetCoreTimeout(seconds float64) error {
	if seconds <= 0 {
		return fmt.Errorf("core timeout must be > 0 seconds")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.CoreTimeoutSec = seconds
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	data, err := yaml.Marshal(s.current)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.log.Error().Err(err).Msg("failed to create settings directory")
		return err
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		s.log.Error().Err(err).Msg("failed to create temp settings file")
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		s.log.Error().Err(err).Msg("failed to write temp settings file")
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		s.log.Error().Err(err).Msg("failed to close temp settings file")
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		s.log.Error().Err(err).Msg("failed to replace settings file")
		return err
	}
	return nil
}
