// Package topics is the topic registry (C4): the set of known STT topics,
// their per-topic Core URL override and wake-word strip list, auto-
// registered as heartbeats and transcriptions reference them, persisted to
// a YAML snapshot after every mutation.
package topics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var validName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// defaultTopic is substituted for any name that fails validation on the
// forward path.
const defaultTopic = "general"

// ActiveTTL is the staleness window behind the is_active invariant in
// spec.md §3: a topic is active iff now - last_seen < ActiveTTL.
const ActiveTTL = 120 * time.Second

// Config is a single topic's persisted state. IsActive is never stored; it
// is always derived from LastSeen against ActiveTTL (see Config.IsActive).
type Config struct {
	Name             string            `yaml:"name" json:"name"`
	CoreURL          string            `yaml:"core_url,omitempty" json:"core_url,omitempty"`
	WakeWordsToStrip string            `yaml:"wake_words_to_strip,omitempty" json:"wake_words_to_strip,omitempty"`
	Metadata         map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	LastSeen         time.Time         `yaml:"last_seen" json:"last_seen"`
}

// IsActive reports whether this topic was seen within ActiveTTL of now.
func (c Config) IsActive() bool {
	return time.Since(c.LastSeen) < ActiveTTL
}

// MarshalJSON includes the derived is_active flag alongside the persisted
// fields, so API consumers see spec.md §3's invariant without it ever being
// stored.
func (c Config) MarshalJSON() ([]byte, error) {
	type wire struct {
		Name             string            `json:"name"`
		CoreURL          string            `json:"core_url,omitempty"`
		WakeWordsToStrip string            `json:"wake_words_to_strip,omitempty"`
		Metadata         map[string]string `json:"metadata,omitempty"`
		LastSeen         time.Time         `json:"last_seen"`
		IsActive         bool              `json:"is_active"`
	}
	return json.Marshal(wire{
		Name:             c.Name,
		CoreURL:          c.CoreURL,
		WakeWordsToStrip: c.WakeWordsToStrip,
		Metadata:         c.Metadata,
		LastSeen:         c.LastSeen,
		IsActive:         c.IsActive(),
	})
}

// Registry is the in-memory topic map with YAML persistence.
type Registry struct {
	mu    sync.Mutex
	path  string
	log   zerolog.Logger
	byName map[string]*Config
}

// New loads an existing registry snapshot from path, or starts empty if the
// file is missing or unparsable (best-effort load, per spec.md §4.4).
func New(path string, log zerolog.Logger) *Registry {
	r := &Registry{
		path:   path,
		log:    log.With().Str("component", "topics").Logger(),
		byName: make(map[string]*Config),
	}
	r.load()
	return r
}

func (r *Registry) load() {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.log.Warn().Err(err).Msg("failed to read topics snapshot; starting empty")
		}
		return
	}
	var list []*Config
	if err := yaml.Unmarshal(data, &list); err != nil {
		r.log.Warn().Err(err).Msg("failed to parse topics snapshot; starting empty")
		return
	}
	for _, c := range list {
		r.byName[c.Name] = c
	}
}

// ValidName reports whether name satisfies the registry's naming rule.
func ValidName(name string) bool { return validName.MatchString(name) }

// NormalizeForForward substitutes "general" for any name that fails
// validation, per spec.md's forward-path coercion rule.
func NormalizeForForward(name string) string {
	if ValidName(name) {
		return name
	}
	return defaultTopic
}

// AutoRegister creates the topic if absent and always bumps last_seen to
// now, merging any supplied metadata.
func (r *Registry) AutoRegister(name string, metadata map[string]string) *Config {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byName[name]
	if !ok {
		c = &Config{Name: name}
		r.byName[name] = c
	}
	c.LastSeen = time.Now()
	for k, v := range metadata {
		if c.Metadata == nil {
			c.Metadata = make(map[string]string)
		}
		c.Metadata[k] = v
	}
	r.persistLocked()
	cp := *c
	return &cp
}

// UpdateActivity is AutoRegister's alias for an already-known topic; the
// contract is identical either way.
func (r *Registry) UpdateActivity(name string, metadata map[string]string) *Config {
	return r.AutoRegister(name, metadata)
}

// GetCoreURL returns the topic's Core URL override, or "" if there is none
// (meaning "use the default").
func (r *Registry) GetCoreURL(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byName[name]; ok {
		return c.CoreURL
	}
	return ""
}

// SetCoreURL upserts the topic and sets its Core URL override. Pass "" to
// clear the override back to "use default".
func (r *Registry) SetCoreURL(name, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.getOrCreateLocked(name)
	c.CoreURL = url
	r.persistLocked()
}

// SetWakeWordsToStrip upserts the topic and sets its wake-word strip list
// (comma-separated, as provided).
func (r *Registry) SetWakeWordsToStrip(name, csv string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.getOrCreateLocked(name)
	c.WakeWordsToStrip = csv
	r.persistLocked()
}

// WakeWordsToStrip returns the topic's configured strip phrases, trimmed,
// with their original case (StripWakeWords does the case folding).
func (r *Registry) WakeWordsToStrip(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byName[name]
	if !ok || c.WakeWordsToStrip == "" {
		return nil
	}
	parts := strings.Split(c.WakeWordsToStrip, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (r *Registry) getOrCreateLocked(name string) *Config {
	c, ok := r.byName[name]
	if !ok {
		c = &Config{Name: name, LastSeen: time.Now()}
		r.byName[name] = c
	}
	return c
}

// GroupByCoreURL partitions names by effective Core URL; "" is the group
// key meaning "use the default URL". Unknown names are grouped under "".
func (r *Registry) GroupByCoreURL(names []string) map[string][]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	groups := make(map[string][]string)
	for _, n := range names {
		url := ""
		if c, ok := r.byName[n]; ok {
			url = c.CoreURL
		}
		groups[url] = append(groups[url], n)
	}
	return groups
}

// GetAll returns every known topic.
func (r *Registry) GetAll() []Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Config, 0, len(r.byName))
	for _, c := range r.byName {
		out = append(out, *c)
	}
	return out
}

// GetActive returns only topics seen within ActiveTTL of now.
func (r *Registry) GetActive() []Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Config, 0, len(r.byName))
	for _, c := range r.byName {
		if c.IsActive() {
			out = append(out, *c)
		}
	}
	return out
}

// Remove deletes a topic from the registry.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byName, name)
	r.persistLocked()
}

// persistLocked serializes the whole registry to YAML under an atomic
// temp-file-then-rename write. Must be called with mu held. Failures are
// logged and swallowed: in-memory state is retained and the next mutation
// retries the write (spec.md's StoragePersistFailed policy).
func (r *Registry) persistLocked() {
	list := make([]*Config, 0, len(r.byName))
	for _, c := range r.byName {
		list = append(list, c)
	}

	data, err := yaml.Marshal(list)
	if err != nil {
		r.log.Error().Err(err).Msg("failed to marshal topics snapshot")
		return
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.log.Error().Err(err).Msg("failed to create topics directory")
		return
	}

	tmp, err := os.CreateTemp(dir, ".topics-*.tmp")
	if err != nil {
		r.log.Error().Err(err).Msg("failed to create temp topics file")
		return
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		r.log.Error().Err(err).Msg("failed to write topics snapshot")
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		r.log.Error().Err(err).Msg("failed to close temp topics file")
		return
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		r.log.Error().Err(err).Msg("failed to rename topics snapshot into place")
		return
	}
}

// StripWakeWords removes a leading occurrence of any configured phrase
// (case-insensitive) followed by optional whitespace/punctuation, and
// repeats until no phrase leads the text.
// Idempotent: stripping twice yields the same result as stripping once.
func StripWakeWords(text string, phrases []string) string {
	trimmed := strings.TrimLeft(text, " \t\n")
	for {
		lower := strings.ToLower(trimmed)
		stripped := false
		for _, phrase := range phrases {
			p := strings.ToLower(strings.TrimSpace(phrase))
			if p == "" {
				continue
			}
			if strings.HasPrefix(lower, p) {
				rest := trimmed[len(p):]
				trimmed = strings.TrimLeft(rest, " \t\n,.:;!?-")
				stripped = true
				break
			}
		}
		if !stripped {
			return trimmed
		}
	}
}

// ValidateOrDefault is a convenience wrapper documenting the ConfigInvalid
// policy: bad names are coerced rather than rejected on the forward path.
// An empty name is coerced to the default topic and also reported with an
// error.
func ValidateOrDefault(name string) (string, error) {
	if name == "" {
		return defaultTopic, fmt.Errorf("empty topic name")
	}
	return NormalizeForForward(name), nil
}
