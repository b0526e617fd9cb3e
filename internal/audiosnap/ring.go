// Package audiosnap keeps a small, bounded on-disk ring of debug WAV
// snapshots — the last N utterances written for a human to pull up after
// the fact, independent of the in-memory command history ring.
package audiosnap

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Ring is a fixed-capacity, FIFO, on-disk ring of debug_<timestamp>_<safe-text>.wav
// files. Eviction is by count, not age or size — the invariant is "at most N
// files", not a retention window.
type Ring struct {
	mu       sync.Mutex
	dir      string
	capacity int
	log      zerolog.Logger
}

// New creates a snapshot ring rooted at dir with the given capacity.
func New(dir string, capacity int, log zerolog.Logger) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{
		dir:      dir,
		capacity: capacity,
		log:      log.With().Str("component", "audiosnap").Logger(),
	}
}

// Save writes data as a new debug WAV snapshot and prunes the oldest file
// beyond capacity. The write is atomic (temp file + rename), matching the
// corpus's general "write-behind to disk" idiom. safeText is sanitized to
// [A-Za-z0-9_-] and truncated so the filename stays reasonable.
func (r *Ring) Save(data []byte, safeText string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", r.dir, err)
	}

	name := fmt.Sprintf("debug_%d_%s.wav", time.Now().UnixNano(), sanitize(safeText))
	path := filepath.Join(r.dir, name)

	tmp, err := os.CreateTemp(r.dir, ".audiosnap-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("rename: %w", err)
	}

	r.prune()
	return path, nil
}

// prune removes the oldest files beyond capacity. Must be called with mu held.
func (r *Ring) prune() {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to list snapshot directory for pruning")
		return
	}

	var files []os.DirEntry
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "debug_") && strings.HasSuffix(e.Name(), ".wav") {
			files = append(files, e)
		}
	}
	if len(files) <= r.capacity {
		return
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })
	toRemove := files[:len(files)-r.capacity]
	for _, f := range toRemove {
		path := filepath.Join(r.dir, f.Name())
		if err := os.Remove(path); err != nil {
			r.log.Warn().Err(err).Str("path", path).Msg("failed to prune old snapshot")
		}
	}
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 40 {
		s = s[:40]
	}
	s = unsafeChars.ReplaceAllString(s, "_")
	if s == "" {
		s = "utterance"
	}
	return s
}
