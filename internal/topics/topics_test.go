package topics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoRegisterCreatesAndBumpsLastSeen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.yaml")
	r := New(path, zerolog.Nop())

	c1 := r.AutoRegister("kitchen", nil)
	require.NotNil(t, c1)
	first := c1.LastSeen

	c2 := r.AutoRegister("kitchen", map[string]string{"wake_word": "hey computer"})
	assert.True(t, !c2.LastSeen.Before(first))
	assert.Equal(t, "hey computer", c2.Metadata["wake_word"])
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.yaml")
	r := New(path, zerolog.Nop())
	r.AutoRegister("kitchen", nil)
	r.SetCoreURL("kitchen", "http://core2:8000")

	_, err := os.Stat(path)
	require.NoError(t, err)

	r2 := New(path, zerolog.Nop())
	assert.Equal(t, "http://core2:8000", r2.GetCoreURL("kitchen"))
}

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "missing.yaml"), zerolog.Nop())
	assert.Empty(t, r.GetAll())
}

func TestLoadCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: valid: yaml: [["), 0o644))
	r := New(path, zerolog.Nop())
	assert.Empty(t, r.GetAll())
}

func TestGroupByCoreURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.yaml")
	r := New(path, zerolog.Nop())
	r.AutoRegister("kitchen", nil)
	r.AutoRegister("garage", nil)
	r.SetCoreURL("garage", "http://core2:8000")

	groups := r.GroupByCoreURL([]string{"kitchen", "garage", "unknown"})
	assert.ElementsMatch(t, []string{"kitchen", "unknown"}, groups[""])
	assert.ElementsMatch(t, []string{"garage"}, groups["http://core2:8000"])
}

func TestGetActiveOmitsRemovedTopic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.yaml")
	r := New(path, zerolog.Nop())
	r.AutoRegister("kitchen", nil)
	assert.Len(t, r.GetActive(), 1)
	r.Remove("kitchen")
	assert.Empty(t, r.GetActive())
}

func TestGetActiveExcludesStaleTopic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.yaml")
	r := New(path, zerolog.Nop())
	r.AutoRegister("kitchen", nil)

	r.mu.Lock()
	r.byName["kitchen"].LastSeen = time.Now().Add(-(ActiveTTL + time.Second))
	r.mu.Unlock()

	assert.Empty(t, r.GetActive())
	all := r.GetAll()
	require.Len(t, all, 1)
	assert.False(t, all[0].IsActive())
}

func TestConfigIsActiveReflectsTTLNotStoredState(t *testing.T) {
	fresh := Config{LastSeen: time.Now()}
	assert.True(t, fresh.IsActive())

	stale := Config{LastSeen: time.Now().Add(-(ActiveTTL + time.Second))}
	assert.False(t, stale.IsActive())
}

func TestNormalizeForForwardCoercesInvalidNames(t *testing.T) {
	assert.Equal(t, "kitchen_light", NormalizeForForward("kitchen_light"))
	assert.Equal(t, "general", NormalizeForForward("kitchen light!"))
}

func TestStripWakeWordsIdempotent(t *testing.T) {
	phrases := []string{"hey computer", "ok house"}
	text := "Hey Computer, turn on the lights"
	once := StripWakeWords(text, phrases)
	twice := StripWakeWords(once, phrases)
	assert.Equal(t, once, twice)
	assert.Equal(t, "turn on the lights", once)
}

func TestStripWakeWordsNoMatchLeavesTextUnchanged(t *testing.T) {
	assert.Equal(t, "turn on the lights", StripWakeWords("turn on the lights", []string{"hey computer"}))
}

func TestStripWakeWordsEmptyResidue(t *testing.T) {
	assert.Equal(t, "", StripWakeWords("hey computer", []string{"hey computer"}))
}
