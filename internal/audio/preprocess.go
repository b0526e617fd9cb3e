package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// soxAvailable caches whether sox is in PATH (checked once at startup).
var soxAvailable *bool

// CheckSox checks if sox is available in PATH. Call once at startup.
func CheckSox() bool {
	if soxAvailable != nil {
		return *soxAvailable
	}
	_, err := exec.LookPath("sox")
	avail := err == nil
	soxAvailable = &avail
	return avail
}

// Preprocess optionally runs the WAV at inputPath through sox before it goes
// to the Whisper engine: resample to 16kHz mono, voice bandpass (300-3000Hz),
// normalize. This is an enrichment pass over C1's unconditional in-process
// resample/downmix, not a replacement for it — Preprocess is skipped
// entirely when sox isn't installed or PREPROCESS_AUDIO is off.
//
// Returns the path to use going forward and a cleanup function. If sox is
// unavailable, returns the original path with a no-op cleanup.
func Preprocess(ctx context.Context, inputPath string) (string, func(), error) {
	noop := func() {}

	if !CheckSox() {
		return inputPath, noop, nil
	}

	tmpDir := os.TempDir()
	outPath := filepath.Join(tmpDir, fmt.Sprintf("orac-stt-preprocess-%d.wav", os.Getpid()))

	cmd := exec.CommandContext(ctx, "sox",
		inputPath, outPath,
		"rate", "16000",
		"channels", "1",
		"sinc", "300-3000",
		"norm",
	)
	if err := cmd.Run(); err != nil {
		os.Remove(outPath)
		return inputPath, noop, fmt.Errorf("sox preprocess: %w", err)
	}

	cleanup := func() {
		os.Remove(outPath)
	}
	return outPath, cleanup, nil
}

// PreprocessWAV runs raw WAV bytes through Preprocess when enabled, returning
// the (possibly unchanged) bytes ready for LoadWAV. Any failure along the way
// — temp file I/O, sox itself — falls back to the original bytes rather than
// failing the upload; preprocessing is strictly an enrichment pass over C1's
// mandatory in-process resample.
func PreprocessWAV(ctx context.Context, data []byte, enabled bool) []byte {
	if !enabled || !CheckSox() {
		return data
	}

	in, err := os.CreateTemp("", "orac-stt-preprocess-in-*.wav")
	if err != nil {
		return data
	}
	defer os.Remove(in.Name())
	if _, err := in.Write(data); err != nil {
		in.Close()
		return data
	}
	if err := in.Close(); err != nil {
		return data
	}

	outPath, cleanup, err := Preprocess(ctx, in.Name())
	defer cleanup()
	if err != nil || outPath == in.Name() {
		return data
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return data
	}
	return out
}
