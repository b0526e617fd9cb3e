package supervisor

import (
	"fmt"
	"path/filepath"
	"sort"
)

// modelFiles maps the short model names callers deal with to the ggml
// filename whisper.cpp's whisper-server expects on disk.
var modelFiles = map[string]string{
	"tiny.en":   "ggml-tiny.en.bin",
	"base.en":   "ggml-base.en.bin",
	"small.en":  "ggml-small.en.bin",
	"medium.en": "ggml-medium.en.bin",
	"large-v3":  "ggml-large-v3.bin",
}

// resolveModelPath turns a short model name into an absolute path under
// modelDir, or an error if the name isn't in the known table.
func resolveModelPath(modelDir, name string) (string, error) {
	filename, ok := modelFiles[name]
	if !ok {
		return "", fmt.Errorf("unknown model name %q", name)
	}
	return filepath.Join(modelDir, filename), nil
}

// KnownModels lists the fixed set of model names the supervisor accepts,
// for the admin model-listing endpoint.
func KnownModels() []string {
	names := make([]string, 0, len(modelFiles))
	for name := range modelFiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
