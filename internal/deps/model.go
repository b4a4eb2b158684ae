package deps

import (
	"fmt"
	"os"
	"strings"
)

// CheckWhisperModel reports whether the configured speech model is usable.
// The engine needs a readable, non-empty GGML file; a missing model is the
// most common misconfiguration, so the detail names the exact path.
func CheckWhisperModel(modelPath string) Status {
	result := Status{
		Name:        "Whisper model",
		Description: "GGML speech model loaded by the transcriber",
	}
	path := strings.TrimSpace(modelPath)
	result.Command = path
	if path == "" {
		result.Detail = "model path not configured"
		return result
	}
	info, err := os.Stat(path)
	if err != nil {
		result.Detail = fmt.Sprintf("model %q not found", path)
		return result
	}
	if info.IsDir() {
		result.Detail = fmt.Sprintf("model path %q is a directory", path)
		return result
	}
	if info.Size() == 0 {
		result.Detail = fmt.Sprintf("model %q is empty", path)
		return result
	}
	result.Available = true
	return result
}
