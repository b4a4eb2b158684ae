// Package deps inventories the external tools scribe shells out to.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"scribe/internal/config"
)

// Requirement defines an external dependency scribe relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements returns the binary dependencies for the configured pipeline.
func Requirements(cfg *config.Config) []Requirement {
	ffmpeg := "ffmpeg"
	whisper := "whisper-cli"
	if cfg != nil {
		if bin := strings.TrimSpace(cfg.Transcoder.FFmpegBinary); bin != "" {
			ffmpeg = bin
		}
		if bin := strings.TrimSpace(cfg.Transcriber.Binary); bin != "" {
			whisper = bin
		}
	}
	return []Requirement{
		{Name: "FFmpeg", Command: ffmpeg, Description: "Audio extraction and thumbnail capture"},
		{Name: "Whisper", Command: whisper, Description: "Speech recognition engine"},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if resolved, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
		} else {
			status.Command = resolved
			status.Available = true
		}
		results = append(results, status)
	}
	return results
}
