package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"scribe/internal/config"
	"scribe/internal/deps"
	"scribe/internal/services/cobalt"
)

// CheckResolver verifies that the download-proxy endpoint answers HTTP.
// It uses a 10-second timeout and a single unauthenticated probe; an auth
// rejection still counts as reachable.
func CheckResolver(ctx context.Context, cfg *config.Config) Result {
	const name = "Resolver"

	if strings.TrimSpace(cfg.Resolver.Endpoint) == "" {
		return Result{Name: name, Detail: "endpoint not configured (set resolver.endpoint or SCRIBE_RESOLVER_ENDPOINT)"}
	}
	if strings.TrimSpace(cfg.Resolver.APIKey) == "" {
		return Result{Name: name, Detail: "API key missing (set resolver.api_key or SCRIBE_API_KEY)"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := cobalt.NewClient(cfg).HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeResolverError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the external tools and the speech model for the
// given config. The CLI check command uses this alongside RunAll so the
// requirements list lives in one place.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	statuses := deps.CheckBinaries(deps.Requirements(cfg))
	modelPath := ""
	if cfg != nil {
		modelPath = cfg.Transcriber.ModelPath
	}
	return append(statuses, deps.CheckWhisperModel(modelPath))
}

// summarizeResolverError produces a human-readable summary for resolver
// health check failures.
func summarizeResolverError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (resolver unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (resolver unreachable)"
	}
	return err.Error()
}
