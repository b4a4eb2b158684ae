package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"scribe/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t             testing.TB
	baseDir       string
	cfg           *config.Config
	pathPrepended bool
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Resolver.Endpoint = "http://127.0.0.1:9/"
	cfgVal.Resolver.APIKey = "test"
	cfgVal.Transcriber.ModelPath = filepath.Join(base, "models", "ggml-base.en.bin")
	cfgVal.Paths.WorkspaceDir = filepath.Join(base, "workspaces")
	cfgVal.Paths.TranscriptsDir = filepath.Join(base, "transcripts")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithResolverEndpoint points the resolver at the given URL, typically an
// httptest server.
func WithResolverEndpoint(endpoint string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Resolver.Endpoint = endpoint
	}
}

// WithAPIKey sets the resolver API key on the test config.
func WithAPIKey(key string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Resolver.APIKey = key
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default scribe external
// binaries are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "whisper-cli"}
		}
		for _, name := range names {
			b.installStub(name, "#!/bin/sh\nexit 0\n")
		}
	}
}

// WithBinaryScript installs a stub executable with a caller-supplied shell
// body and prepends its directory to PATH. End-to-end tests use this for
// stubs that must produce output artifacts or fail in specific ways.
func WithBinaryScript(name, script string) ConfigOption {
	return func(b *configBuilder) {
		b.installStub(name, script)
	}
}

func (b *configBuilder) installStub(name, script string) {
	binDir := filepath.Join(b.baseDir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		b.t.Fatalf("mkdir bin dir: %v", err)
	}
	target := filepath.Join(binDir, name)
	if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
		b.t.Fatalf("write stub %s: %v", name, err)
	}
	if b.pathPrepended {
		return
	}
	oldPath := os.Getenv("PATH")
	if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
		b.t.Fatalf("set PATH: %v", err)
	}
	b.t.Cleanup(func() {
		_ = os.Setenv("PATH", oldPath)
	})
	b.pathPrepended = true
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkspaceDir)
}
