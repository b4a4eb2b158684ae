package services_test

import (
	"errors"
	"strings"
	"testing"

	"scribe/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "transcoding", "extract audio", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"transcoding", "extract audio", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapWithoutCause(t *testing.T) {
	err := services.Wrap(services.ErrMissingOutput, "transcribing", "verify output", "transcript absent", nil)
	if !errors.Is(err, services.ErrMissingOutput) {
		t.Fatalf("expected missing-output marker, got %v", err)
	}
	if strings.Contains(err.Error(), "%!") {
		t.Fatalf("malformed error string: %q", err.Error())
	}
}

func TestWrapNilMarkerDefaultsTransient(t *testing.T) {
	err := services.Wrap(nil, "fetching", "download", "connection reset", errors.New("reset"))
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient default, got %v", err)
	}
}

func TestDetailsClassifiesMarkers(t *testing.T) {
	err := services.Wrap(services.ErrExternalTool, "transcoding", "extract audio", "exit status 1", nil)
	details := services.Details(err)
	if !errors.Is(details.Marker, services.ErrExternalTool) {
		t.Fatalf("expected external-tool marker, got %v", details.Marker)
	}
	if strings.HasPrefix(details.Message, services.ErrExternalTool.Error()) {
		t.Fatalf("expected marker prefix stripped, got %q", details.Message)
	}
	if !strings.Contains(details.Message, "extract audio") {
		t.Fatalf("expected operation in message, got %q", details.Message)
	}
}

func TestDetailsPrefersTimeoutOverTransient(t *testing.T) {
	err := services.Wrap(services.ErrTimeout, "transcribing", "run", "deadline exceeded", nil)
	details := services.Details(err)
	if !errors.Is(details.Marker, services.ErrTimeout) {
		t.Fatalf("expected timeout marker, got %v", details.Marker)
	}
}

func TestDetailsUnclassified(t *testing.T) {
	details := services.Details(errors.New("plain failure"))
	if details.Marker != nil {
		t.Fatalf("expected nil marker for unclassified error, got %v", details.Marker)
	}
	if details.Message != "plain failure" {
		t.Fatalf("unexpected message %q", details.Message)
	}
	if got := services.Details(nil); got.Marker != nil || got.Message != "" {
		t.Fatalf("expected zero details for nil error, got %+v", got)
	}
}

func TestIsTransient(t *testing.T) {
	transient := services.Wrap(services.ErrTransient, "resolving", "post", "connection refused", errors.New("dial"))
	if !services.IsTransient(transient) {
		t.Fatalf("expected transient classification for %v", transient)
	}
	timeout := services.Wrap(services.ErrTimeout, "transcribing", "run", "deadline exceeded", nil)
	if !services.IsTransient(timeout) {
		t.Fatalf("expected timeout to be retryable, got %v", timeout)
	}
	permanent := services.Wrap(services.ErrValidation, "resolving", "check url", "unsupported host", nil)
	if services.IsTransient(permanent) {
		t.Fatalf("validation errors must not be retryable: %v", permanent)
	}
	if services.IsTransient(nil) {
		t.Fatal("nil error must not be transient")
	}
}
