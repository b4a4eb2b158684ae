package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrStorage       = errors.New("storage error")
	ErrMissingOutput = errors.New("missing output")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsTransient reports whether the error is tagged as retryable. Bounded-retry
// wrappers use this to decide between another attempt and an immediate abort.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout)
}

// ErrorDetails carries the classified marker and the human-readable remainder
// of an error produced by Wrap.
type ErrorDetails struct {
	Marker  error
	Message string
}

// detailMarkers is ordered so that more specific markers win when an error
// carries several. ErrTimeout precedes ErrTransient because timeouts also
// satisfy IsTransient.
var detailMarkers = []error{
	ErrExternalTool,
	ErrValidation,
	ErrConfiguration,
	ErrNotFound,
	ErrTimeout,
	ErrStorage,
	ErrMissingOutput,
	ErrTransient,
}

// Details classifies err against the sentinel markers and returns the marker
// plus the message with the marker prefix stripped. Unclassified errors come
// back with a nil marker and the full message.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	message := err.Error()
	for _, marker := range detailMarkers {
		if !errors.Is(err, marker) {
			continue
		}
		message = strings.TrimPrefix(message, marker.Error()+": ")
		return ErrorDetails{Marker: marker, Message: message}
	}
	return ErrorDetails{Message: message}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
