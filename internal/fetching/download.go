package fetching

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// Sentinel reasons for a failed media fetch, errors.Is-testable.
var (
	ErrTransport  = errors.New("media transport failure")
	ErrEmptyMedia = errors.New("fetched media is empty")
)

const partialSuffix = ".partial"

// Download streams mediaURL into dest with a chunked copy. The body lands in
// dest+".partial" and is renamed into place only once fully read, so a failed
// fetch never leaves a visible destination. Redirects are followed. Returns
// the number of bytes written.
func Download(ctx context.Context, client *http.Client, mediaURL, dest string) (int64, error) {
	if client == nil {
		client = http.DefaultClient
	}
	mediaURL = strings.TrimSpace(mediaURL)
	if mediaURL == "" {
		return 0, errors.New("download: media url required")
	}
	if strings.TrimSpace(dest) == "" {
		return 0, errors.New("download: destination path required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return 0, fmt.Errorf("download: build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("%w: http %d fetching media", ErrTransport, resp.StatusCode)
	}

	partial := dest + partialSuffix
	file, err := os.Create(partial)
	if err != nil {
		return 0, fmt.Errorf("download: create partial file: %w", err)
	}

	written, copyErr := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if copyErr != nil {
		_ = os.Remove(partial)
		return 0, fmt.Errorf("%w: stream interrupted after %d bytes: %w", ErrTransport, written, copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(partial)
		return 0, fmt.Errorf("download: close partial file: %w", closeErr)
	}
	if written == 0 {
		_ = os.Remove(partial)
		return 0, fmt.Errorf("%w: %s served no bytes", ErrEmptyMedia, mediaURL)
	}

	if err := os.Rename(partial, dest); err != nil {
		_ = os.Remove(partial)
		return 0, fmt.Errorf("download: finalize media file: %w", err)
	}
	return written, nil
}
