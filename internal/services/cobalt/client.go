package cobalt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"scribe/internal/config"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBytes   = 1 << 20
)

// Sentinel reasons for a failed resolution, errors.Is-testable.
var (
	ErrTransport         = errors.New("resolver transport failure")
	ErrMalformedResponse = errors.New("resolver returned malformed response")
	ErrUpstreamStatus    = errors.New("resolver returned error status")
)

// Resolution is a successfully resolved direct media link. MediaURL is always
// a syntactically valid absolute URL; Filename is the proxy's suggested name
// and may be empty.
type Resolution struct {
	MediaURL string
	Filename string
}

// Client wraps the download-proxy resolve endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a resolver client from configuration.
func NewClient(cfg *config.Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.Resolver.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Resolver.TimeoutSeconds) * time.Second
	}
	client := &Client{
		endpoint:   strings.TrimSpace(cfg.Resolver.Endpoint),
		apiKey:     strings.TrimSpace(cfg.Resolver.APIKey),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type resolveRequest struct {
	URL string `json:"url"`
}

type resolveResponse struct {
	Status   string `json:"status"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Error    *struct {
		Code string `json:"code"`
	} `json:"error"`
}

// Resolve translates a source page URL into a direct media URL. It performs
// exactly one POST; retry policy belongs to the caller.
func (c *Client) Resolve(ctx context.Context, sourceURL string) (Resolution, error) {
	var empty Resolution
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return empty, errors.New("resolve: source url required")
	}
	if c.endpoint == "" {
		return empty, errors.New("resolve: endpoint not configured")
	}

	encoded, err := json.Marshal(resolveRequest{URL: sourceURL})
	if err != nil {
		return empty, fmt.Errorf("resolve: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return empty, fmt.Errorf("resolve: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Api-Key "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return empty, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return empty, fmt.Errorf("%w: read response: %w", ErrTransport, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return empty, newResponseError(ErrUpstreamStatus, fmt.Sprintf("http %d: %s", resp.StatusCode, summarizeBody(body)), body)
	}

	var parsed resolveResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return empty, newResponseError(ErrMalformedResponse, fmt.Sprintf("decode response: %v (body: %s)", err, summarizeBody(body)), body)
	}

	status := strings.ToLower(strings.TrimSpace(parsed.Status))
	switch status {
	case "tunnel", "redirect":
	case "error":
		detail := "proxy reported an error"
		if parsed.Error != nil && strings.TrimSpace(parsed.Error.Code) != "" {
			detail = fmt.Sprintf("proxy reported error %q", strings.TrimSpace(parsed.Error.Code))
		}
		return empty, newResponseError(ErrMalformedResponse, detail, body)
	default:
		return empty, newResponseError(ErrMalformedResponse, fmt.Sprintf("status %q does not describe a fetchable link", parsed.Status), body)
	}

	mediaURL := strings.TrimSpace(parsed.URL)
	if mediaURL == "" {
		return empty, newResponseError(ErrMalformedResponse, "response missing url", body)
	}
	if target, err := url.Parse(mediaURL); err != nil || !target.IsAbs() || target.Host == "" {
		return empty, newResponseError(ErrMalformedResponse, fmt.Sprintf("url %q is not absolute", mediaURL), body)
	}

	return Resolution{MediaURL: mediaURL, Filename: strings.TrimSpace(parsed.Filename)}, nil
}

// HealthCheck verifies the resolver endpoint answers HTTP at all. Any
// response below 500 counts as reachable since unauthenticated probes may be
// rejected.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.endpoint == "" {
		return errors.New("resolver health: endpoint not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("resolver health: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: http %d", ErrUpstreamStatus, resp.StatusCode)
	}
	return nil
}

// responseError pairs a resolution failure with the raw response body so the
// resolving stage can persist it for inspection.
type responseError struct {
	reason error
	detail string
	body   []byte
}

func newResponseError(reason error, detail string, body []byte) *responseError {
	return &responseError{reason: reason, detail: detail, body: body}
}

func (e *responseError) Error() string {
	if e.detail == "" {
		return e.reason.Error()
	}
	return e.reason.Error() + ": " + e.detail
}

func (e *responseError) Unwrap() error { return e.reason }

// ResponseBody extracts the raw proxy response attached to err, if any.
func ResponseBody(err error) ([]byte, bool) {
	var re *responseError
	if errors.As(err, &re) && len(re.body) > 0 {
		return re.body, true
	}
	return nil, false
}

func summarizeBody(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "<empty>"
	}
	replacer := strings.NewReplacer("\r", " ", "\n", " ", "\t", " ")
	clean := strings.Join(strings.Fields(replacer.Replace(trimmed)), " ")
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
