package cobalt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"scribe/internal/config"
)

func testConfig(endpoint string) *config.Config {
	cfg := config.Default()
	cfg.Resolver.Endpoint = endpoint
	cfg.Resolver.APIKey = "test-key"
	return &cfg
}

func TestResolveTunnelResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Api-Key test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("unexpected content type %q", got)
		}
		var req resolveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.URL != "https://example.com/watch?v=abc123" {
			t.Errorf("unexpected source url %q", req.URL)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":   "tunnel",
			"url":      "https://media.example.com/stream/abc123.mp4",
			"filename": "My Video.mp4",
		})
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	resolution, err := client.Resolve(context.Background(), "https://example.com/watch?v=abc123")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolution.MediaURL != "https://media.example.com/stream/abc123.mp4" {
		t.Errorf("unexpected media url %q", resolution.MediaURL)
	}
	if resolution.Filename != "My Video.mp4" {
		t.Errorf("unexpected filename %q", resolution.Filename)
	}
}

func TestResolveRedirectResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "redirect",
			"url":    "https://cdn.example.com/direct.mp4",
		})
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	resolution, err := client.Resolve(context.Background(), "https://example.com/clip")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolution.MediaURL != "https://cdn.example.com/direct.mp4" {
		t.Errorf("unexpected media url %q", resolution.MediaURL)
	}
	if resolution.Filename != "" {
		t.Errorf("expected empty filename, got %q", resolution.Filename)
	}
}

func TestResolveRejectsNonFetchableStatus(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"error status", `{"status":"error","error":{"code":"error.api.link.invalid"}}`},
		{"picker status", `{"status":"picker","picker":[{"url":"https://x/1.jpg"}]}`},
		{"unknown status", `{"status":"processing","url":"https://cdn.example.com/x.mp4"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := NewClient(testConfig(server.URL))
			_, err := client.Resolve(context.Background(), "https://example.com/clip")
			if !errors.Is(err, ErrMalformedResponse) {
				t.Fatalf("expected malformed-response sentinel, got %v", err)
			}
			body, ok := ResponseBody(err)
			if !ok {
				t.Fatal("expected raw body attached to error")
			}
			if string(body) != tc.body {
				t.Fatalf("unexpected attached body %q", body)
			}
		})
	}
}

func TestResolveRejectsMissingOrRelativeURL(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"missing url", `{"status":"tunnel","filename":"x.mp4"}`, "missing url"},
		{"empty url", `{"status":"tunnel","url":"  "}`, "missing url"},
		{"relative url", `{"status":"redirect","url":"/stream/abc.mp4"}`, "not absolute"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := NewClient(testConfig(server.URL))
			_, err := client.Resolve(context.Background(), "https://example.com/clip")
			if !errors.Is(err, ErrMalformedResponse) {
				t.Fatalf("expected malformed-response sentinel, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}

func TestResolveRejectsUndecodableBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>gateway error</html>"))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	_, err := client.Resolve(context.Background(), "https://example.com/clip")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected malformed-response sentinel, got %v", err)
	}
}

func TestResolveUpstreamStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	_, err := client.Resolve(context.Background(), "https://example.com/clip")
	if !errors.Is(err, ErrUpstreamStatus) {
		t.Fatalf("expected upstream-status sentinel, got %v", err)
	}
	if !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status code in error, got %v", err)
	}
}

func TestResolveTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	server.Close()

	client := NewClient(testConfig(endpoint))
	_, err := client.Resolve(context.Background(), "https://example.com/clip")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport sentinel, got %v", err)
	}
}

func TestResolveOmitsAuthorizationWithoutKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("expected no authorization header, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "tunnel",
			"url":    "https://media.example.com/x.mp4",
		})
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Resolver.APIKey = ""
	client := NewClient(cfg)
	if _, err := client.Resolve(context.Background(), "https://example.com/clip"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected method %s", r.Method)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"cobalt": "ready"})
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestHealthCheckServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check failure for 5xx")
	}
}
