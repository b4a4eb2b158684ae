package resolving

import (
	"fmt"
	"net/url"
	"strings"

	"scribe/internal/config"
	"scribe/internal/services"
)

// NormalizeURL canonicalizes a source URL into the queue's dedupe key:
// lower-cased scheme and host, default ports and fragments stripped, path
// and query preserved. Only absolute http(s) URLs are accepted.
func NormalizeURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", services.Wrap(services.ErrValidation, "resolving", "normalize url", "Source URL is required", nil)
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "resolving", "normalize url",
			fmt.Sprintf("Source URL %q is not a valid URL", trimmed), err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", services.Wrap(services.ErrValidation, "resolving", "normalize url",
			fmt.Sprintf("Source URL %q must use http or https", trimmed), nil)
	}
	if parsed.Hostname() == "" {
		return "", services.Wrap(services.ErrValidation, "resolving", "normalize url",
			fmt.Sprintf("Source URL %q has no host", trimmed), nil)
	}

	parsed.Scheme = scheme
	host := strings.ToLower(parsed.Hostname())
	if port := parsed.Port(); port != "" && !isDefaultPort(scheme, port) {
		host += ":" + port
	}
	parsed.Host = host
	parsed.Fragment = ""
	parsed.RawFragment = ""
	return parsed.String(), nil
}

// ValidateSource normalizes raw and enforces the configured host allowlist.
// An empty allowlist admits every host.
func ValidateSource(cfg *config.Config, raw string) (string, error) {
	normalized, err := NormalizeURL(raw)
	if err != nil {
		return "", err
	}
	if cfg == nil || len(cfg.Resolver.AllowedHosts) == 0 {
		return normalized, nil
	}
	parsed, err := url.Parse(normalized)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "resolving", "validate source", "Source URL is not parseable", err)
	}
	if !hostAllowed(cfg.Resolver.AllowedHosts, parsed.Hostname()) {
		return "", services.Wrap(services.ErrValidation, "resolving", "validate source",
			fmt.Sprintf("Host %q is not in the configured allowed_hosts list", parsed.Hostname()), nil)
	}
	return normalized, nil
}

// hostAllowed matches the host exactly or as a subdomain of an allowed entry.
func hostAllowed(allowed []string, host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	for _, entry := range allowed {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		if host == entry || strings.HasSuffix(host, "."+entry) {
			return true
		}
	}
	return false
}

func isDefaultPort(scheme, port string) bool {
	switch scheme {
	case "http":
		return port == "80"
	case "https":
		return port == "443"
	default:
		return false
	}
}
