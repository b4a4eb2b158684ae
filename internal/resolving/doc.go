// Package resolving asks the download proxy for a direct media URL.
//
// The stage handler validates the source URL against the configured host
// allowlist, calls the proxy with bounded retries, and records the resolved
// media URL plus a display title derived from the suggested filename. When
// the proxy answers with something unusable, the raw response body is kept
// in the run workspace for inspection.
//
// The package also owns submission-side URL handling: NormalizeURL produces
// the queue's dedupe key and ValidateSource enforces the allowlist before a
// run is enqueued.
package resolving
