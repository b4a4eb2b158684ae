// Package notifications delivers pipeline events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Each method covers one pipeline milestone so callers emit
// consistent messages without duplicating HTTP glue, and per-category config
// flags (completion, errors, queue) silence events the operator opted out of.
//
// Extend this package if you need alternative transports; pipeline code
// depends only on the Service interface.
package notifications
