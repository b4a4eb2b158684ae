// Package services defines shared utilities consumed by the pipeline stage
// handlers and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that keep failure
//     classification (transient vs permanent, timeout, missing output)
//     uniform across stages.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, retries) stays consistent.
package services
