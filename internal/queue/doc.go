// Package queue persists transcription runs in SQLite and exposes helpers
// for driving their lifecycle.
//
// The Store manages database connections, schema initialization, stats
// queries, heartbeat tracking, stuck-run recovery, and status transitions
// that mirror the pipeline stages. Runs capture progress, the resolved media
// URL, and the artifact paths each stage produces so stages can coordinate
// without additional state.
//
// The database is treated as transient storage for in-flight jobs plus a
// lightweight submission history (duplicate URLs are detected against it),
// not a long-term archive. Schema changes bump the version in schema.go;
// users clear the database to adopt the new schema.
//
// Treat this package as the single source of truth for queue semantics; when
// you add new statuses or columns, update schema.sql and bump schemaVersion.
package queue
