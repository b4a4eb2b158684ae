// Package main hosts the scribe CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into
// pipeline executions, queue maintenance operations, readiness checks,
// and configuration scaffolding. It centralizes configuration resolution
// and store lifecycle so subcommands can focus on user experience instead
// of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags
// here. That separation keeps the CLI declarative while the heavy lifting
// lives in reusable pipeline components.
package main
