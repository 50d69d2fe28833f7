// Package cache defines the registry of named, versioned cache stores that hold
// request-key → response snapshots. Store names follow <role>-v<version>
// (static-v3, dynamic-v3) and are only ever deleted wholesale by the lifecycle
// manager. Backends (memory, disk, sqlite, redis) share the same contract:
// Open is idempotent, per-key Put/Match is atomic, and the last write wins.
// Scoped wraps any backend so that several apps can share one substrate
// without seeing each other's stores.
package cache
