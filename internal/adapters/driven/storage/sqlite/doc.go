// Package sqlite provides a unified SQLite-based implementation of driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements multiple store interfaces
// through a single database connection:
//
//   - ConnectionStore: Connections and their resume watermarks
//   - CredentialsStore: Sealed token pairs
//   - AuthStateStore: Single-use authorization states
//   - MappingStore: External record mappings
//   - HistoryStore: Append-only sync history
//   - LeaseStore: Per-connection sync leases for single-node deployments
//   - EntityStore: Canonical entities when no host repository is wired
//   - SchedulerStore: Scheduler task state and results
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Time Encoding
//
// Timestamps are stored as fixed-width UTC text so that string comparison
// orders them correctly. Watermark and lease checks rely on this.
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode.
package sqlite
