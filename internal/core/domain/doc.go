// Package domain defines the core business entities of the sync engine.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Connection: A user's delegated-access grant to one provider
//   - RecordMapping: The deduplication key linking external to internal records
//   - SyncResult: One immutable sync history entry
//   - ExternalRecord / CanonicalDraft / CanonicalEntity: The mapping pipeline
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
