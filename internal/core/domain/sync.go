package domain

import "time"

// SyncTrigger identifies what started a sync run.
type SyncTrigger string

const (
	TriggerScheduled SyncTrigger = "scheduled"
	TriggerManual    SyncTrigger = "manual"
	TriggerWebhook   SyncTrigger = "webhook"
	TriggerInitial   SyncTrigger = "initial"
)

// SyncStatus is the outcome of a sync run.
type SyncStatus string

const (
	// SyncSuccess means every fetched record was processed.
	SyncSuccess SyncStatus = "success"
	// SyncPartial means some records errored or the run was interrupted.
	SyncPartial SyncStatus = "partial"
	// SyncFailed means the run failed before any record was processed.
	SyncFailed SyncStatus = "failed"
	// SyncRateLimited means the provider throttled the run; it is rescheduled.
	SyncRateLimited SyncStatus = "rate-limited"
	// SyncSkippedInProgress means another run holds the connection's lease.
	// Never written to history.
	SyncSkippedInProgress SyncStatus = "skipped-in-progress"
)

// SyncCounts tallies per-record outcomes of a run.
type SyncCounts struct {
	Fetched          int
	Created          int
	Updated          int
	Skipped          int
	ConflictDeferred int
	Errored          int
}

// Processed returns the number of records handled without error.
func (c SyncCounts) Processed() int {
	return c.Created + c.Updated + c.Skipped + c.ConflictDeferred
}

// SyncResult is one append-only sync history entry.
type SyncResult struct {
	ID           string
	ConnectionID string
	Trigger      SyncTrigger
	Status       SyncStatus
	Counts       SyncCounts
	ErrorSummary string
	StartedAt    time.Time
	EndedAt      time.Time
}

// Duration returns how long the run took.
func (r *SyncResult) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// Lease is a time-boxed exclusivity token over one connection.
type Lease struct {
	ConnectionID string
	Holder       string
	ExpiresAt    time.Time
}

// User is an acting user resolved by the User Directory.
type User struct {
	ID    string
	Email string
}
