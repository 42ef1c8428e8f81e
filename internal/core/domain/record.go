package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Entity types produced by the built-in adapters.
const (
	EntityActivity      = "activity"
	EntityCalendarEvent = "calendar_event"
	EntityTask          = "task"
)

// ExternalRecord is one record as fetched from a provider, before mapping.
type ExternalRecord struct {
	// ExternalID is the provider's identifier for the record.
	ExternalID string

	// EntityType is the internal entity type the record maps to.
	EntityType string

	// Timestamp orders the record in the sync window. It becomes the
	// connection's resume watermark once the record is processed.
	Timestamp time.Time

	// Payload is the raw provider payload. Its hash is the change detector.
	Payload []byte
}

// Fingerprint returns a stable hash of the payload for change detection.
func (r *ExternalRecord) Fingerprint() string {
	sum := sha256.Sum256(r.Payload)
	return hex.EncodeToString(sum[:])
}

// RecordPage is one page of a provider fetch.
type RecordPage struct {
	// Records are in ascending Timestamp order within the page.
	Records []ExternalRecord

	// NextCursor resumes the fetch at the following page.
	// Empty when this is the last page.
	NextCursor string
}

// EntityOrigin records who produced a canonical entity.
type EntityOrigin string

const (
	// OriginManual marks entities entered by the user. They always win conflicts.
	OriginManual EntityOrigin = "manual"
	// OriginSynced marks entities created by the sync engine.
	OriginSynced EntityOrigin = "synced"
)

// CanonicalDraft is the provider-agnostic shape produced by mapping.
type CanonicalDraft struct {
	UserID     string
	EntityType string
	Provider   ProviderType
	Title      string
	StartAt    time.Time
	EndAt      time.Time
	Attributes map[string]any
}

// CanonicalEntity is a user-visible record owned by a domain repository.
type CanonicalEntity struct {
	ID         string
	UserID     string
	EntityType string
	Origin     EntityOrigin
	Provider   ProviderType
	Title      string
	StartAt    time.Time
	EndAt      time.Time
	Attributes map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RecordMapping links an external record to its canonical entity.
// Unique on (ConnectionID, ExternalID, EntityType): a record is new iff no
// mapping exists for its key.
type RecordMapping struct {
	ConnectionID string
	ExternalID   string
	EntityType   string

	// EntityID is the canonical entity reference. Empty when the record was
	// deferred to a manual entry occupying the same slot.
	EntityID string

	// Snapshot is the last-seen external payload.
	Snapshot []byte

	// Fingerprint is the hash of Snapshot.
	Fingerprint string

	LastSyncedAt time.Time
}

// Key returns the mapping's deduplication key.
func (m *RecordMapping) Key() MappingKey {
	return MappingKey{ConnectionID: m.ConnectionID, ExternalID: m.ExternalID, EntityType: m.EntityType}
}

// MappingKey is the unique key of a RecordMapping.
type MappingKey struct {
	ConnectionID string
	ExternalID   string
	EntityType   string
}

// WebhookEvent is the minimal hint parsed from a provider callback.
type WebhookEvent struct {
	// ConnectionID is set when the provider echoes our connection id
	// (e.g. push channel ids).
	ConnectionID string

	// ExternalAccountID identifies the affected account otherwise.
	ExternalAccountID string

	// EntityType is the changed collection, if reported.
	EntityType string
}
