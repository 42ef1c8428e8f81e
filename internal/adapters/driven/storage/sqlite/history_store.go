package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
)

// historyStore implements driven.HistoryStore.
type historyStore struct {
	store *Store
}

var _ driven.HistoryStore = (*historyStore)(nil)

// Append writes one sync result.
func (s *historyStore) Append(ctx context.Context, r *domain.SyncResult) error {
	if r == nil || r.ConnectionID == "" {
		return domain.ErrInvalidInput
	}
	id := r.ID
	if id == "" {
		id = uuid.NewString()
	}
	c := r.Counts
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO sync_history
			(id, connection_id, trigger_kind, status, fetched, created, updated, skipped,
			 conflict_deferred, errored, error_summary, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, r.ConnectionID, string(r.Trigger), string(r.Status),
		c.Fetched, c.Created, c.Updated, c.Skipped, c.ConflictDeferred, c.Errored,
		nullString(r.ErrorSummary), formatTime(r.StartedAt), formatTime(r.EndedAt))
	if err != nil {
		return fmt.Errorf("appending sync history: %w", err)
	}
	return nil
}

// List returns a connection's most recent results, newest first.
// A non-positive limit returns everything.
func (s *historyStore) List(ctx context.Context, connectionID string, limit int) ([]domain.SyncResult, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, connection_id, trigger_kind, status, fetched, created, updated, skipped,
			conflict_deferred, errored, error_summary, started_at, ended_at
		FROM sync_history
		WHERE connection_id = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, connectionID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sync history: %w", err)
	}
	defer rows.Close()

	var results []domain.SyncResult //nolint:prealloc // size unknown from query
	for rows.Next() {
		var r domain.SyncResult
		var trigger, status, startedAt, endedAt string
		var summary sql.NullString
		if err := rows.Scan(&r.ID, &r.ConnectionID, &trigger, &status,
			&r.Counts.Fetched, &r.Counts.Created, &r.Counts.Updated, &r.Counts.Skipped,
			&r.Counts.ConflictDeferred, &r.Counts.Errored, &summary, &startedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scanning sync result: %w", err)
		}
		r.Trigger = domain.SyncTrigger(trigger)
		r.Status = domain.SyncStatus(status)
		r.ErrorSummary = summary.String
		r.StartedAt = parseTime(startedAt)
		r.EndedAt = parseTime(endedAt)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sync history: %w", err)
	}
	return results, nil
}
