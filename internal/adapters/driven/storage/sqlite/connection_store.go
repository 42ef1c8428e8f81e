package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
)

// connectionStore implements driven.ConnectionStore.
type connectionStore struct {
	store *Store
}

var _ driven.ConnectionStore = (*connectionStore)(nil)

const connectionColumns = `id, user_id, provider, external_account_id, credentials_id, scopes,
	expires_at, status, status_reason, last_sync_at, created_at, updated_at`

// Save stores or updates a connection.
func (s *connectionStore) Save(ctx context.Context, conn *domain.Connection) error {
	if conn == nil || conn.ID == "" {
		return domain.ErrInvalidInput
	}
	scopes, err := marshalStrings(conn.Scopes)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = now
	}
	if conn.UpdatedAt.IsZero() {
		conn.UpdatedAt = now
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO connections (`+connectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			external_account_id = excluded.external_account_id,
			credentials_id = excluded.credentials_id,
			scopes = excluded.scopes,
			expires_at = excluded.expires_at,
			status = CASE WHEN connections.status = 'revoked'
				THEN connections.status ELSE excluded.status END,
			status_reason = CASE WHEN connections.status = 'revoked'
				THEN connections.status_reason ELSE excluded.status_reason END,
			last_sync_at = CASE
				WHEN connections.last_sync_at IS NULL OR excluded.last_sync_at > connections.last_sync_at
				THEN excluded.last_sync_at ELSE connections.last_sync_at END,
			updated_at = excluded.updated_at
	`, conn.ID, conn.UserID, string(conn.Provider), nullString(conn.ExternalAccountID),
		nullString(conn.CredentialsID), scopes, formatNullableTime(conn.ExpiresAt),
		string(conn.Status), nullString(conn.StatusReason), formatNullableTime(conn.LastSyncAt),
		formatTime(conn.CreatedAt), formatTime(conn.UpdatedAt))

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("saving connection: %w", domain.ErrAlreadyExists)
		}
		return fmt.Errorf("saving connection: %w", err)
	}
	return nil
}

// Get retrieves a connection by ID.
func (s *connectionStore) Get(ctx context.Context, id string) (*domain.Connection, error) {
	row := s.store.db.QueryRowContext(ctx, `SELECT `+connectionColumns+` FROM connections WHERE id = ?`, id)
	conn, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return conn, err
}

// FindActive returns the non-revoked connection for a user and provider.
func (s *connectionStore) FindActive(ctx context.Context, userID string, provider domain.ProviderType) (*domain.Connection, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+connectionColumns+` FROM connections
		WHERE user_id = ? AND provider = ? AND status != ?
	`, userID, string(provider), string(domain.StatusRevoked))
	conn, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return conn, err
}

// FindByExternalAccount returns non-revoked connections for a provider account.
func (s *connectionStore) FindByExternalAccount(
	ctx context.Context,
	provider domain.ProviderType,
	accountID string,
) ([]domain.Connection, error) {
	return s.query(ctx, `
		SELECT `+connectionColumns+` FROM connections
		WHERE provider = ? AND external_account_id = ? AND status != ?
		ORDER BY created_at
	`, string(provider), accountID, string(domain.StatusRevoked))
}

// ListByUser returns all of a user's connections.
func (s *connectionStore) ListByUser(ctx context.Context, userID string) ([]domain.Connection, error) {
	return s.query(ctx, `
		SELECT `+connectionColumns+` FROM connections
		WHERE user_id = ?
		ORDER BY created_at
	`, userID)
}

// ListSyncableUsers returns users with at least one non-revoked connection.
func (s *connectionStore) ListSyncableUsers(ctx context.Context) ([]string, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT DISTINCT user_id FROM connections
		WHERE status NOT IN (?, ?)
		ORDER BY user_id
	`, string(domain.StatusRevoked), string(domain.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

// UpdateLastSync advances the watermark. Older values are ignored.
func (s *connectionStore) UpdateLastSync(ctx context.Context, id string, lastSyncAt time.Time) error {
	ts := formatTime(lastSyncAt)
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE connections SET last_sync_at = ?, updated_at = ?
		WHERE id = ? AND (last_sync_at IS NULL OR last_sync_at < ?)
	`, ts, formatTime(time.Now()), id, ts)
	if err != nil {
		return fmt.Errorf("updating last sync: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.exists(ctx, id)
	}
	return nil
}

// UpdateStatus sets the lifecycle status. A revoked row only accepts revoked.
func (s *connectionStore) UpdateStatus(ctx context.Context, id string, status domain.ConnectionStatus, reason string) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE connections SET status = ?, status_reason = ?, updated_at = ?
		WHERE id = ? AND (status != ? OR ? = ?)
	`, string(status), nullString(reason), formatTime(time.Now()), id,
		string(domain.StatusRevoked), string(status), string(domain.StatusRevoked))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("updating status: %w", domain.ErrAlreadyExists)
		}
		return fmt.Errorf("updating status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if err := s.exists(ctx, id); err != nil {
			return err
		}
		return domain.ErrConnectionRevoked
	}
	return nil
}

func (s *connectionStore) exists(ctx context.Context, id string) error {
	var one int
	err := s.store.db.QueryRowContext(ctx, "SELECT 1 FROM connections WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

func (s *connectionStore) query(ctx context.Context, query string, args ...any) ([]domain.Connection, error) {
	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying connections: %w", err)
	}
	defer rows.Close()

	var conns []domain.Connection //nolint:prealloc // size unknown from query
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, *conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating connections: %w", err)
	}
	return conns, nil
}

// scanConnection scans a connection row. sql.ErrNoRows is returned unwrapped.
func scanConnection(row rowScanner) (*domain.Connection, error) {
	var conn domain.Connection
	var provider, status, scopes, createdAt, updatedAt string
	var account, credentialsID, expiresAt, reason, lastSync sql.NullString

	if err := row.Scan(&conn.ID, &conn.UserID, &provider, &account, &credentialsID, &scopes,
		&expiresAt, &status, &reason, &lastSync, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning connection: %w", err)
	}

	var err error
	if conn.Scopes, err = unmarshalStrings(scopes); err != nil {
		return nil, err
	}
	conn.Provider = domain.ProviderType(provider)
	conn.Status = domain.ConnectionStatus(status)
	conn.ExternalAccountID = account.String
	conn.CredentialsID = credentialsID.String
	conn.StatusReason = reason.String
	conn.ExpiresAt = parseNullableTime(expiresAt)
	conn.LastSyncAt = parseNullableTime(lastSync)
	conn.CreatedAt = parseTime(createdAt)
	conn.UpdatedAt = parseTime(updatedAt)
	return &conn, nil
}

// isUniqueViolation reports whether err is a SQLite unique constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
