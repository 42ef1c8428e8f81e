package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
)

// credentialsStore implements driven.CredentialsStore.
type credentialsStore struct {
	store *Store
}

var _ driven.CredentialsStore = (*credentialsStore)(nil)

// Save stores sealed credentials.
func (s *credentialsStore) Save(ctx context.Context, creds *domain.SealedCredentials) error {
	if creds == nil || creds.ID == "" {
		return domain.ErrInvalidInput
	}
	now := time.Now().UTC()
	if creds.CreatedAt.IsZero() {
		creds.CreatedAt = now
	}
	if creds.UpdatedAt.IsZero() {
		creds.UpdatedAt = now
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO credentials (id, key_id, ciphertext, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			key_id = excluded.key_id,
			ciphertext = excluded.ciphertext,
			updated_at = excluded.updated_at
	`, creds.ID, creds.KeyID, creds.Ciphertext, formatTime(creds.CreatedAt), formatTime(creds.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}
	return nil
}

// Get retrieves credentials by ID.
func (s *credentialsStore) Get(ctx context.Context, id string) (*domain.SealedCredentials, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, key_id, ciphertext, created_at, updated_at
		FROM credentials WHERE id = ?
	`, id)
	creds, err := scanCredentials(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return creds, err
}

// List returns all stored credentials.
func (s *credentialsStore) List(ctx context.Context) ([]domain.SealedCredentials, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, key_id, ciphertext, created_at, updated_at
		FROM credentials ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}
	defer rows.Close()

	var all []domain.SealedCredentials //nolint:prealloc // size unknown from query
	for rows.Next() {
		creds, err := scanCredentials(rows)
		if err != nil {
			return nil, err
		}
		all = append(all, *creds)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating credentials: %w", err)
	}
	return all, nil
}

// Delete removes credentials by ID.
func (s *credentialsStore) Delete(ctx context.Context, id string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM credentials WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting credentials: %w", err)
	}
	return nil
}

// scanCredentials scans a single credentials row.
func scanCredentials(row rowScanner) (*domain.SealedCredentials, error) {
	var creds domain.SealedCredentials
	var createdAt, updatedAt string

	if err := row.Scan(&creds.ID, &creds.KeyID, &creds.Ciphertext, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning credentials: %w", err)
	}
	creds.CreatedAt = parseTime(createdAt)
	creds.UpdatedAt = parseTime(updatedAt)
	return &creds, nil
}
