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

// authStateStore implements driven.AuthStateStore.
type authStateStore struct {
	store *Store
}

var _ driven.AuthStateStore = (*authStateStore)(nil)

// Save stores a new authorization state.
func (s *authStateStore) Save(ctx context.Context, state *domain.AuthState) error {
	if state == nil || state.State == "" {
		return domain.ErrInvalidInput
	}
	scopes, err := marshalStrings(state.Scopes)
	if err != nil {
		return err
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO auth_states
			(state, user_id, provider, code_verifier, redirect_uri, scopes, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, state.State, state.UserID, string(state.Provider), state.CodeVerifier, state.RedirectURI,
		scopes, formatTime(state.CreatedAt), formatTime(state.ExpiresAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("saving auth state: %w", domain.ErrAlreadyExists)
		}
		return fmt.Errorf("saving auth state: %w", err)
	}
	return nil
}

// Consume deletes and returns a state in one statement, so a state is
// handed out at most once.
func (s *authStateStore) Consume(ctx context.Context, state string) (*domain.AuthState, error) {
	row := s.store.db.QueryRowContext(ctx, `
		DELETE FROM auth_states WHERE state = ?
		RETURNING state, user_id, provider, code_verifier, redirect_uri, scopes, created_at, expires_at
	`, state)

	var st domain.AuthState
	var provider, scopes, createdAt, expiresAt string
	if err := row.Scan(&st.State, &st.UserID, &provider, &st.CodeVerifier, &st.RedirectURI,
		&scopes, &createdAt, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("consuming auth state: %w", err)
	}

	var err error
	if st.Scopes, err = unmarshalStrings(scopes); err != nil {
		return nil, err
	}
	st.Provider = domain.ProviderType(provider)
	st.CreatedAt = parseTime(createdAt)
	st.ExpiresAt = parseTime(expiresAt)
	return &st, nil
}

// PurgeExpired deletes states past their deadline.
func (s *authStateStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.store.db.ExecContext(ctx, "DELETE FROM auth_states WHERE expires_at <= ?", formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("purging auth states: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purging auth states: %w", err)
	}
	return int(n), nil
}
