package driven

import (
	"context"

	"github.com/custodia-labs/syncengine/internal/core/domain"
)

// CredentialsStore persists sealed token pairs. Only the Token Vault uses it;
// the rest of the engine holds the opaque credentials ID.
type CredentialsStore interface {
	// Save stores credentials. Creates if new, updates if exists.
	Save(ctx context.Context, creds *domain.SealedCredentials) error

	// Get retrieves credentials by ID.
	// Returns domain.ErrNotFound if they do not exist.
	Get(ctx context.Context, id string) (*domain.SealedCredentials, error)

	// List returns all stored credentials. Used when resealing after key rotation.
	List(ctx context.Context) ([]domain.SealedCredentials, error)

	// Delete removes credentials by ID. Deleting a missing ID is not an error.
	Delete(ctx context.Context, id string) error
}
