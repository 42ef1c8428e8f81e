package driven

import (
	"context"

	"github.com/custodia-labs/syncengine/internal/core/domain"
)

// UserDirectory resolves the acting user from a bearer credential.
type UserDirectory interface {
	// Resolve validates the credential and returns the user.
	// Returns domain.ErrNotFound if the credential is not valid.
	Resolve(ctx context.Context, bearer string) (*domain.User, error)
}
