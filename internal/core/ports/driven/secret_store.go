package driven

import "context"

// SecretStore supplies symmetric key material. Keys are managed outside the
// engine; the Token Vault only ever asks for them by ID.
type SecretStore interface {
	// CurrentKey returns the key new credentials are sealed with.
	// Returns domain.ErrMissingSecretKey if none is configured.
	CurrentKey(ctx context.Context) (keyID string, key []byte, err error)

	// Key returns a key by ID, for opening credentials sealed under older keys.
	Key(ctx context.Context, keyID string) ([]byte, error)

	// Rotate generates a new current key and returns its ID.
	// Previous keys stay readable.
	Rotate(ctx context.Context) (string, error)
}
