package services

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
	"github.com/custodia-labs/syncengine/internal/logger"
)

// vaultKeySize is the AES-256 key length.
const vaultKeySize = 32

// TokenVault seals token pairs with AES-256-GCM before they reach storage.
// The rest of the engine only ever holds the returned credentials ID.
type TokenVault struct {
	store   driven.CredentialsStore
	secrets driven.SecretStore
	now     func() time.Time
}

// NewTokenVault creates a vault over a credentials store and a secret store.
func NewTokenVault(store driven.CredentialsStore, secrets driven.SecretStore) *TokenVault {
	return &TokenVault{
		store:   store,
		secrets: secrets,
		now:     time.Now,
	}
}

// Store seals token under the current key. An empty id allocates a new
// handle; otherwise the existing handle is overwritten. Returns the handle.
func (v *TokenVault) Store(ctx context.Context, id string, token *domain.TokenPair) (string, error) {
	if token == nil || token.AccessToken == "" {
		return "", fmt.Errorf("store credentials: %w", domain.ErrInvalidInput)
	}
	keyID, key, err := v.secrets.CurrentKey(ctx)
	if err != nil {
		return "", fmt.Errorf("store credentials: %w", err)
	}

	plaintext, err := json.Marshal(token)
	if err != nil {
		return "", fmt.Errorf("encode token: %w", err)
	}

	now := v.now()
	creds := &domain.SealedCredentials{ID: id, KeyID: keyID, CreatedAt: now, UpdatedAt: now}
	if creds.ID == "" {
		creds.ID = uuid.NewString()
	} else if existing, err := v.store.Get(ctx, id); err == nil {
		creds.CreatedAt = existing.CreatedAt
	}

	creds.Ciphertext, err = seal(key, plaintext, []byte(creds.ID))
	if err != nil {
		return "", fmt.Errorf("seal credentials: %w", err)
	}
	if err := v.store.Save(ctx, creds); err != nil {
		return "", fmt.Errorf("save credentials: %w", err)
	}
	return creds.ID, nil
}

// Load opens the credentials behind a handle.
// Returns domain.ErrNoCredentials if the handle is unknown.
func (v *TokenVault) Load(ctx context.Context, id string) (*domain.TokenPair, error) {
	if id == "" {
		return nil, domain.ErrNoCredentials
	}
	creds, err := v.store.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNoCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("get credentials: %w", err)
	}
	return v.open(ctx, creds)
}

// Delete purges the credentials behind a handle.
func (v *TokenVault) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := v.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

// Rotate creates a new current key and reseals every stored credential
// under it. Returns the new key ID and how many credentials were resealed.
func (v *TokenVault) Rotate(ctx context.Context) (string, int, error) {
	keyID, err := v.secrets.Rotate(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("rotate key: %w", err)
	}
	n, err := v.Reseal(ctx)
	return keyID, n, err
}

// Reseal re-encrypts credentials not sealed under the current key.
// Credentials that cannot be opened are skipped and logged.
func (v *TokenVault) Reseal(ctx context.Context) (int, error) {
	all, err := v.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list credentials: %w", err)
	}
	currentID, _, err := v.secrets.CurrentKey(ctx)
	if err != nil {
		return 0, err
	}

	resealed := 0
	for i := range all {
		creds := &all[i]
		if creds.KeyID == currentID {
			continue
		}
		token, err := v.open(ctx, creds)
		if err != nil {
			logger.Warn("reseal %s: %v", creds.ID, err)
			continue
		}
		if _, err := v.Store(ctx, creds.ID, token); err != nil {
			return resealed, err
		}
		resealed++
	}
	return resealed, nil
}

func (v *TokenVault) open(ctx context.Context, creds *domain.SealedCredentials) (*domain.TokenPair, error) {
	key, err := v.secrets.Key(ctx, creds.KeyID)
	if err != nil {
		return nil, fmt.Errorf("key %s: %w", creds.KeyID, err)
	}
	plaintext, err := unseal(key, creds.Ciphertext, []byte(creds.ID))
	if err != nil {
		return nil, fmt.Errorf("open credentials %s: %w", creds.ID, err)
	}
	var token domain.TokenPair
	if err := json.Unmarshal(plaintext, &token); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &token, nil
}

// seal returns nonce || ciphertext. The credentials ID is bound as
// additional data so a blob cannot be swapped onto another handle.
func seal(key, plaintext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, aad), nil
}

func unseal(key, sealed, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, aad)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != vaultKeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", vaultKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
