package domain

import "time"

// TokenPair is a decrypted OAuth credential pair.
// Only the Token Vault and Provider Adapters ever see values of this type.
type TokenPair struct {
	// AccessToken is the bearer token for API access.
	AccessToken string `json:"access_token"`
	// RefreshToken is used to obtain new access tokens.
	RefreshToken string `json:"refresh_token,omitempty"`
	// TokenType is typically "Bearer".
	TokenType string `json:"token_type"`
	// Expiry is when the access token expires.
	Expiry time.Time `json:"expiry,omitempty"`
	// Scopes are the scopes granted by the provider, when reported.
	Scopes []string `json:"scopes,omitempty"`
	// AccountID is the provider's identifier for the authorized account.
	AccountID string `json:"account_id,omitempty"`
}

// IsExpired returns true if the access token is expired at now, treating
// tokens within skew of their expiry as already expired.
func (t *TokenPair) IsExpired(now time.Time, skew time.Duration) bool {
	if t.Expiry.IsZero() {
		return false
	}
	return !now.Add(skew).Before(t.Expiry)
}

// HasRefreshToken returns true if a refresh token is available.
func (t *TokenPair) HasRefreshToken() bool {
	return t.RefreshToken != ""
}

// Merge returns the pair produced by a refresh, keeping fields the provider
// omitted (refresh token rotation is optional in OAuth2).
func (t *TokenPair) Merge(refreshed *TokenPair) *TokenPair {
	merged := *refreshed
	if merged.RefreshToken == "" {
		merged.RefreshToken = t.RefreshToken
	}
	if len(merged.Scopes) == 0 {
		merged.Scopes = t.Scopes
	}
	if merged.AccountID == "" {
		merged.AccountID = t.AccountID
	}
	return &merged
}

// SealedCredentials is the encrypted form of a TokenPair at rest.
type SealedCredentials struct {
	// ID is the vault handle (UUID).
	ID string
	// KeyID identifies the Secret Store key the payload is sealed with.
	KeyID string
	// Ciphertext is nonce || AES-GCM ciphertext of the JSON TokenPair.
	Ciphertext []byte

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AuthorizationRequest carries what an adapter needs to build an auth URL.
type AuthorizationRequest struct {
	Scopes        []string
	RedirectURI   string
	State         string
	CodeChallenge string
}
