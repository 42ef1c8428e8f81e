package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
	"github.com/custodia-labs/syncengine/internal/core/ports/driving"
	"github.com/custodia-labs/syncengine/internal/logger"
)

// Ensure AuthManager implements the interface.
var _ driving.AuthManager = (*AuthManager)(nil)

// AuthConfig configures the authorization flow.
type AuthConfig struct {
	// BaseURL is the public URL of the HTTP API. Callback URLs are
	// BaseURL + /integrations/{provider}/callback.
	BaseURL string

	// StateTTL bounds how long an authorization state stays usable.
	StateTTL time.Duration

	// RefreshSkew treats tokens this close to expiry as expired.
	RefreshSkew time.Duration

	// RevokeTimeout bounds the best-effort provider revocation call.
	RevokeTimeout time.Duration

	// Scopes overrides an adapter's default scopes per provider.
	Scopes map[domain.ProviderType][]string
}

// DefaultAuthConfig returns the standard authorization settings.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		BaseURL:       "http://localhost:8080",
		StateTTL:      5 * time.Minute,
		RefreshSkew:   time.Minute,
		RevokeTimeout: 10 * time.Second,
	}
}

// AuthManager drives the OAuth authorization-code flow and the token
// lifecycle of connections.
type AuthManager struct {
	registry    driving.ProviderRegistry
	connections driven.ConnectionStore
	states      driven.AuthStateStore
	vault       *TokenVault
	queue       driving.SyncQueue
	clock       Clock
	cfg         AuthConfig
}

// NewAuthManager creates an auth manager.
func NewAuthManager(
	registry driving.ProviderRegistry,
	connections driven.ConnectionStore,
	states driven.AuthStateStore,
	vault *TokenVault,
	clock Clock,
	cfg AuthConfig,
) *AuthManager {
	if clock == nil {
		clock = SystemClock{}
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = 5 * time.Minute
	}
	return &AuthManager{
		registry:    registry,
		connections: connections,
		states:      states,
		vault:       vault,
		clock:       clock,
		cfg:         cfg,
	}
}

// SetQueue sets where initial syncs are enqueued after a successful
// authorization. The queue depends on the sync manager, which depends on
// the auth manager, so it is wired after construction.
func (m *AuthManager) SetQueue(queue driving.SyncQueue) {
	m.queue = queue
}

// RedirectURI returns the callback URL registered for a provider.
func (m *AuthManager) RedirectURI(provider domain.ProviderType) string {
	return strings.TrimRight(m.cfg.BaseURL, "/") + "/integrations/" + string(provider) + "/callback"
}

// BeginAuthorization issues a state and returns the provider consent URL.
func (m *AuthManager) BeginAuthorization(ctx context.Context, provider domain.ProviderType, userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("begin authorization: %w", domain.ErrInvalidInput)
	}
	adapter, err := m.registry.Get(provider)
	if err != nil {
		return "", err
	}

	state, err := generateState()
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	verifier, err := generateCodeVerifier()
	if err != nil {
		return "", fmt.Errorf("generate code verifier: %w", err)
	}

	scopes := m.cfg.Scopes[provider]
	if len(scopes) == 0 {
		scopes = adapter.DefaultScopes()
	}

	now := m.clock.Now()
	authState := &domain.AuthState{
		State:        state,
		UserID:       userID,
		Provider:     provider,
		CodeVerifier: verifier,
		RedirectURI:  m.RedirectURI(provider),
		Scopes:       scopes,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.cfg.StateTTL),
	}
	if err := m.states.Save(ctx, authState); err != nil {
		return "", fmt.Errorf("save state: %w", err)
	}

	logger.Debug("authorization started for user %s provider %s", userID, provider)
	return adapter.AuthorizationURL(domain.AuthorizationRequest{
		Scopes:        scopes,
		RedirectURI:   authState.RedirectURI,
		State:         state,
		CodeChallenge: generateCodeChallenge(verifier),
	}), nil
}

// CompleteAuthorization consumes the state and stores an active connection.
// A second call with the same state fails: the state is gone after the first.
func (m *AuthManager) CompleteAuthorization(
	ctx context.Context,
	provider domain.ProviderType,
	code, state string,
) (*domain.Connection, error) {
	if state == "" {
		return nil, m.rejectState(provider, "missing state")
	}

	authState, err := m.states.Consume(ctx, state)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, m.rejectState(provider, "unknown or already used state")
	}
	if err != nil {
		return nil, fmt.Errorf("consume state: %w", err)
	}
	if authState.Expired(m.clock.Now()) {
		return nil, m.rejectState(provider, "expired state")
	}
	if authState.Provider != provider {
		return nil, m.rejectState(provider, "state issued for "+string(authState.Provider))
	}
	if code == "" {
		return nil, &domain.AuthError{Provider: provider, Reason: "missing authorization code", Err: domain.ErrInvalidInput}
	}

	adapter, err := m.registry.Get(provider)
	if err != nil {
		return nil, &domain.AuthError{Provider: provider, Reason: "provider not registered", Err: err}
	}
	token, err := adapter.ExchangeCode(ctx, code, authState.RedirectURI, authState.CodeVerifier)
	if err != nil {
		return nil, &domain.AuthError{Provider: provider, Reason: "code exchange rejected", Err: err}
	}

	conn, err := m.upsertConnection(ctx, authState, token)
	if err != nil {
		return nil, err
	}

	logger.Info("connection %s authorized for user %s", conn, conn.UserID)
	if m.queue != nil && !m.queue.Enqueue(conn.ID, domain.TriggerInitial) {
		logger.Warn("initial sync for %s not enqueued", conn.ID)
	}
	return conn, nil
}

// upsertConnection stores the exchanged tokens. An existing non-revoked
// connection for the same user and provider is reauthorized in place so its
// watermark and mappings survive.
func (m *AuthManager) upsertConnection(
	ctx context.Context,
	authState *domain.AuthState,
	token *domain.TokenPair,
) (*domain.Connection, error) {
	now := m.clock.Now()

	conn, err := m.connections.FindActive(ctx, authState.UserID, authState.Provider)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		conn = &domain.Connection{
			ID:        uuid.NewString(),
			UserID:    authState.UserID,
			Provider:  authState.Provider,
			CreatedAt: now,
		}
	case err != nil:
		return nil, fmt.Errorf("find connection: %w", err)
	}

	handle, err := m.vault.Store(ctx, conn.CredentialsID, token)
	if err != nil {
		return nil, err
	}

	conn.CredentialsID = handle
	if token.AccountID != "" {
		conn.ExternalAccountID = token.AccountID
	}
	conn.Scopes = token.Scopes
	if len(conn.Scopes) == 0 {
		conn.Scopes = authState.Scopes
	}
	conn.ExpiresAt = token.Expiry
	conn.Status = domain.StatusActive
	conn.StatusReason = ""
	conn.UpdatedAt = now

	if err := m.connections.Save(ctx, conn); err != nil {
		return nil, fmt.Errorf("save connection: %w", err)
	}
	return conn, nil
}

func (m *AuthManager) rejectState(provider domain.ProviderType, reason string) error {
	logger.Security("authorization state rejected", "provider", string(provider), "reason", reason)
	return &domain.AuthError{Provider: provider, Reason: reason, Err: domain.ErrStateInvalid}
}

// EnsureFreshToken returns usable tokens, refreshing expired ones.
// Callers must hold the connection's lease.
func (m *AuthManager) EnsureFreshToken(ctx context.Context, conn *domain.Connection) (*domain.TokenPair, error) {
	token, err := m.loadToken(ctx, conn)
	if err != nil {
		return nil, err
	}
	if !token.IsExpired(m.clock.Now(), m.cfg.RefreshSkew) {
		return token, nil
	}

	if err := m.connections.UpdateStatus(ctx, conn.ID, domain.StatusExpired, "access token expired"); err != nil {
		logger.Warn("mark %s expired: %v", conn.ID, err)
	}
	return m.refresh(ctx, conn, token)
}

// ForceRefresh refreshes tokens regardless of their recorded expiry.
func (m *AuthManager) ForceRefresh(ctx context.Context, conn *domain.Connection) (*domain.TokenPair, error) {
	token, err := m.loadToken(ctx, conn)
	if err != nil {
		return nil, err
	}
	return m.refresh(ctx, conn, token)
}

func (m *AuthManager) loadToken(ctx context.Context, conn *domain.Connection) (*domain.TokenPair, error) {
	if conn.Status == domain.StatusRevoked {
		return nil, &domain.TokenRefreshError{ConnectionID: conn.ID, Terminal: true, Err: domain.ErrConnectionRevoked}
	}
	token, err := m.vault.Load(ctx, conn.CredentialsID)
	if errors.Is(err, domain.ErrNoCredentials) {
		m.setStatus(ctx, conn, domain.StatusRevoked, "credentials missing")
		return nil, &domain.TokenRefreshError{
			ConnectionID: conn.ID,
			Terminal:     true,
			Err:          fmt.Errorf("%w: %w", domain.ErrReauthorizationRequired, err),
		}
	}
	if err != nil {
		return nil, &domain.TokenRefreshError{ConnectionID: conn.ID, Err: err}
	}
	return token, nil
}

func (m *AuthManager) refresh(ctx context.Context, conn *domain.Connection, token *domain.TokenPair) (*domain.TokenPair, error) {
	if !token.HasRefreshToken() {
		m.setStatus(ctx, conn, domain.StatusRevoked, "access token expired without refresh token")
		return nil, &domain.TokenRefreshError{ConnectionID: conn.ID, Terminal: true, Err: domain.ErrReauthorizationRequired}
	}
	adapter, err := m.registry.Get(conn.Provider)
	if err != nil {
		return nil, &domain.TokenRefreshError{ConnectionID: conn.ID, Err: err}
	}

	refreshed, err := adapter.Refresh(ctx, token)
	if err != nil {
		if domain.IsPermanent(err) || domain.IsUnauthorized(err) {
			m.setStatus(ctx, conn, domain.StatusRevoked, "refresh token rejected")
			logger.Warn("connection %s revoked: refresh rejected: %v", conn.ID, err)
			return nil, &domain.TokenRefreshError{
				ConnectionID: conn.ID,
				Terminal:     true,
				Err:          fmt.Errorf("%w: %w", domain.ErrReauthorizationRequired, err),
			}
		}
		m.setStatus(ctx, conn, domain.StatusError, "token refresh failed")
		return nil, &domain.TokenRefreshError{ConnectionID: conn.ID, Err: err}
	}

	// A revoke that landed during the provider call wins over the new tokens
	if current, err := m.connections.Get(ctx, conn.ID); err == nil && current.Status == domain.StatusRevoked {
		conn.Status = domain.StatusRevoked
		return nil, &domain.TokenRefreshError{ConnectionID: conn.ID, Terminal: true, Err: domain.ErrConnectionRevoked}
	}

	merged := token.Merge(refreshed)
	if _, err := m.vault.Store(ctx, conn.CredentialsID, merged); err != nil {
		return nil, &domain.TokenRefreshError{ConnectionID: conn.ID, Err: err}
	}

	conn.ExpiresAt = merged.Expiry
	if len(merged.Scopes) > 0 {
		conn.Scopes = merged.Scopes
	}
	conn.Status = domain.StatusActive
	conn.StatusReason = ""
	conn.UpdatedAt = m.clock.Now()
	if err := m.connections.Save(ctx, conn); err != nil {
		return nil, &domain.TokenRefreshError{ConnectionID: conn.ID, Err: fmt.Errorf("save connection: %w", err)}
	}

	logger.Debug("refreshed token for %s", conn)
	return merged, nil
}

// Revoke disconnects a connection. The provider call is best-effort; the
// connection is revoked and its credentials purged regardless.
func (m *AuthManager) Revoke(ctx context.Context, conn *domain.Connection) error {
	if conn.Status == domain.StatusRevoked {
		return nil
	}

	if token, err := m.vault.Load(ctx, conn.CredentialsID); err == nil {
		if adapter, err := m.registry.Get(conn.Provider); err == nil {
			revokeCtx, cancel := context.WithTimeout(ctx, m.revokeTimeout())
			if err := adapter.Revoke(revokeCtx, token); err != nil {
				logger.Warn("provider revocation for %s failed: %v", conn.ID, err)
			}
			cancel()
		}
	} else {
		logger.Warn("revoke %s: credentials unavailable: %v", conn.ID, err)
	}

	if err := m.vault.Delete(ctx, conn.CredentialsID); err != nil {
		logger.Warn("purge credentials for %s: %v", conn.ID, err)
	}
	if err := m.connections.UpdateStatus(ctx, conn.ID, domain.StatusRevoked, "disconnected by user"); err != nil {
		return fmt.Errorf("revoke connection: %w", err)
	}
	conn.Status = domain.StatusRevoked
	logger.Info("connection %s revoked", conn.ID)
	return nil
}

// PurgeExpiredStates removes abandoned authorization states.
func (m *AuthManager) PurgeExpiredStates(ctx context.Context) (int, error) {
	return m.states.PurgeExpired(ctx, m.clock.Now())
}

func (m *AuthManager) revokeTimeout() time.Duration {
	if m.cfg.RevokeTimeout > 0 {
		return m.cfg.RevokeTimeout
	}
	return 10 * time.Second
}

func (m *AuthManager) setStatus(ctx context.Context, conn *domain.Connection, status domain.ConnectionStatus, reason string) {
	err := m.connections.UpdateStatus(context.WithoutCancel(ctx), conn.ID, status, reason)
	switch {
	case errors.Is(err, domain.ErrConnectionRevoked):
		conn.Status = domain.StatusRevoked
		return
	case err != nil:
		logger.Warn("set %s status %s: %v", conn.ID, status, err)
	}
	conn.Status = status
	conn.StatusReason = reason
}
