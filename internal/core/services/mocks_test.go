package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/syncengine/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driving"
)

// --- Shared fakes for service tests ---

// mockAdapter implements driven.ProviderAdapter with scripted responses.
type mockAdapter struct {
	mu       sync.Mutex
	provider domain.ProviderType
	lookback time.Duration

	// pages are served in order; the cursor is the page index.
	pages [][]domain.ExternalRecord
	// fetchErrs are returned, one per call, before any page is served.
	fetchErrs  []error
	fetchCalls int
	fetchSince []time.Time
	fetchToken []string
	// fetchHook runs inside Fetch without the lock held.
	fetchHook func()

	exchangeToken *domain.TokenPair
	exchangeErr   error
	exchangeCode  string
	exchangeCalls int

	refreshToken *domain.TokenPair
	refreshErr   error
	refreshCalls int

	revokeErr   error
	revokeCalls int

	mapFn func(domain.ExternalRecord) (*domain.CanonicalDraft, error)

	webhookValid bool
	events       []domain.WebhookEvent
	parseErr     error
}

func newMockAdapter(provider domain.ProviderType) *mockAdapter {
	return &mockAdapter{provider: provider, lookback: 7 * 24 * time.Hour, webhookValid: true}
}

func (m *mockAdapter) Type() domain.ProviderType      { return m.provider }
func (m *mockAdapter) DefaultScopes() []string        { return []string{"read"} }
func (m *mockAdapter) DefaultLookback() time.Duration { return m.lookback }

func (m *mockAdapter) AuthorizationURL(req domain.AuthorizationRequest) string {
	q := url.Values{}
	q.Set("state", req.State)
	q.Set("code_challenge", req.CodeChallenge)
	q.Set("redirect_uri", req.RedirectURI)
	return "https://provider.test/authorize?" + q.Encode()
}

func (m *mockAdapter) ExchangeCode(_ context.Context, code, _, _ string) (*domain.TokenPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exchangeCalls++
	m.exchangeCode = code
	if m.exchangeErr != nil {
		return nil, m.exchangeErr
	}
	if m.exchangeToken != nil {
		tok := *m.exchangeToken
		return &tok, nil
	}
	return &domain.TokenPair{AccessToken: "access-" + code, RefreshToken: "refresh-" + code, TokenType: "Bearer", AccountID: "acct-1"}, nil
}

func (m *mockAdapter) Refresh(_ context.Context, _ *domain.TokenPair) (*domain.TokenPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshCalls++
	if m.refreshErr != nil {
		return nil, m.refreshErr
	}
	if m.refreshToken != nil {
		tok := *m.refreshToken
		return &tok, nil
	}
	return &domain.TokenPair{AccessToken: fmt.Sprintf("refreshed-%d", m.refreshCalls), Expiry: time.Now().Add(time.Hour)}, nil
}

func (m *mockAdapter) Revoke(_ context.Context, _ *domain.TokenPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revokeCalls++
	return m.revokeErr
}

func (m *mockAdapter) Fetch(_ context.Context, token *domain.TokenPair, since time.Time, cursor string) (*domain.RecordPage, error) {
	m.mu.Lock()
	m.fetchCalls++
	m.fetchSince = append(m.fetchSince, since)
	m.fetchToken = append(m.fetchToken, token.AccessToken)
	hook := m.fetchHook
	if len(m.fetchErrs) > 0 {
		err := m.fetchErrs[0]
		m.fetchErrs = m.fetchErrs[1:]
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()

	if hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	idx := 0
	if cursor != "" {
		idx, _ = strconv.Atoi(cursor)
	}
	page := &domain.RecordPage{}
	if idx < len(m.pages) {
		page.Records = append(page.Records, m.pages[idx]...)
	}
	if idx+1 < len(m.pages) {
		page.NextCursor = strconv.Itoa(idx + 1)
	}
	return page, nil
}

func (m *mockAdapter) MapToCanonical(record domain.ExternalRecord) (*domain.CanonicalDraft, error) {
	if m.mapFn != nil {
		return m.mapFn(record)
	}
	return &domain.CanonicalDraft{
		EntityType: record.EntityType,
		Title:      record.ExternalID,
		StartAt:    record.Timestamp,
		EndAt:      record.Timestamp.Add(30 * time.Minute),
	}, nil
}

func (m *mockAdapter) VerifyWebhook(_ http.Header, _ []byte) bool {
	return m.webhookValid
}

func (m *mockAdapter) ParseWebhookEvent(_ http.Header, _ []byte) ([]domain.WebhookEvent, error) {
	return m.events, m.parseErr
}

func (m *mockAdapter) setPages(pages ...[]domain.ExternalRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages = pages
}

func (m *mockAdapter) calls() (fetch, refresh int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchCalls, m.refreshCalls
}

// mockSecretStore implements driven.SecretStore with in-memory keys.
type mockSecretStore struct {
	mu      sync.Mutex
	keys    map[string][]byte
	current string
	next    int
}

func newMockSecretStore() *mockSecretStore {
	s := &mockSecretStore{keys: make(map[string][]byte)}
	_, _ = s.Rotate(context.Background())
	return s
}

func (s *mockSecretStore) CurrentKey(_ context.Context) (string, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == "" {
		return "", nil, domain.ErrMissingSecretKey
	}
	return s.current, s.keys[s.current], nil
}

func (s *mockSecretStore) Key(_ context.Context, keyID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[keyID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return key, nil
}

func (s *mockSecretStore) Rotate(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	s.next++
	id := fmt.Sprintf("k%d", s.next)
	s.keys[id] = key
	s.current = id
	return id, nil
}

// mockNotifier implements driven.Notifier and records calls.
type mockNotifier struct {
	mu        sync.Mutex
	completed []domain.SyncResult
	reconnect []string
}

func (n *mockNotifier) SyncCompleted(_ context.Context, _ *domain.Connection, result *domain.SyncResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, *result)
	return nil
}

func (n *mockNotifier) ReconnectRequired(_ context.Context, conn *domain.Connection, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reconnect = append(n.reconnect, conn.ID)
	return nil
}

func (n *mockNotifier) reconnects() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.reconnect...)
}

// mockQueue implements driving.SyncQueue and records requests.
type mockQueue struct {
	mu       sync.Mutex
	enqueued []string
	triggers []domain.SyncTrigger
	delayed  map[string]time.Duration
	reject   bool
}

func newMockQueue() *mockQueue {
	return &mockQueue{delayed: make(map[string]time.Duration)}
}

func (q *mockQueue) Enqueue(connectionID string, trigger domain.SyncTrigger) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.reject {
		return false
	}
	q.enqueued = append(q.enqueued, connectionID)
	q.triggers = append(q.triggers, trigger)
	return true
}

func (q *mockQueue) EnqueueAfter(connectionID string, _ domain.SyncTrigger, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.delayed[connectionID] = delay
}

func (q *mockQueue) ids() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.enqueued...)
}

// engineHarness wires the core services over memory stores.
type engineHarness struct {
	clock       *FakeClock
	adapter     *mockAdapter
	registry    *ProviderRegistry
	connections *memory.ConnectionStore
	creds       *memory.CredentialsStore
	states      *memory.AuthStateStore
	mappings    *memory.MappingStore
	history     *memory.HistoryStore
	leases      *memory.LeaseStore
	entities    *memory.EntityStore
	secrets     *mockSecretStore
	vault       *TokenVault
	auth        *AuthManager
	syncer      *SyncManager
	notifier    *mockNotifier
	queue       *mockQueue
}

var harnessStart = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newEngineHarness(t *testing.T) *engineHarness {
	t.Helper()
	h := &engineHarness{
		clock:       NewFakeClock(harnessStart),
		adapter:     newMockAdapter("trackerx"),
		connections: memory.NewConnectionStore(),
		creds:       memory.NewCredentialsStore(),
		states:      memory.NewAuthStateStore(),
		mappings:    memory.NewMappingStore(),
		history:     memory.NewHistoryStore(),
		entities:    memory.NewEntityStore(),
		secrets:     newMockSecretStore(),
		notifier:    &mockNotifier{},
		queue:       newMockQueue(),
	}
	h.leases = memory.NewLeaseStore().WithClock(h.clock.Now)
	h.registry = NewProviderRegistry(h.adapter)
	h.vault = NewTokenVault(h.creds, h.secrets)

	authCfg := DefaultAuthConfig()
	authCfg.BaseURL = "https://engine.test"
	h.auth = NewAuthManager(h.registry, h.connections, h.states, h.vault, h.clock, authCfg)
	h.auth.SetQueue(h.queue)

	syncCfg := DefaultSyncConfig()
	h.syncer = NewSyncManager(h.connections, h.mappings, h.history, h.leases, h.entities,
		h.registry, h.auth, h.notifier, h.clock, syncCfg)
	h.syncer.SetQueue(h.queue)
	return h
}

// connect stores an active connection with a valid token.
func (h *engineHarness) connect(t *testing.T, id, userID string, provider domain.ProviderType, lastSync time.Time) *domain.Connection {
	t.Helper()
	return h.connectWithToken(t, id, userID, provider, lastSync, &domain.TokenPair{
		AccessToken:  "access-" + id,
		RefreshToken: "refresh-" + id,
		TokenType:    "Bearer",
		Expiry:       h.clock.Now().Add(time.Hour),
	})
}

func (h *engineHarness) connectWithToken(
	t *testing.T,
	id, userID string,
	provider domain.ProviderType,
	lastSync time.Time,
	token *domain.TokenPair,
) *domain.Connection {
	t.Helper()
	ctx := context.Background()
	handle, err := h.vault.Store(ctx, "", token)
	require.NoError(t, err)

	conn := &domain.Connection{
		ID:                id,
		UserID:            userID,
		Provider:          provider,
		ExternalAccountID: "acct-" + id,
		CredentialsID:     handle,
		ExpiresAt:         token.Expiry,
		Status:            domain.StatusActive,
		LastSyncAt:        lastSync,
		CreatedAt:         h.clock.Now(),
	}
	require.NoError(t, h.connections.Save(ctx, conn))
	return conn
}

func (h *engineHarness) conn(t *testing.T, id string) *domain.Connection {
	t.Helper()
	conn, err := h.connections.Get(context.Background(), id)
	require.NoError(t, err)
	return conn
}

// record builds an activity record with a payload derived from its id.
func record(id string, at time.Time) domain.ExternalRecord {
	return domain.ExternalRecord{
		ExternalID: id,
		EntityType: domain.EntityActivity,
		Timestamp:  at,
		Payload:    []byte(`{"id":"` + id + `","at":"` + at.Format(time.RFC3339) + `"}`),
	}
}

// Compile-time checks for the fakes.
var (
	_ driving.SyncQueue = (*mockQueue)(nil)
)
