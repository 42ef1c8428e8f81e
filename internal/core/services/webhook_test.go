package services

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/syncengine/internal/core/domain"
)

// verifyingAdapter adds a subscription challenge to the mock adapter.
type verifyingAdapter struct {
	*mockAdapter
	code string
}

func (a *verifyingAdapter) VerifySubscription(query url.Values) bool {
	return query.Get("verify") == a.code
}

func newTestGateway(t *testing.T) (*WebhookGateway, *engineHarness) {
	t.Helper()
	h := newEngineHarness(t)
	return NewWebhookGateway(h.registry, h.connections, h.queue), h
}

func TestWebhookGateway_EnqueuesByAccount(t *testing.T) {
	gw, h := newTestGateway(t)
	h.connect(t, "c1", "u1", "trackerx", day0)
	h.adapter.events = []domain.WebhookEvent{
		{ExternalAccountID: "acct-c1", EntityType: domain.EntityActivity},
		{ExternalAccountID: "acct-c1", EntityType: domain.EntityActivity},
	}

	n, err := gw.Handle(context.Background(), "trackerx", http.Header{}, []byte(`[]`))
	require.NoError(t, err)

	assert.Equal(t, 1, n, "duplicate events coalesce into one sync")
	assert.Equal(t, []string{"c1"}, h.queue.ids())
	assert.Equal(t, []domain.SyncTrigger{domain.TriggerWebhook}, h.queue.triggers)
}

func TestWebhookGateway_EnqueuesByConnectionID(t *testing.T) {
	gw, h := newTestGateway(t)
	h.connect(t, "c1", "u1", "trackerx", day0)
	h.adapter.events = []domain.WebhookEvent{{ConnectionID: "c1"}}

	n, err := gw.Handle(context.Background(), "trackerx", http.Header{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWebhookGateway_BadSignature(t *testing.T) {
	gw, h := newTestGateway(t)
	h.connect(t, "c1", "u1", "trackerx", day0)
	h.adapter.webhookValid = false
	h.adapter.events = []domain.WebhookEvent{{ExternalAccountID: "acct-c1"}}

	n, err := gw.Handle(context.Background(), "trackerx", http.Header{}, []byte(`forged`))

	var sigErr *domain.SignatureError
	require.ErrorAs(t, err, &sigErr)
	assert.Zero(t, n)
	assert.Empty(t, h.queue.ids())
}

func TestWebhookGateway_IgnoresUnroutableEvents(t *testing.T) {
	gw, h := newTestGateway(t)
	h.connect(t, "c1", "u1", "trackerx", day0)
	revoked := h.connect(t, "c2", "u2", "trackerx", day0)
	require.NoError(t, h.auth.Revoke(context.Background(), revoked))

	h.adapter.events = []domain.WebhookEvent{
		{ExternalAccountID: "unknown"},
		{ConnectionID: "missing"},
		{ConnectionID: "c2"},
		{ConnectionID: "c1", ExternalAccountID: "someone-else"},
		{},
	}

	n, err := gw.Handle(context.Background(), "trackerx", http.Header{}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, h.queue.ids())
}

func TestWebhookGateway_ParseError(t *testing.T) {
	gw, h := newTestGateway(t)
	h.adapter.parseErr = errors.New("not json")

	_, err := gw.Handle(context.Background(), "trackerx", http.Header{}, []byte(`{`))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestWebhookGateway_UnknownProvider(t *testing.T) {
	gw, _ := newTestGateway(t)
	_, err := gw.Handle(context.Background(), "nope", http.Header{}, nil)
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

func TestWebhookGateway_QueueFullIsNotAnError(t *testing.T) {
	gw, h := newTestGateway(t)
	h.connect(t, "c1", "u1", "trackerx", day0)
	h.queue.reject = true
	h.adapter.events = []domain.WebhookEvent{{ExternalAccountID: "acct-c1"}}

	n, err := gw.Handle(context.Background(), "trackerx", http.Header{}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWebhookGateway_VerifySubscription(t *testing.T) {
	gw, h := newTestGateway(t)
	h.registry.Register(&verifyingAdapter{mockAdapter: newMockAdapter("verifyz"), code: "abc"})

	ok, err := gw.VerifySubscription(context.Background(), "verifyz", url.Values{"verify": {"abc"}})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = gw.VerifySubscription(context.Background(), "verifyz", url.Values{"verify": {"wrong"}})
	require.NoError(t, err)
	assert.False(t, ok)

	// Adapters without a challenge protocol never verify
	ok, err = gw.VerifySubscription(context.Background(), "trackerx", url.Values{"verify": {"abc"}})
	require.NoError(t, err)
	assert.False(t, ok)
}
