package fitbit

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/syncengine/internal/connectors"
	"github.com/custodia-labs/syncengine/internal/core/domain"
)

const notificationBody = `[
	{"collectionType":"activities","date":"2024-03-01","ownerId":"7QX9ZK","ownerType":"user","subscriptionId":"conn-1"},
	{"collectionType":"activities","date":"2024-03-02","ownerId":"7QX9ZK","ownerType":"user","subscriptionId":"conn-1"},
	{"collectionType":"sleep","date":"2024-03-01","ownerId":"8ABCDE","ownerType":"user","subscriptionId":"conn-2"},
	{"collectionType":"activities","date":"2024-03-01","ownerId":"9FGHIJ","ownerType":"user","subscriptionId":"conn-3"}
]`

func signedHeaders(secret, body string) http.Header {
	h := http.Header{}
	h.Set(SignatureHeader, connectors.SignSHA1Base64([]byte(secret+"&"), []byte(body)))
	return h
}

func TestVerifyWebhook(t *testing.T) {
	a := New(connectors.Config{ClientSecret: testSecret})

	assert.True(t, a.VerifyWebhook(signedHeaders(testSecret, notificationBody), []byte(notificationBody)))
	assert.False(t, a.VerifyWebhook(signedHeaders("wrong", notificationBody), []byte(notificationBody)))
	assert.False(t, a.VerifyWebhook(signedHeaders(testSecret, notificationBody), []byte(notificationBody+" ")))
	assert.False(t, a.VerifyWebhook(http.Header{}, []byte(notificationBody)))

	unconfigured := New(connectors.Config{})
	assert.False(t, unconfigured.VerifyWebhook(signedHeaders("", notificationBody), []byte(notificationBody)))
}

func TestParseWebhookEvent(t *testing.T) {
	a := New(connectors.Config{ClientSecret: testSecret})

	events, err := a.ParseWebhookEvent(nil, []byte(notificationBody))

	require.NoError(t, err)
	assert.Equal(t, []domain.WebhookEvent{
		{ExternalAccountID: "7QX9ZK", EntityType: domain.EntityActivity},
		{ExternalAccountID: "9FGHIJ", EntityType: domain.EntityActivity},
	}, events)
}

func TestParseWebhookEvent_Invalid(t *testing.T) {
	a := New(connectors.Config{})

	_, err := a.ParseWebhookEvent(nil, []byte(`{"not":"an array"}`))
	assert.Error(t, err)

	events, err := a.ParseWebhookEvent(nil, []byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestVerifySubscription(t *testing.T) {
	a := New(connectors.Config{VerificationCode: "verify-me"})

	assert.True(t, a.VerifySubscription(url.Values{"verify": {"verify-me"}}))
	assert.False(t, a.VerifySubscription(url.Values{"verify": {"wrong"}}))
	assert.False(t, a.VerifySubscription(url.Values{}))

	assert.False(t, New(connectors.Config{}).VerifySubscription(url.Values{"verify": {""}}))
}
