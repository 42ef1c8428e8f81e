package googlecalendar

import (
	"net/http"

	"github.com/custodia-labs/syncengine/internal/connectors"
	"github.com/custodia-labs/syncengine/internal/core/domain"
)

// Push notification headers.
const (
	HeaderChannelID     = "X-Goog-Channel-ID"
	HeaderChannelToken  = "X-Goog-Channel-Token"
	HeaderResourceState = "X-Goog-Resource-State"
)

// ChannelToken returns the token a push channel for connectionID must be
// registered with. Channels are named after the connection they serve.
func ChannelToken(secret, connectionID string) string {
	return connectors.SignSHA256Hex([]byte(secret), []byte(connectionID))
}

// VerifyWebhook checks that the channel token was derived from the
// channel id with the webhook secret.
func (a *Adapter) VerifyWebhook(headers http.Header, _ []byte) bool {
	channelID := headers.Get(HeaderChannelID)
	token := headers.Get(HeaderChannelToken)
	if channelID == "" || token == "" || a.cfg.WebhookSecret == "" {
		return false
	}
	return connectors.Equal(token, ChannelToken(a.cfg.WebhookSecret, channelID))
}

// ParseWebhookEvent routes a push notification to the channel's
// connection. The initial "sync" message only confirms the channel.
func (a *Adapter) ParseWebhookEvent(headers http.Header, _ []byte) ([]domain.WebhookEvent, error) {
	switch headers.Get(HeaderResourceState) {
	case "sync", "":
		return nil, nil
	}
	return []domain.WebhookEvent{{
		ConnectionID: headers.Get(HeaderChannelID),
		EntityType:   domain.EntityCalendarEvent,
	}}, nil
}
