package fitbit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/custodia-labs/syncengine/internal/connectors"
	"github.com/custodia-labs/syncengine/internal/core/domain"
)

// SignatureHeader carries the subscription notification signature.
const SignatureHeader = "X-Fitbit-Signature"

// notification is one entry of a subscription callback.
type notification struct {
	CollectionType string `json:"collectionType"`
	Date           string `json:"date"`
	OwnerID        string `json:"ownerId"`
	OwnerType      string `json:"ownerType"`
	SubscriptionID string `json:"subscriptionId"`
}

// VerifyWebhook checks X-Fitbit-Signature: base64(HMAC-SHA1(secret&, body)).
func (a *Adapter) VerifyWebhook(headers http.Header, body []byte) bool {
	signature := headers.Get(SignatureHeader)
	if signature == "" || a.cfg.ClientSecret == "" {
		return false
	}
	expected := connectors.SignSHA1Base64([]byte(a.cfg.ClientSecret+"&"), body)
	return connectors.Equal(signature, expected)
}

// ParseWebhookEvent routes notifications by owner id. Collections other
// than activities carry nothing this adapter syncs.
func (a *Adapter) ParseWebhookEvent(_ http.Header, body []byte) ([]domain.WebhookEvent, error) {
	var notes []notification
	if err := json.Unmarshal(body, &notes); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}

	seen := make(map[string]bool)
	var events []domain.WebhookEvent
	for _, n := range notes {
		if n.CollectionType != "activities" || n.OwnerID == "" || seen[n.OwnerID] {
			continue
		}
		seen[n.OwnerID] = true
		events = append(events, domain.WebhookEvent{
			ExternalAccountID: n.OwnerID,
			EntityType:        domain.EntityActivity,
		})
	}
	return events, nil
}

// VerifySubscription answers the subscriber verification probe: the
// configured code must match the verify parameter.
func (a *Adapter) VerifySubscription(query url.Values) bool {
	code := query.Get("verify")
	if code == "" || a.cfg.VerificationCode == "" {
		return false
	}
	return connectors.Equal(code, a.cfg.VerificationCode)
}
