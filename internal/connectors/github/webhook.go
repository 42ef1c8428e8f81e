package github

import (
	"fmt"
	"net/http"
	"strconv"

	gh "github.com/google/go-github/v80/github"

	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/logger"
)

// Webhook delivery headers.
const (
	HeaderSignature = "X-Hub-Signature-256"
	HeaderEvent     = "X-GitHub-Event"
	HeaderDelivery  = "X-GitHub-Delivery"
)

// VerifyWebhook checks the HMAC-SHA256 signature over the raw body.
func (a *Adapter) VerifyWebhook(headers http.Header, body []byte) bool {
	signature := headers.Get(HeaderSignature)
	if signature == "" || a.cfg.WebhookSecret == "" {
		return false
	}
	return gh.ValidateSignature(signature, body, []byte(a.cfg.WebhookSecret)) == nil
}

// ParseWebhookEvent reports every user an "issues" event touches: the
// current assignees and, for unassignment, the user who was removed.
// Other event types, including the initial ping, are ignored.
func (a *Adapter) ParseWebhookEvent(headers http.Header, body []byte) ([]domain.WebhookEvent, error) {
	eventType := headers.Get(HeaderEvent)
	if eventType != "issues" {
		logger.Debug("github: ignoring %q delivery %s", eventType, headers.Get(HeaderDelivery))
		return nil, nil
	}

	payload, err := gh.ParseWebHook(eventType, body)
	if err != nil {
		return nil, fmt.Errorf("parse %s event: %w", eventType, err)
	}
	event, ok := payload.(*gh.IssuesEvent)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T for %s event", payload, eventType)
	}
	if event.GetIssue().IsPullRequest() {
		return nil, nil
	}

	seen := map[int64]bool{}
	var events []domain.WebhookEvent
	add := func(user *gh.User) {
		id := user.GetID()
		if id == 0 || seen[id] {
			return
		}
		seen[id] = true
		events = append(events, domain.WebhookEvent{
			ExternalAccountID: strconv.FormatInt(id, 10),
			EntityType:        domain.EntityTask,
		})
	}
	for _, assignee := range event.GetIssue().Assignees {
		add(assignee)
	}
	add(event.GetAssignee())
	return events, nil
}
