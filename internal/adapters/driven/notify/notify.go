// Package notify delivers sync summaries and reconnect prompts.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/slack-go/slack"

	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
	"github.com/custodia-labs/syncengine/internal/logger"
)

// Verify interface compliance.
var (
	_ driven.Notifier = (*Slack)(nil)
	_ driven.Notifier = (*Log)(nil)
	_ driven.Notifier = (Multi)(nil)
)

// Slack posts to an incoming webhook.
type Slack struct {
	webhookURL string
	httpClient *http.Client
}

// NewSlack creates a Slack notifier. A nil client uses http.DefaultClient.
func NewSlack(webhookURL string, httpClient *http.Client) *Slack {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Slack{webhookURL: webhookURL, httpClient: httpClient}
}

// SyncCompleted posts a summary. Successful runs that changed nothing are
// not posted.
func (s *Slack) SyncCompleted(ctx context.Context, conn *domain.Connection, result *domain.SyncResult) error {
	if result.Status == domain.SyncSuccess && result.Counts.Created+result.Counts.Updated == 0 {
		return nil
	}

	c := result.Counts
	attachment := slack.Attachment{
		Color: statusColor(result.Status),
		Title: fmt.Sprintf("%s sync %s", conn.Provider, result.Status),
		Fields: []slack.AttachmentField{
			{Title: "Connection", Value: conn.ID, Short: true},
			{Title: "Trigger", Value: string(result.Trigger), Short: true},
			{Title: "Fetched", Value: strconv.Itoa(c.Fetched), Short: true},
			{Title: "Created", Value: strconv.Itoa(c.Created), Short: true},
			{Title: "Updated", Value: strconv.Itoa(c.Updated), Short: true},
			{Title: "Skipped", Value: strconv.Itoa(c.Skipped), Short: true},
			{Title: "Deferred", Value: strconv.Itoa(c.ConflictDeferred), Short: true},
			{Title: "Errored", Value: strconv.Itoa(c.Errored), Short: true},
		},
	}
	if result.ErrorSummary != "" {
		attachment.Text = result.ErrorSummary
	}

	return s.post(ctx, &slack.WebhookMessage{
		Text:        fmt.Sprintf("Sync finished for user %s", conn.UserID),
		Attachments: []slack.Attachment{attachment},
	})
}

// ReconnectRequired posts a reconnect prompt.
func (s *Slack) ReconnectRequired(ctx context.Context, conn *domain.Connection, reason string) error {
	return s.post(ctx, &slack.WebhookMessage{
		Text: fmt.Sprintf("User %s must reconnect %s", conn.UserID, conn.Provider),
		Attachments: []slack.Attachment{{
			Color: "danger",
			Title: "Reauthorization required",
			Text:  reason,
			Fields: []slack.AttachmentField{
				{Title: "Connection", Value: conn.ID, Short: true},
				{Title: "Status", Value: string(conn.Status), Short: true},
			},
		}},
	})
}

func (s *Slack) post(ctx context.Context, msg *slack.WebhookMessage) error {
	if err := slack.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.httpClient, msg); err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	return nil
}

func statusColor(status domain.SyncStatus) string {
	switch status {
	case domain.SyncSuccess:
		return "good"
	case domain.SyncPartial, domain.SyncRateLimited:
		return "warning"
	default:
		return "danger"
	}
}

// Log writes notifications to the process log.
type Log struct{}

// SyncCompleted logs the run summary.
func (Log) SyncCompleted(_ context.Context, conn *domain.Connection, result *domain.SyncResult) error {
	c := result.Counts
	logger.Info("sync %s %s: fetched=%d created=%d updated=%d skipped=%d deferred=%d errored=%d",
		conn.ID, result.Status, c.Fetched, c.Created, c.Updated, c.Skipped, c.ConflictDeferred, c.Errored)
	return nil
}

// ReconnectRequired logs the prompt.
func (Log) ReconnectRequired(_ context.Context, conn *domain.Connection, reason string) error {
	logger.Warn("user %s must reconnect %s (%s): %s", conn.UserID, conn.Provider, conn.ID, reason)
	return nil
}

// Multi fans notifications out to several notifiers.
type Multi []driven.Notifier

// SyncCompleted notifies every member and joins their errors.
func (m Multi) SyncCompleted(ctx context.Context, conn *domain.Connection, result *domain.SyncResult) error {
	var errs []error
	for _, n := range m {
		if err := n.SyncCompleted(ctx, conn, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReconnectRequired notifies every member and joins their errors.
func (m Multi) ReconnectRequired(ctx context.Context, conn *domain.Connection, reason string) error {
	var errs []error
	for _, n := range m {
		if err := n.ReconnectRequired(ctx, conn, reason); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
