package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/logger"
)

type slackRecorder struct {
	mu       sync.Mutex
	messages []slack.WebhookMessage
	status   int
}

func (r *slackRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var msg slack.WebhookMessage
	if err := json.NewDecoder(req.Body).Decode(&msg); err == nil {
		r.mu.Lock()
		r.messages = append(r.messages, msg)
		r.mu.Unlock()
	}
	if r.status != 0 {
		w.WriteHeader(r.status)
		return
	}
	_, _ = w.Write([]byte("ok"))
}

func (r *slackRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func testConnection() *domain.Connection {
	return &domain.Connection{ID: "conn-1", UserID: "user-1", Provider: domain.ProviderFitbit, Status: domain.StatusActive}
}

func TestSlack_SyncCompleted(t *testing.T) {
	rec := &slackRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()
	n := NewSlack(srv.URL, srv.Client())

	err := n.SyncCompleted(context.Background(), testConnection(), &domain.SyncResult{
		Status:       domain.SyncPartial,
		Trigger:      domain.TriggerWebhook,
		Counts:       domain.SyncCounts{Fetched: 10, Created: 8, Skipped: 1, Errored: 1},
		ErrorSummary: "record r5: bad payload",
	})

	require.NoError(t, err)
	require.Equal(t, 1, rec.count())
	msg := rec.messages[0]
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "warning", msg.Attachments[0].Color)
	assert.Equal(t, "record r5: bad payload", msg.Attachments[0].Text)
	assert.Contains(t, msg.Attachments[0].Title, "partial")
}

func TestSlack_SkipsQuietSuccess(t *testing.T) {
	rec := &slackRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()
	n := NewSlack(srv.URL, srv.Client())

	err := n.SyncCompleted(context.Background(), testConnection(), &domain.SyncResult{
		Status: domain.SyncSuccess,
		Counts: domain.SyncCounts{Fetched: 3, Skipped: 3},
	})

	require.NoError(t, err)
	assert.Zero(t, rec.count())
}

func TestSlack_ReconnectRequired(t *testing.T) {
	rec := &slackRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()
	n := NewSlack(srv.URL, srv.Client())

	err := n.ReconnectRequired(context.Background(), testConnection(), "refresh token rejected")

	require.NoError(t, err)
	require.Equal(t, 1, rec.count())
	assert.Contains(t, rec.messages[0].Text, "must reconnect fitbit")
	assert.Equal(t, "refresh token rejected", rec.messages[0].Attachments[0].Text)
}

func TestSlack_DeliveryFailure(t *testing.T) {
	rec := &slackRecorder{status: http.StatusInternalServerError}
	srv := httptest.NewServer(rec)
	defer srv.Close()
	n := NewSlack(srv.URL, srv.Client())

	err := n.ReconnectRequired(context.Background(), testConnection(), "gone")
	assert.Error(t, err)
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(os.Stderr) })

	var n Log
	require.NoError(t, n.SyncCompleted(context.Background(), testConnection(), &domain.SyncResult{
		Status: domain.SyncSuccess,
		Counts: domain.SyncCounts{Fetched: 2, Created: 2},
	}))
	require.NoError(t, n.ReconnectRequired(context.Background(), testConnection(), "revoked"))

	out := buf.String()
	assert.Contains(t, out, "fetched=2 created=2")
	assert.Contains(t, out, "must reconnect fitbit")
}

type failingNotifier struct{ calls int }

func (f *failingNotifier) SyncCompleted(context.Context, *domain.Connection, *domain.SyncResult) error {
	f.calls++
	return errors.New("sync notify failed")
}

func (f *failingNotifier) ReconnectRequired(context.Context, *domain.Connection, string) error {
	f.calls++
	return errors.New("reconnect notify failed")
}

func TestMulti_NotifiesAll(t *testing.T) {
	first, second := &failingNotifier{}, &failingNotifier{}
	m := Multi{first, Log{}, second}

	err := m.ReconnectRequired(context.Background(), testConnection(), "x")

	require.Error(t, err)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)

	err = m.SyncCompleted(context.Background(), testConnection(), &domain.SyncResult{Status: domain.SyncFailed})
	require.Error(t, err)
	assert.Equal(t, 2, first.calls)

	assert.NoError(t, Multi{}.SyncCompleted(context.Background(), testConnection(), &domain.SyncResult{}))
}
