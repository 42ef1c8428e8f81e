package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/syncengine/internal/connectors"
	"github.com/custodia-labs/syncengine/internal/connectors/fitbit"
	"github.com/custodia-labs/syncengine/internal/core/domain"
)

func fitbitActivity(id int64, start string) map[string]any {
	return map[string]any{
		"logId":        id,
		"activityName": "Run",
		"startTime":    start,
		"duration":     1200000,
		"calories":     210,
	}
}

func TestSyncConnection_FitbitMalformedActivityIsLocal(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/1/user/-/activities/list.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"activities": []map[string]any{
				fitbitActivity(1, "2026-03-02T07:00:00Z"),
				fitbitActivity(2, "garbage"),
				fitbitActivity(3, "2026-03-02T19:00:00Z"),
			},
			"pagination": map[string]any{"next": ""},
		})
	}))
	t.Cleanup(srv.Close)

	h.registry.Register(fitbit.New(connectors.Config{
		APIBaseURL:        srv.URL,
		HTTPClient:        srv.Client(),
		RequestsPerSecond: 1000,
		Burst:             1000,
	}))
	h.connect(t, "c1", "u1", domain.ProviderFitbit, day0)

	result, err := h.syncer.SyncConnection(ctx, "c1", domain.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, domain.SyncPartial, result.Status)
	assert.Equal(t, 3, result.Counts.Fetched)
	assert.Equal(t, 2, result.Counts.Created)
	assert.Equal(t, 1, result.Counts.Errored)
	assert.Equal(t, 2, h.entities.Count())

	conn := h.conn(t, "c1")
	assert.Equal(t, domain.StatusActive, conn.Status)
	assert.Empty(t, h.notifier.reconnects())
	assert.Equal(t, time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC), conn.LastSyncAt.UTC(),
		"the watermark stops before the failed record")

	// The next run fetches the bad record again without stalling the rest
	result, err = h.syncer.SyncConnection(ctx, "c1", domain.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncPartial, result.Status)
	assert.Equal(t, 2, result.Counts.Skipped)
	assert.Equal(t, 1, result.Counts.Errored)
	assert.Equal(t, 2, h.entities.Count())
}
