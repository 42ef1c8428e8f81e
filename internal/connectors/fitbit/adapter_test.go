package fitbit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/syncengine/internal/connectors"
	"github.com/custodia-labs/syncengine/internal/core/domain"
)

const testSecret = "client-secret"

// fakeFitbit serves the subset of the Fitbit API the adapter uses.
type fakeFitbit struct {
	t          *testing.T
	activities []map[string]any
	status     int
	header     http.Header
	requests   atomic.Int32
	revoked    atomic.Value
}

func (f *fakeFitbit) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/oauth2/token":
		user, pass, ok := r.BasicAuth()
		assert.True(f.t, ok)
		assert.Equal(f.t, "client-id", user)
		assert.Equal(f.t, testSecret, pass)
		require.NoError(f.t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-" + r.PostForm.Get("grant_type"),
			"refresh_token": "refresh-next",
			"token_type":    "Bearer",
			"expires_in":    28800,
			"scope":         "activity profile",
			"user_id":       "7QX9ZK",
		})
	case "/oauth2/revoke":
		require.NoError(f.t, r.ParseForm())
		f.revoked.Store(r.PostForm.Get("token"))
	case "/1/user/-/activities/list.json":
		f.requests.Add(1)
		assert.Equal(f.t, "Bearer access-1", r.Header.Get("Authorization"))
		for k, vs := range f.header {
			w.Header()[k] = vs
		}
		if f.status != 0 {
			w.WriteHeader(f.status)
			return
		}
		q := r.URL.Query()
		assert.Equal(f.t, "asc", q.Get("sort"))
		assert.NotEmpty(f.t, q.Get("afterDate"))
		offset, _ := strconv.Atoi(q.Get("offset"))
		limit, _ := strconv.Atoi(q.Get("limit"))

		end := offset + limit
		if end > len(f.activities) {
			end = len(f.activities)
		}
		resp := map[string]any{
			"activities": f.activities[offset:end],
			"pagination": map[string]any{"offset": offset, "limit": limit, "next": ""},
		}
		if end < len(f.activities) {
			resp["pagination"].(map[string]any)["next"] = "https://api.fitbit.com/next"
		}
		_ = json.NewEncoder(w).Encode(resp)
	default:
		http.NotFound(w, r)
	}
}

func activity(id int64, start time.Time) map[string]any {
	return map[string]any{
		"logId":          id,
		"activityName":   "Walk",
		"activityTypeId": 90013,
		"startTime":      start.Format("2006-01-02T15:04:05.000-07:00"),
		"duration":       1800000,
		"calories":       150,
		"steps":          3200,
		"distance":       2.4,
		"distanceUnit":   "Kilometer",
		"logType":        "auto_detected",
	}
}

func newTestAdapter(t *testing.T, fake *fakeFitbit) *Adapter {
	t.Helper()
	fake.t = t
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return New(connectors.Config{
		ClientID:          "client-id",
		ClientSecret:      testSecret,
		VerificationCode:  "verify-me",
		AuthURL:           srv.URL + "/oauth2/authorize",
		TokenURL:          srv.URL + "/oauth2/token",
		RevokeURL:         srv.URL + "/oauth2/revoke",
		APIBaseURL:        srv.URL,
		HTTPClient:        srv.Client(),
		RequestsPerSecond: 1000,
		Burst:             1000,
	})
}

func TestAdapter_Basics(t *testing.T) {
	a := New(connectors.Config{})
	assert.Equal(t, domain.ProviderFitbit, a.Type())
	assert.Equal(t, []string{"activity", "profile"}, a.DefaultScopes())
	assert.Equal(t, 30*24*time.Hour, a.DefaultLookback())

	a = New(connectors.Config{Scopes: []string{"activity"}})
	assert.Equal(t, []string{"activity"}, a.DefaultScopes())
}

func TestAdapter_AuthorizationURL(t *testing.T) {
	a := New(connectors.Config{ClientID: "client-id"})

	raw := a.AuthorizationURL(domain.AuthorizationRequest{
		Scopes:        []string{"activity"},
		RedirectURI:   "https://app.test/integrations/fitbit/callback",
		State:         "state-1",
		CodeChallenge: "challenge",
	})

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "www.fitbit.com", u.Host)
	assert.Equal(t, "state-1", u.Query().Get("state"))
	assert.Equal(t, "challenge", u.Query().Get("code_challenge"))
}

func TestAdapter_ExchangeRefreshRevoke(t *testing.T) {
	fake := &fakeFitbit{}
	a := newTestAdapter(t, fake)
	ctx := context.Background()

	pair, err := a.ExchangeCode(ctx, "code-1", "https://app.test/cb", "verifier")
	require.NoError(t, err)
	assert.Equal(t, "access-authorization_code", pair.AccessToken)
	assert.Equal(t, "7QX9ZK", pair.AccountID)
	assert.Equal(t, []string{"activity", "profile"}, pair.Scopes)

	refreshed, err := a.Refresh(ctx, pair)
	require.NoError(t, err)
	assert.Equal(t, "access-refresh_token", refreshed.AccessToken)
	assert.Equal(t, "refresh-next", refreshed.RefreshToken)

	require.NoError(t, a.Revoke(ctx, refreshed))
	assert.Equal(t, "refresh-next", fake.revoked.Load())
}

func TestAdapter_FetchPaginates(t *testing.T) {
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	fake := &fakeFitbit{}
	for i := 0; i < PageSize+5; i++ {
		fake.activities = append(fake.activities, activity(int64(1000+i), base.Add(time.Duration(i)*time.Hour)))
	}
	a := newTestAdapter(t, fake)
	token := &domain.TokenPair{AccessToken: "access-1"}

	first, err := a.Fetch(context.Background(), token, base.Add(-time.Hour), "")
	require.NoError(t, err)
	assert.Len(t, first.Records, PageSize)
	assert.Equal(t, strconv.Itoa(PageSize), first.NextCursor)
	assert.Equal(t, "1000", first.Records[0].ExternalID)
	assert.Equal(t, domain.EntityActivity, first.Records[0].EntityType)
	assert.True(t, first.Records[0].Timestamp.Equal(base))

	second, err := a.Fetch(context.Background(), token, base.Add(-time.Hour), first.NextCursor)
	require.NoError(t, err)
	assert.Len(t, second.Records, 5)
	assert.Empty(t, second.NextCursor)
	assert.Equal(t, fmt.Sprint(1000+PageSize+4), second.Records[4].ExternalID)
}

func TestAdapter_FetchKeepsMalformedActivities(t *testing.T) {
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	bad := activity(2, base.Add(time.Hour))
	bad["startTime"] = "garbage"
	noID := activity(0, base.Add(2*time.Hour))
	fake := &fakeFitbit{activities: []map[string]any{activity(1, base), bad, noID, activity(3, base.Add(3*time.Hour))}}
	a := newTestAdapter(t, fake)

	page, err := a.Fetch(context.Background(), &domain.TokenPair{AccessToken: "access-1"}, base.Add(-time.Hour), "")

	require.NoError(t, err)
	require.Len(t, page.Records, 3, "activities without a log id are dropped")
	assert.Equal(t, "2", page.Records[1].ExternalID)
	assert.True(t, page.Records[1].Timestamp.IsZero())

	_, err = a.MapToCanonical(page.Records[1])
	assert.Error(t, err, "the bad start time fails at mapping")
}

func TestAdapter_FetchInvalidCursor(t *testing.T) {
	a := newTestAdapter(t, &fakeFitbit{})

	_, err := a.Fetch(context.Background(), &domain.TokenPair{AccessToken: "access-1"}, time.Now(), "abc")
	assert.True(t, domain.IsPermanent(err))
}

func TestAdapter_FetchErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header http.Header
		check  func(t *testing.T, err error)
	}{
		{"unauthorized", http.StatusUnauthorized, nil, func(t *testing.T, err error) {
			assert.True(t, domain.IsUnauthorized(err))
		}},
		{"forbidden", http.StatusForbidden, nil, func(t *testing.T, err error) {
			assert.True(t, domain.IsPermanent(err))
		}},
		{"outage", http.StatusBadGateway, nil, func(t *testing.T, err error) {
			assert.True(t, domain.IsTransient(err))
		}},
		{"rate limited", http.StatusTooManyRequests, http.Header{rateLimitResetHeader: {"120"}}, func(t *testing.T, err error) {
			assert.True(t, domain.IsRateLimited(err))
			assert.Equal(t, 2*time.Minute, domain.RetryAfter(err))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAdapter(t, &fakeFitbit{status: tt.status, header: tt.header})
			_, err := a.Fetch(context.Background(), &domain.TokenPair{AccessToken: "access-1"}, time.Now(), "")
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestAdapter_RateLimitPausesFurtherCalls(t *testing.T) {
	fake := &fakeFitbit{status: http.StatusTooManyRequests, header: http.Header{"Retry-After": {"60"}}}
	a := newTestAdapter(t, fake)
	token := &domain.TokenPair{AccessToken: "access-1"}

	_, err := a.Fetch(context.Background(), token, time.Now(), "")
	require.True(t, domain.IsRateLimited(err))

	_, err = a.Fetch(context.Background(), token, time.Now(), "")
	assert.True(t, domain.IsRateLimited(err))
	assert.Equal(t, int32(1), fake.requests.Load(), "paused adapter does not call the API")
}

func TestAdapter_MapToCanonical(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.FixedZone("PST", -8*3600))
	raw, err := json.Marshal(activity(42, start))
	require.NoError(t, err)
	record, err := toRecord(raw)
	require.NoError(t, err)

	draft, err := New(connectors.Config{}).MapToCanonical(record)

	require.NoError(t, err)
	assert.Equal(t, domain.EntityActivity, draft.EntityType)
	assert.Equal(t, "Walk", draft.Title)
	assert.True(t, draft.StartAt.Equal(start))
	assert.True(t, draft.EndAt.Equal(start.Add(30*time.Minute)))
	assert.Equal(t, 3200, draft.Attributes["steps"])
	assert.Equal(t, 150, draft.Attributes["calories"])
}

func TestAdapter_MapToCanonicalRejectsBadPayload(t *testing.T) {
	a := New(connectors.Config{})

	_, err := a.MapToCanonical(domain.ExternalRecord{Payload: []byte(`{"logId":1,"startTime":"yesterday"}`)})
	assert.Error(t, err)

	_, err = a.MapToCanonical(domain.ExternalRecord{Payload: []byte(`not json`)})
	assert.Error(t, err)
}
