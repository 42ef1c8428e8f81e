// Package fitbit implements the Fitbit Web API adapter. Logged activities
// are synced as activity entities; subscription callbacks are signed with
// HMAC-SHA1 over the client secret.
package fitbit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/syncengine/internal/adapters/driven/oauth"
	"github.com/custodia-labs/syncengine/internal/connectors"
	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
	"github.com/custodia-labs/syncengine/internal/logger"
)

// Verify interface compliance.
var (
	_ driven.ProviderAdapter      = (*Adapter)(nil)
	_ driven.SubscriptionVerifier = (*Adapter)(nil)
)

// Fitbit endpoints.
const (
	defaultAuthURL = "https://www.fitbit.com/oauth2/authorize"
	//nolint:gosec // G101: Not credentials, OAuth endpoint URL
	defaultTokenURL   = "https://api.fitbit.com/oauth2/token"
	defaultRevokeURL  = "https://api.fitbit.com/oauth2/revoke"
	defaultAPIBaseURL = "https://api.fitbit.com"
)

const (
	// PageSize is the activity list page size (the API maximum).
	PageSize = 100

	// Fitbit allows 150 requests per user per hour.
	defaultRate  = 150.0 / 3600
	defaultBurst = 20

	// afterDateLayout is the timestamp format of the afterDate filter.
	afterDateLayout = "2006-01-02T15:04:05"

	// rateLimitResetHeader carries the seconds until the hourly quota resets.
	rateLimitResetHeader = "Fitbit-Rate-Limit-Reset"
)

// defaultScopes are requested when none are configured.
var defaultScopes = []string{"activity", "profile"}

// Adapter implements driven.ProviderAdapter for Fitbit.
type Adapter struct {
	cfg        connectors.Config
	oauth      *oauth.Client
	httpClient *http.Client
	limiter    *connectors.RateLimiter
	apiBase    string
	revokeURL  string
}

// New creates a Fitbit adapter.
func New(cfg connectors.Config) *Adapter {
	httpClient := cfg.Client()
	rps, burst := cfg.RequestsPerSecond, cfg.Burst
	if rps <= 0 {
		rps, burst = defaultRate, defaultBurst
	}

	return &Adapter{
		cfg: cfg,
		oauth: oauth.NewClient(domain.ProviderFitbit, cfg.ClientID, cfg.ClientSecret, oauth2.Endpoint{
			AuthURL:   connectors.Or(cfg.AuthURL, defaultAuthURL),
			TokenURL:  connectors.Or(cfg.TokenURL, defaultTokenURL),
			AuthStyle: oauth2.AuthStyleInHeader,
		}, oauth.WithHTTPClient(httpClient), oauth.WithAccountField("user_id")),
		httpClient: httpClient,
		limiter:    connectors.NewRateLimiter(rps, burst),
		apiBase:    connectors.Or(cfg.APIBaseURL, defaultAPIBaseURL),
		revokeURL:  connectors.Or(cfg.RevokeURL, defaultRevokeURL),
	}
}

// Type returns the provider tag.
func (a *Adapter) Type() domain.ProviderType { return domain.ProviderFitbit }

// DefaultScopes returns the configured or default scopes.
func (a *Adapter) DefaultScopes() []string {
	if len(a.cfg.Scopes) > 0 {
		return a.cfg.Scopes
	}
	return defaultScopes
}

// DefaultLookback is the first-sync window.
func (a *Adapter) DefaultLookback() time.Duration { return 30 * 24 * time.Hour }

// AuthorizationURL builds the consent URL.
func (a *Adapter) AuthorizationURL(req domain.AuthorizationRequest) string {
	return a.oauth.AuthCodeURL(req)
}

// ExchangeCode trades the code for tokens. The Fitbit user id comes back in
// the token response and becomes the account id.
func (a *Adapter) ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (*domain.TokenPair, error) {
	return a.oauth.Exchange(ctx, code, redirectURI, codeVerifier)
}

// Refresh obtains a new token pair. Fitbit rotates refresh tokens.
func (a *Adapter) Refresh(ctx context.Context, token *domain.TokenPair) (*domain.TokenPair, error) {
	return a.oauth.Refresh(ctx, token)
}

// Revoke invalidates the grant.
func (a *Adapter) Revoke(ctx context.Context, token *domain.TokenPair) error {
	value := token.RefreshToken
	if value == "" {
		value = token.AccessToken
	}
	return a.oauth.Revoke(ctx, a.revokeURL, value, true)
}

// activityList is the activity log list response.
type activityList struct {
	Activities []json.RawMessage `json:"activities"`
	Pagination struct {
		Next   string `json:"next"`
		Offset int    `json:"offset"`
		Limit  int    `json:"limit"`
	} `json:"pagination"`
}

// Fetch returns one page of activities that started after since, oldest
// first. The cursor is the list offset.
func (a *Adapter) Fetch(ctx context.Context, token *domain.TokenPair, since time.Time, cursor string) (*domain.RecordPage, error) {
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return nil, domain.NewProviderError(domain.ProviderFitbit, domain.ProviderPermanent, 0,
				fmt.Errorf("invalid cursor %q", cursor))
		}
		offset = n
	}

	q := url.Values{
		"afterDate": {since.UTC().Format(afterDateLayout)},
		"sort":      {"asc"},
		"limit":     {strconv.Itoa(PageSize)},
		"offset":    {strconv.Itoa(offset)},
	}
	var list activityList
	if err := a.get(ctx, token, "/1/user/-/activities/list.json?"+q.Encode(), &list); err != nil {
		return nil, err
	}

	page := &domain.RecordPage{Records: make([]domain.ExternalRecord, 0, len(list.Activities))}
	for _, raw := range list.Activities {
		record, err := toRecord(raw)
		if err != nil {
			logger.Warn("fitbit: skipping activity: %v", err)
			continue
		}
		page.Records = append(page.Records, record)
	}
	if list.Pagination.Next != "" && len(list.Activities) > 0 {
		page.NextCursor = strconv.Itoa(offset + len(list.Activities))
	}
	return page, nil
}

// get performs an authorized API call and decodes the JSON response.
func (a *Adapter) get(ctx context.Context, token *domain.TokenPair, path string, out any) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return connectors.WaitError(domain.ProviderFitbit, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.apiBase+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return domain.NewProviderError(domain.ProviderFitbit, domain.ProviderTransient, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		perr := oauth.StatusError(domain.ProviderFitbit, resp)
		if perr.Kind == domain.ProviderRateLimited {
			if perr.RetryAfter == 0 {
				perr.RetryAfter = oauth.ParseRetryAfter(resp.Header.Get(rateLimitResetHeader))
			}
			a.limiter.Backoff(perr.RetryAfter)
		}
		return perr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.NewProviderError(domain.ProviderFitbit, domain.ProviderTransient, resp.StatusCode,
			fmt.Errorf("decode response: %w", err))
	}
	return nil
}
