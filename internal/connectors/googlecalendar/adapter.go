// Package googlecalendar implements the Google Calendar adapter. Events of
// the user's primary calendar are synced as calendar_event entities; push
// notifications arrive on channels named after the connection.
package googlecalendar

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/custodia-labs/syncengine/internal/adapters/driven/oauth"
	"github.com/custodia-labs/syncengine/internal/connectors"
	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
	"github.com/custodia-labs/syncengine/internal/logger"
)

// Verify interface compliance.
var _ driven.ProviderAdapter = (*Adapter)(nil)

const (
	defaultRevokeURL = "https://oauth2.googleapis.com/revoke"

	// PrimaryCalendar is the calendar the adapter syncs.
	PrimaryCalendar = "primary"

	// PageSize is the events page size.
	PageSize = 250

	defaultRate  = 5.0
	defaultBurst = 10
)

// defaultScopes are requested when none are configured.
var defaultScopes = []string{calendar.CalendarReadonlyScope}

// Adapter implements driven.ProviderAdapter for Google Calendar.
type Adapter struct {
	cfg        connectors.Config
	oauth      *oauth.Client
	httpClient *http.Client
	limiter    *connectors.RateLimiter
	revokeURL  string
}

// New creates a Google Calendar adapter.
func New(cfg connectors.Config) *Adapter {
	httpClient := cfg.Client()
	endpoint := google.Endpoint
	endpoint.AuthURL = connectors.Or(cfg.AuthURL, endpoint.AuthURL)
	endpoint.TokenURL = connectors.Or(cfg.TokenURL, endpoint.TokenURL)

	rps, burst := cfg.RequestsPerSecond, cfg.Burst
	if rps <= 0 {
		rps, burst = defaultRate, defaultBurst
	}

	return &Adapter{
		cfg:        cfg,
		oauth:      oauth.NewClient(domain.ProviderGoogleCalendar, cfg.ClientID, cfg.ClientSecret, endpoint, oauth.WithHTTPClient(httpClient)),
		httpClient: httpClient,
		limiter:    connectors.NewRateLimiter(rps, burst),
		revokeURL:  connectors.Or(cfg.RevokeURL, defaultRevokeURL),
	}
}

// Type returns the provider tag.
func (a *Adapter) Type() domain.ProviderType { return domain.ProviderGoogleCalendar }

// DefaultScopes returns the configured or default scopes.
func (a *Adapter) DefaultScopes() []string {
	if len(a.cfg.Scopes) > 0 {
		return a.cfg.Scopes
	}
	return defaultScopes
}

// DefaultLookback is the first-sync window.
func (a *Adapter) DefaultLookback() time.Duration { return 30 * 24 * time.Hour }

// AuthorizationURL builds the consent URL. Offline access with forced
// consent makes Google return a refresh token on every authorization.
func (a *Adapter) AuthorizationURL(req domain.AuthorizationRequest) string {
	return a.oauth.AuthCodeURL(req, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode trades the code for tokens and records the primary
// calendar id (the account email) as the account id.
func (a *Adapter) ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (*domain.TokenPair, error) {
	pair, err := a.oauth.Exchange(ctx, code, redirectURI, codeVerifier)
	if err != nil {
		return nil, err
	}

	svc, err := a.service(ctx, pair)
	if err != nil {
		return nil, err
	}
	entry, err := svc.CalendarList.Get(PrimaryCalendar).Context(ctx).Do()
	if err != nil {
		logger.Debug("google-calendar: primary calendar lookup failed: %v", err)
		return pair, nil
	}
	pair.AccountID = entry.Id
	return pair, nil
}

// Refresh obtains a new access token. Google keeps the refresh token.
func (a *Adapter) Refresh(ctx context.Context, token *domain.TokenPair) (*domain.TokenPair, error) {
	return a.oauth.Refresh(ctx, token)
}

// Revoke invalidates the grant. Revoking the refresh token also revokes
// its access tokens.
func (a *Adapter) Revoke(ctx context.Context, token *domain.TokenPair) error {
	value := token.RefreshToken
	if value == "" {
		value = token.AccessToken
	}
	return a.oauth.Revoke(ctx, a.revokeURL, value, false)
}

// service builds a Calendar client authorized with the pair's access token.
func (a *Adapter) service(ctx context.Context, token *domain.TokenPair) (*calendar.Service, error) {
	base := context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	hc := oauth2.NewClient(base, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token.AccessToken,
		TokenType:   "Bearer",
	}))

	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if a.cfg.APIBaseURL != "" {
		opts = append(opts, option.WithEndpoint(a.cfg.APIBaseURL))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return svc, nil
}

// Fetch returns one page of primary calendar events updated since the
// given time, in update order. The cursor is Google's page token.
func (a *Adapter) Fetch(ctx context.Context, token *domain.TokenPair, since time.Time, cursor string) (*domain.RecordPage, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, connectors.WaitError(domain.ProviderGoogleCalendar, err)
	}

	svc, err := a.service(ctx, token)
	if err != nil {
		return nil, err
	}

	call := svc.Events.List(PrimaryCalendar).
		Context(ctx).
		SingleEvents(true).
		ShowDeleted(false).
		OrderBy("updated").
		MaxResults(PageSize)
	if !since.IsZero() {
		call = call.UpdatedMin(since.UTC().Format(time.RFC3339))
	}
	if cursor != "" {
		call = call.PageToken(cursor)
	}

	events, err := call.Do()
	if err != nil {
		werr := wrapError(err)
		if domain.IsRateLimited(werr) {
			a.limiter.Backoff(domain.RetryAfter(werr))
		}
		return nil, werr
	}

	page := &domain.RecordPage{NextCursor: events.NextPageToken}
	for _, event := range events.Items {
		if !ShouldSyncEvent(event) {
			continue
		}
		record, err := toRecord(event)
		if err != nil {
			logger.Warn("google calendar: skipping event: %v", err)
			continue
		}
		page.Records = append(page.Records, record)
	}
	return page, nil
}
