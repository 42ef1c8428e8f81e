package github

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	gh "github.com/google/go-github/v80/github"
	ghoauth "golang.org/x/oauth2/github"

	"github.com/custodia-labs/syncengine/internal/adapters/driven/oauth"
	"github.com/custodia-labs/syncengine/internal/connectors"
	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
	"github.com/custodia-labs/syncengine/internal/logger"
)

// Verify interface compliance.
var _ driven.ProviderAdapter = (*Adapter)(nil)

// PageSize is the issues page size (the API maximum).
const PageSize = 100

// defaultScopes are requested when none are configured. "repo" is needed
// to see issues in private repositories.
var defaultScopes = []string{"repo", "read:user"}

// Adapter implements driven.ProviderAdapter for GitHub.
type Adapter struct {
	cfg        connectors.Config
	oauth      *oauth.Client
	httpClient *http.Client
	limiters   *limiters
}

// New creates a GitHub adapter.
func New(cfg connectors.Config) *Adapter {
	httpClient := cfg.Client()
	endpoint := ghoauth.Endpoint
	endpoint.AuthURL = connectors.Or(cfg.AuthURL, endpoint.AuthURL)
	endpoint.TokenURL = connectors.Or(cfg.TokenURL, endpoint.TokenURL)

	return &Adapter{
		cfg:        cfg,
		oauth:      oauth.NewClient(domain.ProviderGitHub, cfg.ClientID, cfg.ClientSecret, endpoint, oauth.WithHTTPClient(httpClient)),
		httpClient: httpClient,
		limiters:   newLimiters(cfg.RequestsPerSecond, cfg.Burst),
	}
}

// Type returns the provider tag.
func (a *Adapter) Type() domain.ProviderType { return domain.ProviderGitHub }

// DefaultScopes returns the configured or default scopes.
func (a *Adapter) DefaultScopes() []string {
	if len(a.cfg.Scopes) > 0 {
		return a.cfg.Scopes
	}
	return defaultScopes
}

// DefaultLookback is the first-sync window.
func (a *Adapter) DefaultLookback() time.Duration { return 90 * 24 * time.Hour }

// AuthorizationURL builds the consent URL.
func (a *Adapter) AuthorizationURL(req domain.AuthorizationRequest) string {
	return a.oauth.AuthCodeURL(req)
}

// ExchangeCode trades the code for a token and records the numeric user id
// as the account id, which is what webhook payloads carry.
func (a *Adapter) ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (*domain.TokenPair, error) {
	pair, err := a.oauth.Exchange(ctx, code, redirectURI, codeVerifier)
	if err != nil {
		return nil, err
	}

	client, err := a.tokenClient(ctx, pair.AccessToken)
	if err != nil {
		return nil, err
	}
	user, resp, err := client.Users.Get(ctx, "")
	if err != nil {
		return nil, wrapError(err, "get authenticated user")
	}
	a.limiters.get(tokenKey(pair.AccessToken)).Update(resp)

	pair.AccountID = strconv.FormatInt(user.GetID(), 10)
	logger.Debug("github: authorized as %s (%s)", user.GetLogin(), pair.AccountID)
	return pair, nil
}

// Refresh obtains a new token. Only apps with expiring tokens issue
// refresh tokens.
func (a *Adapter) Refresh(ctx context.Context, token *domain.TokenPair) (*domain.TokenPair, error) {
	return a.oauth.Refresh(ctx, token)
}

// Revoke deletes the OAuth grant.
func (a *Adapter) Revoke(ctx context.Context, token *domain.TokenPair) error {
	client, err := a.appClient()
	if err != nil {
		return err
	}
	resp, err := client.Authorizations.Revoke(ctx, a.cfg.ClientID, token.AccessToken)
	if err != nil {
		// Already gone.
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil
		}
		return wrapError(err, "revoke grant")
	}
	return nil
}

// Fetch returns one page of issues assigned to the user, updated since the
// given time, in update order. The cursor is the next page number.
func (a *Adapter) Fetch(ctx context.Context, token *domain.TokenPair, since time.Time, cursor string) (*domain.RecordPage, error) {
	page := 1
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 1 {
			return nil, domain.NewProviderError(domain.ProviderGitHub, domain.ProviderPermanent, 0,
				fmt.Errorf("%w: %q", ErrInvalidCursor, cursor))
		}
		page = n
	}

	limiter := a.limiters.get(tokenKey(token.AccessToken))
	if err := limiter.Wait(ctx); err != nil {
		return nil, err
	}

	client, err := a.tokenClient(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	opts := &gh.IssueListOptions{
		Filter:    "assigned",
		State:     "all",
		Sort:      "updated",
		Direction: "asc",
		ListOptions: gh.ListOptions{
			Page:    page,
			PerPage: PageSize,
		},
	}
	if !since.IsZero() {
		opts.Since = since
	}

	issues, resp, err := client.Issues.List(ctx, true, opts)
	limiter.Update(resp)
	if err != nil {
		return nil, wrapError(err, "list issues")
	}

	result := &domain.RecordPage{}
	if resp != nil && resp.NextPage != 0 {
		result.NextCursor = strconv.Itoa(resp.NextPage)
	}
	for _, issue := range issues {
		// Pull requests show up in the issues endpoint too.
		if issue.IsPullRequest() {
			continue
		}
		record, err := toRecord(issue)
		if err != nil {
			logger.Warn("github: skipping issue: %v", err)
			continue
		}
		result.Records = append(result.Records, record)
	}
	return result, nil
}
