// Package oauth provides the OAuth2 plumbing shared by provider adapters:
// consent URLs with PKCE, code exchange, refresh and RFC 7009 revocation.
// Failures are classified into *domain.ProviderError so the sync and auth
// services can decide between retry, refresh and reauthorization.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/syncengine/internal/core/domain"
)

// DefaultTimeout bounds every token endpoint call.
const DefaultTimeout = 30 * time.Second

// OAuth2 error codes meaning the grant itself is unusable.
var terminalCodes = map[string]bool{
	"invalid_grant":       true,
	"invalid_client":      true,
	"unauthorized_client": true,
	"access_denied":       true,
}

// Client performs token endpoint calls for one provider.
type Client struct {
	provider     domain.ProviderType
	config       oauth2.Config
	httpClient   *http.Client
	accountField string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for token calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithAccountField names the token response field carrying the provider
// account id (e.g. "user_id").
func WithAccountField(field string) Option {
	return func(c *Client) {
		c.accountField = field
	}
}

// NewClient creates a Client for the given endpoint.
func NewClient(
	provider domain.ProviderType,
	clientID, clientSecret string,
	endpoint oauth2.Endpoint,
	opts ...Option,
) *Client {
	c := &Client{
		provider: provider,
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     endpoint,
		},
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClientID returns the configured client id.
func (c *Client) ClientID() string { return c.config.ClientID }

// ClientSecret returns the configured client secret.
func (c *Client) ClientSecret() string { return c.config.ClientSecret }

// HTTPClient returns the client used for token and revocation calls.
func (c *Client) HTTPClient() *http.Client { return c.httpClient }

func (c *Client) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// AuthCodeURL builds the consent URL. An S256 challenge is attached when the
// request carries one.
func (c *Client) AuthCodeURL(req domain.AuthorizationRequest, extra ...oauth2.AuthCodeOption) string {
	cfg := c.config
	cfg.RedirectURL = req.RedirectURI
	cfg.Scopes = req.Scopes

	var opts []oauth2.AuthCodeOption
	if req.CodeChallenge != "" {
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", req.CodeChallenge),
			oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		)
	}
	return cfg.AuthCodeURL(req.State, append(opts, extra...)...)
}

// Exchange trades an authorization code for a token pair.
func (c *Client) Exchange(ctx context.Context, code, redirectURI, codeVerifier string) (*domain.TokenPair, error) {
	cfg := c.config
	cfg.RedirectURL = redirectURI

	var opts []oauth2.AuthCodeOption
	if codeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(codeVerifier))
	}

	tok, err := cfg.Exchange(c.context(ctx), code, opts...)
	if err != nil {
		return nil, c.classify("exchange code", err)
	}
	return c.toTokenPair(tok), nil
}

// Refresh obtains a new access token with the pair's refresh token.
func (c *Client) Refresh(ctx context.Context, token *domain.TokenPair) (*domain.TokenPair, error) {
	if token == nil || !token.HasRefreshToken() {
		return nil, domain.NewProviderError(c.provider, domain.ProviderPermanent, 0,
			errors.New("no refresh token"))
	}

	// An empty access token forces the source to hit the token endpoint.
	src := c.config.TokenSource(c.context(ctx), &oauth2.Token{RefreshToken: token.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, c.classify("refresh token", err)
	}
	return c.toTokenPair(tok), nil
}

// Revoke posts the token to an RFC 7009 revocation endpoint. Client
// credentials are sent with basic auth when basicAuth is set, otherwise
// in the form body.
func (c *Client) Revoke(ctx context.Context, revokeURL, token string, basicAuth bool) error {
	form := url.Values{"token": {token}}
	if !basicAuth {
		form.Set("client_id", c.config.ClientID)
		if c.config.ClientSecret != "" {
			form.Set("client_secret", c.config.ClientSecret)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if basicAuth {
		req.SetBasicAuth(url.QueryEscape(c.config.ClientID), url.QueryEscape(c.config.ClientSecret))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewProviderError(c.provider, domain.ProviderTransient, 0, fmt.Errorf("revoke: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return StatusError(c.provider, resp)
}

func (c *Client) classify(op string, err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		status := 0
		if rerr.Response != nil {
			status = rerr.Response.StatusCode
		}
		kind := KindForStatus(status)
		if terminalCodes[rerr.ErrorCode] {
			kind = domain.ProviderPermanent
		}
		perr := domain.NewProviderError(c.provider, kind, status, fmt.Errorf("%s: %w", op, err))
		if rerr.Response != nil {
			perr.RetryAfter = ParseRetryAfter(rerr.Response.Header.Get("Retry-After"))
		}
		return perr
	}
	// Network failures and timeouts.
	return domain.NewProviderError(c.provider, domain.ProviderTransient, 0, fmt.Errorf("%s: %w", op, err))
}

func (c *Client) toTokenPair(tok *oauth2.Token) *domain.TokenPair {
	pair := ToTokenPair(tok)
	if c.accountField != "" {
		switch v := tok.Extra(c.accountField).(type) {
		case string:
			pair.AccountID = v
		case float64:
			pair.AccountID = strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return pair
}

// ToTokenPair converts an oauth2 token. Granted scopes are read from the
// "scope" field, which providers separate with spaces or commas.
func ToTokenPair(tok *oauth2.Token) *domain.TokenPair {
	pair := &domain.TokenPair{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		Expiry:       tok.Expiry,
	}
	if raw, ok := tok.Extra("scope").(string); ok && raw != "" {
		pair.Scopes = strings.FieldsFunc(raw, func(r rune) bool { return r == ' ' || r == ',' })
	}
	return pair
}

// KindForStatus maps an HTTP status to a provider error kind.
func KindForStatus(status int) domain.ProviderErrorKind {
	switch {
	case status == http.StatusUnauthorized:
		return domain.ProviderUnauthorized
	case status == http.StatusTooManyRequests:
		return domain.ProviderRateLimited
	case status == http.StatusRequestTimeout, status == 0, status >= 500:
		return domain.ProviderTransient
	default:
		return domain.ProviderPermanent
	}
}

// StatusError builds a ProviderError from a non-success response. The body
// is read for a short diagnostic and left for the caller to close.
func StatusError(provider domain.ProviderType, resp *http.Response) *domain.ProviderError {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(snippet))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	perr := domain.NewProviderError(provider, KindForStatus(resp.StatusCode), resp.StatusCode, errors.New(msg))
	perr.RetryAfter = ParseRetryAfter(resp.Header.Get("Retry-After"))
	return perr
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an
// HTTP date. Returns zero when absent or malformed.
func ParseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
