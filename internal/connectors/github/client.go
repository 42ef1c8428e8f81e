package github

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"
)

// newGitHub creates a go-github client over hc, pointed at baseURL when set.
func newGitHub(hc *http.Client, baseURL string) (*gh.Client, error) {
	client := gh.NewClient(hc)
	if baseURL == "" {
		return client, nil
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	client.BaseURL = u
	return client, nil
}

// tokenClient creates a go-github client authenticated with an access token.
func (a *Adapter) tokenClient(ctx context.Context, accessToken string) (*gh.Client, error) {
	base := context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	tc := oauth2.NewClient(base, oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: accessToken},
	))
	tc.Timeout = a.httpClient.Timeout
	return newGitHub(tc, a.cfg.APIBaseURL)
}

// appClient creates a go-github client authenticated with the OAuth app
// credentials, as the OAuth Applications API requires.
func (a *Adapter) appClient() (*gh.Client, error) {
	tp := &gh.BasicAuthTransport{
		Username:  a.cfg.ClientID,
		Password:  a.cfg.ClientSecret,
		Transport: a.httpClient.Transport,
	}
	hc := tp.Client()
	hc.Timeout = a.httpClient.Timeout
	return newGitHub(hc, a.cfg.APIBaseURL)
}

// tokenKey identifies a token without keeping it in memory.
func tokenKey(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return hex.EncodeToString(sum[:8])
}
