package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gh "github.com/google/go-github/v80/github"

	"github.com/custodia-labs/syncengine/internal/adapters/driven/oauth"
	"github.com/custodia-labs/syncengine/internal/core/domain"
)

// ErrInvalidCursor indicates the cursor is not a page number.
var ErrInvalidCursor = errors.New("github: invalid cursor format")

// wrapError converts go-github errors to *domain.ProviderError.
func wrapError(err error, operation string) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", operation, err)

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.NewProviderError(domain.ProviderGitHub, domain.ProviderTransient, 0, wrapped)
	}

	// Primary limit: the hourly quota is spent.
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		perr := domain.NewProviderError(domain.ProviderGitHub, domain.ProviderRateLimited, statusOf(rateErr.Response), wrapped)
		perr.RetryAfter = untilReset(rateErr.Rate.Reset.Time)
		return perr
	}

	// Secondary limit: too many concurrent or rapid requests.
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		perr := domain.NewProviderError(domain.ProviderGitHub, domain.ProviderRateLimited, statusOf(abuseErr.Response), wrapped)
		perr.RetryAfter = abuseErr.GetRetryAfter()
		return perr
	}

	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		status := respErr.Response.StatusCode
		perr := domain.NewProviderError(domain.ProviderGitHub, oauth.KindForStatus(status), status, wrapped)
		perr.RetryAfter = oauth.ParseRetryAfter(respErr.Response.Header.Get("Retry-After"))
		return perr
	}

	return domain.NewProviderError(domain.ProviderGitHub, domain.ProviderTransient, 0, wrapped)
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

func untilReset(reset time.Time) time.Duration {
	if reset.IsZero() {
		return 0
	}
	if d := time.Until(reset); d > 0 {
		return d
	}
	return 0
}
