package googlecalendar

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/custodia-labs/syncengine/internal/adapters/driven/oauth"
	"github.com/custodia-labs/syncengine/internal/core/domain"
)

// Reasons Google reports on 403 responses that are really throttling.
var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"quotaExceeded":         true,
}

// IsRateLimited returns true if the error indicates rate limiting, which
// Google reports either as 429 or as 403 with a rate limit reason.
func IsRateLimited(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	if gerr.Code == http.StatusTooManyRequests {
		return true
	}
	if gerr.Code == http.StatusForbidden {
		for _, item := range gerr.Errors {
			if rateLimitReasons[item.Reason] {
				return true
			}
		}
	}
	return false
}

// wrapError converts a Google API error to a *domain.ProviderError.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.NewProviderError(domain.ProviderGoogleCalendar, domain.ProviderTransient, 0, err)
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return domain.NewProviderError(domain.ProviderGoogleCalendar, domain.ProviderTransient, 0, err)
	}

	kind := oauth.KindForStatus(gerr.Code)
	if IsRateLimited(err) {
		kind = domain.ProviderRateLimited
	}
	perr := domain.NewProviderError(domain.ProviderGoogleCalendar, kind, gerr.Code, err)
	if gerr.Header != nil {
		perr.RetryAfter = oauth.ParseRetryAfter(gerr.Header.Get("Retry-After"))
	}
	return perr
}
