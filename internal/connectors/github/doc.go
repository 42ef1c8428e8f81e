// Package github implements the GitHub adapter. Open and closed issues
// assigned to the connected user, across every repository the token can
// see, are synced as task entities.
//
// # Authentication
//
// Connections are created through an OAuth App registered at
// github.com/settings/developers. OAuth App tokens do not expire, so
// Refresh only succeeds for apps with token expiration enabled. Revoke
// deletes the grant through the OAuth Applications API, which takes the
// client credentials as basic auth.
//
// # Rate Limiting
//
// Authenticated requests are limited to 5,000 per hour per token. Each
// token gets its own limiter that throttles proactively at about 1.2
// requests per second and reports a rate-limited error, rather than
// blocking, once fewer than MinBuffer requests remain before the reset.
//
// # Webhooks
//
// Repository or organisation webhooks deliver "issues" events signed with
// X-Hub-Signature-256 over the configured webhook secret. Every assignee
// of the changed issue is reported so each affected connection syncs.
package github
