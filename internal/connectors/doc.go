// Package connectors holds what the built-in provider adapters share:
// per-provider configuration, client-side rate limiting and webhook HMAC
// helpers. Each provider lives in its own sub-package and implements
// driven.ProviderAdapter; the builtin package assembles them from config.
package connectors
