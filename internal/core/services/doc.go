// Package services implements the driving port interfaces.
// Services contain the engine's core logic (authorization, token custody,
// reconciliation, webhook routing and scheduling) and orchestrate calls to
// driven ports (adapters).
//
// Services never import adapters or connectors; everything provider- or
// storage-specific arrives through the driven ports.
package services
