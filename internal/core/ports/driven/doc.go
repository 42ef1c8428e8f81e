// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the engine to function:
//
//   - ProviderAdapter: Provider-specific OAuth, fetch, mapping and webhook parsing
//   - ConnectionStore: Connection persistence
//   - CredentialsStore: Sealed token persistence (the Token Vault's backing store)
//   - AuthStateStore: Single-use authorization state persistence
//   - MappingStore: External record mapping persistence
//   - HistoryStore: Append-only sync history
//   - LeaseStore: Per-connection exclusivity
//   - SecretStore: Symmetric key material for the Token Vault
//   - EntityStore: Canonical entity upsert contract
//
// # Optional Interfaces
//
// These can be nil - the engine degrades gracefully:
//
//   - Notifier: Sync summaries and reconnect prompts. Without it, nothing is sent.
//   - SchedulerStore: Scheduler task state. Without it, tick history is not kept.
//   - SubscriptionVerifier: Implemented by adapters whose providers send
//     verification challenges to the webhook endpoint.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or connector package
package driven
