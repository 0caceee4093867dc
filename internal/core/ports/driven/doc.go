// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - Ledger: Durable per-document lifecycle state
//   - Adapter: Streams results from one data source
//   - AdapterRegistry: Creates adapters bound to a ledger and HTTP client
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - CheckpointStore: Resume-with-dedupe persistence. Without it, every
//     run starts from scratch.
//   - Metrics: Observability counters/gauges. A no-op implementation is
//     injected when no backend is wired.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
