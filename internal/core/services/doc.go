// Package services implements the core application logic.
//
// Services implement the driving ports and depend only on the driven
// ports, never on concrete adapters. The orchestrator here is the
// event-driven engine that drives adapters, applies backpressure through
// a bounded channel, and checkpoints progress against the ledger.
package services
