// Package flows contains the remote-call orchestration behind each Manager
// operation: renewal with its retry policy, best-effort invalidation, and the
// password credential exchange.
//
// Each Run function takes a typed dependency struct and returns a result value
// that classifies failure, so the Manager can map it to state changes, logs,
// metrics and events.
//
// # Architecture boundaries
//
// Flows only talk to the issuer through dependency interfaces. They never touch
// session state, the token store or the bridge; the Manager applies results
// under its lock.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import tabAuth (to avoid import cycles).
//   - Log. Failures are returned for the caller to report.
package flows
