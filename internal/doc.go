// Package internal holds helpers that are private to tabAuth.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function orchestrators for renewal, invalidation and password login
//   - rate: Redis-backed failed login counters used by the issuer
//
// # What this package must NOT do
//
//   - Export types that appear in the public tabAuth API except through aliases.
//   - Be imported by any package outside the tabAuth module.
package internal
