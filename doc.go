// Package tabAuth manages the client-side session for one browsing context
// (a tab): it owns the access token, renews it before expiry, mirrors a marker
// to an edge route guard, and invalidates the renewal credential on logout.
//
// A [Manager] is built once per tab through [Builder] and is safe for
// concurrent use. [Manager.GetSession] is lock-free and never performs I/O.
//
// # Architecture boundaries
//
// tabAuth is the public surface. It exposes [Manager], [Builder], [Config] and
// value types ([Session], [Identity], [MetricsSnapshot]). Issuer calls, retry
// policy and event dispatch live under internal/; storage, timing and the
// edge marker live in the tokenstore, refresh and bridge packages.
//
// # Consistency model
//
// The token store and the bridge are replicas of the in-memory session with
// the Manager as their single writer. Every mutation bumps a session epoch
// under the Manager lock. A renewal captures the epoch when it starts and its
// result is applied only if the epoch is unchanged, so a logout or re-login
// that races a renewal always wins.
//
// # What this package must NOT do
//
//   - Decode access tokens. They are opaque.
//   - Hold the Manager lock across an issuer call.
//   - Return storage or bridge errors to callers. Both degrade silently and
//     are logged and counted.
package tabAuth
