// Package refresh runs the periodic renewal loop for one authenticated session.
//
// # Scheduling
//
// A [Scheduler] fires once immediately on Start and then once per Period. Each
// firing runs in its own goroutine. A firing that arrives while the previous one
// is still running is skipped, so at most one renewal attempt is ever in flight.
//
// # Architecture boundaries
//
// This package owns timing only. What a firing does (calling the issuer,
// applying or discarding the result, forcing logout) belongs to the tabAuth
// Manager, which creates one Scheduler per session.
//
// # What this package must NOT do
//
//   - Perform network or storage I/O.
//   - Import tabAuth or tokenapi.
//   - Wait for an in-flight firing in Stop. A firing may itself stop the
//     scheduler (forced logout), and Stop is called under the Manager lock.
package refresh
