// Package audit delivers session lifecycle events (login, refresh, logout,
// forced logout) to a caller-supplied sink without blocking the Manager.
//
// # Components
//
//   - [Sink] is the consumer interface (channel, JSON lines, zerolog, no-op).
//   - [Dispatcher] is a buffered async relay that drops or blocks when full.
//   - [Event] is one lifecycle record.
//
// # Architecture boundaries
//
// This package owns buffering and delivery. Deciding which events to emit
// belongs to the Manager.
//
// # What this package must NOT do
//
//   - Import tabAuth or any sibling internal package.
//   - Carry access tokens in events.
package audit
