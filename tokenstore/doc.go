// Package tokenstore persists the access token and identity hints of one browsing
// context (tab) so a session survives reloads within that tab.
//
// # Layout
//
// A stored [Record] holds exactly three scalar fields: accessToken, username and
// isAdmin ("true"|"false"). The Redis backend keeps them as one hash under
// <prefix>:tab:<tabID>; the memory backend keeps one value per store.
//
// # Architecture boundaries
//
// This package owns persistence only. It does NOT decide when a session is
// authenticated, schedule refreshes, or talk to the token endpoints. Those
// responsibilities belong to the tabAuth Manager, which is the single writer.
//
// # What this package must NOT do
//
//   - Import tabAuth, bridge, or refresh (no upward imports).
//   - Store the renewal credential. Only the access token is persisted here.
//   - Parse or validate tokens.
package tokenstore
