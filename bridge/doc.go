// Package bridge mirrors a minimal authentication marker into a transport that an
// edge route guard receives with every request to the same origin.
//
// The guard runs before any application state exists, so it cannot read the token
// store. The bridge writes the access token value as a cookie; the guard only
// checks that the cookie is present.
//
// # Consistency
//
// The marker is a second replica of the token store's access token. The tabAuth
// Manager is its single writer and keeps it in step on a best-effort basis: a
// failed Set or Clear is logged and counted, never surfaced to the caller. The
// marker gates navigation only; it never authorizes data access.
package bridge
