// Package middleware exposes the HTTP adapters around a tab session.
//
// # Handlers
//
//   - [Guard] is the edge route guard. It redirects requests for protected
//     paths to the login page when the session marker cookie is absent.
//   - [AttachSession] puts a tabAuth.Manager on the request context and keeps
//     the browser's marker cookie in step with it (backend-for-frontend use).
//
// # Architecture boundaries
//
// The guard decides on marker presence only. It never validates the token: the
// marker gates navigation, and the API authorizes every data request.
//
// # What this package must NOT do
//
//   - Decode or verify tokens.
//   - Read the token store.
//   - Make authorization decisions beyond marker presence.
package middleware
