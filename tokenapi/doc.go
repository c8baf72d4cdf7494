// Package tokenapi is the HTTP client for the token issuer's three endpoints:
// credential exchange (POST token/), renewal (POST token/refresh/) and
// invalidation (POST token/blacklist/).
//
// The renewal credential is an HttpOnly cookie set by the issuer. It lives in
// the cookie jar of the [http.Client] passed to [New] and is never exposed to
// callers; Refresh and Invalidate rely on the jar to send it.
//
// Access tokens are opaque here. The client never decodes them.
package tokenapi
