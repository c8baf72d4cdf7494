// Package issuer is a local stand-in for the blog's token backend.
//
// It serves the three endpoints the session manager talks to:
//
//	POST /token/            {"username","password"} -> {"access","is_admin"}
//	POST /token/refresh/    renewal cookie          -> {"access"}
//	POST /token/blacklist/  renewal cookie          -> {}
//
// plus two helpers for demos and tests:
//
//	POST /token/verify/     {"token"}               -> {}
//	GET  /me/               Authorization: Bearer   -> {"username","is_admin"}
//
// The renewal credential is only ever sent as an HttpOnly cookie. Every use
// rotates it and consumes the old jti in a [Denylist], so a replayed renewal
// cookie is refused.
//
// # Architecture boundaries
//
// The issuer depends on the jwt and password packages only. It knows nothing
// about tabs, stores or the client-side session manager.
package issuer
