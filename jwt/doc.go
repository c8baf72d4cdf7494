// Package jwt mints and verifies the signed tokens handed out by the dev
// issuer.
//
// Two token types exist. Access tokens are short-lived bearer credentials
// carrying the username and admin flag. Renewal tokens live in an HttpOnly
// cookie and carry a unique jti so the issuer can rotate and deny them.
// Both use the same signing key; the token_type claim keeps one from being
// accepted as the other.
//
// # Architecture boundaries
//
// Only the issuer uses this package. The client side treats access tokens as
// opaque strings and never parses them.
//
// # What this package must NOT do
//
//   - Track which renewal tokens have been used (the issuer's denylist does).
//   - Import any other tabAuth package.
package jwt
