// Package rate counts failed logins in Redis so the dev issuer can throttle
// password guessing.
//
// # Window semantics
//
// Fixed-window counters: INCR plus EXPIRE on the first hit of a window.
// Key layout:
//   - <prefix>:lf:<username>  failures per username
//   - <prefix>:lfi:<ip>       failures per client IP (optional)
//
// # What this package must NOT do
//
//   - Decide what to do when a caller is throttled (the issuer does).
//   - Be imported outside this module.
package rate
