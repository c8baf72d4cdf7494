// Package password hashes and verifies the dev issuer's user passwords with
// Argon2id.
//
// # Output format
//
// Hashes are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// so users can be seeded from a config file without storing plaintext.
//
// # What this package must NOT do
//
//   - Store users or passwords (the issuer's user table does).
//   - Import any other tabAuth package.
//   - Log plaintext passwords.
package password
