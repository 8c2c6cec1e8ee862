// Package password hashes, verifies and polices account passwords.
//
// # Output format
//
// New hashes are argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Hasher.Verify] also accepts bcrypt hashes ($2a$, $2b$, $2y$) written by the
// previous backend. [Hasher.NeedsUpgrade] reports true for them so the caller
// can re-hash on the next successful login.
//
// # Architecture boundaries
//
// Hashing and complexity checks live here. Whether and when to apply the
// [Policy] is decided by the engine at registration.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other package of this module.
//   - Log plaintext passwords or hash parameters at runtime.
package password
