// Package password implements credential hashing and constant-time verification.
//
// # Output format
//
// New hashes are argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<key>
//
// Legacy bcrypt hashes ($2a$, $2b$, $2y$) verify but always report
// [Hasher.NeedsUpgrade], as do argon2id hashes made with weaker parameters.
//
// # What this package must NOT do
//
//   - Store or retrieve hashes. Callers supply plaintext and receive hashes.
//   - Trim or otherwise normalize secrets.
//   - Log plaintext or hash material.
package password
