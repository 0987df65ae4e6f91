// Package jwt issues and verifies signed session tokens.
//
// A token carries a snapshot of [SessionClaims] taken at issuance; nothing
// re-reads the account while the token lives. Expiry is the only
// invalidation, so MaxAge bounds how stale a session can get.
//
// # What this package must NOT do
//
//   - Accept password hashes or other secrets into the claim set.
//   - Look up accounts. Callers pass the claims in.
package jwt
