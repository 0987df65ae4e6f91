// Package loginguard is the authentication core of a business console: it
// verifies credentials, locks accounts after repeated failures, rate limits
// login attempts per client origin, reconciles federated identities with
// local accounts and issues short-lived session tokens.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// loginguard is the public surface. It exposes [Engine], [Builder], [Config]
// and value types ([LoginRequest], [LoginResult], [Session]). Rate limiting,
// lockout, credential checks and reconciliation live under internal/; the
// account store contract is in package store and token signing in package
// jwt.
//
// # Error surface
//
// Every security decision returns an error whose message is exactly
// "authentication failed". errors.Is reaches [ErrAuthenticationFailed] and
// the specific reason ([ErrRateLimited], [ErrAccountLocked], ...), which
// callers use for logs and metrics only. Dependency failures match
// [ErrDependencyUnavailable] and are never security decisions.
//
// # What this package must NOT do
//
//   - Return, log or sign the password hash or the candidate secret.
//   - Hold account-keyed locks in memory. Counter atomicity lives in SQL and
//     in a Redis script.
//   - Let an admin notification or audit failure fail a login.
package loginguard
