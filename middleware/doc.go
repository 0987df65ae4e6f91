// Package middleware adapts the loginguard engine to net/http.
//
//   - [RequireSession] verifies the bearer session token and injects the
//     claims into the request context.
//   - [Origin] and [ClientOrigin] derive the client address used as the
//     rate-limit key.
//
// # What this package must NOT do
//
//   - Parse or sign tokens itself. Validation is delegated to the engine.
//   - Make authorization decisions on business records.
package middleware
