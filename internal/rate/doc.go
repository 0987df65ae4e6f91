// Package rate implements the per-origin login rate limiter on Redis.
//
// # Window semantics
//
// Fixed-window counters: one Lua script performs INCR and arms PEXPIRE on the
// first hit (or on a key found without TTL), so the increment and the window
// are applied atomically. Keys are "<prefix>:<origin>".
//
// The limiter is independent of account state. Every Check counts, whether
// or not the attempt that follows succeeds.
//
// # What this package must NOT do
//
//   - Decide fail-open vs fail-closed. It reports ErrUnavailable and the
//     caller applies its policy.
//   - Inspect or key on account identifiers.
package rate
