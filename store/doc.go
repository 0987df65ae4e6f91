// Package store defines the account record and the persistence contract used
// by the login core.
//
// # Architecture boundaries
//
// This package owns the data model only. The SQL implementation lives in
// store/sqlstore; callers depend on [AccountStore].
//
// # What this package must NOT do
//
//   - Decide lockout policy. Threshold and duration are passed in by the caller.
//   - Perform I/O.
package store
