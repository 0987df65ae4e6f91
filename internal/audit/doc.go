// Package audit implements async event dispatching for login decisions.
//
// # Components
//
//   - [Sink] is the event consumer contract (channel, JSON writer, no-op).
//   - [Dispatcher] is a buffered async relay with drop-if-full or
//     block-if-full semantics.
//   - [Event] is one structured audit record.
//
// # Architecture boundaries
//
// This package owns buffering and sink delivery. The engine decides which
// events to emit and what goes in them.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import loginguard or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
