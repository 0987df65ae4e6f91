// Package otel publishes loginguard metrics through OpenTelemetry
// asynchronous instruments.
//
// [New] registers one observable counter per engine counter and a set of
// cumulative bucket gauges for the login latency histogram. Values are read
// from the engine snapshot on every collection.
//
// # What this package must NOT do
//
//   - Install a global MeterProvider.
//   - Keep its own copy of counter state.
package otel
