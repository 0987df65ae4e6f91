// Package prometheus renders loginguard metrics in Prometheus text
// exposition format without depending on a Prometheus client library.
//
// Counter names are prefixed loginguard_*_total; the single histogram is
// loginguard_login_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
