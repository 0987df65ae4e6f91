package internaldefs

import (
	"github.com/MrEthical07/loginguard"
)

// CounterDef maps an engine counter to its exported name.
type CounterDef struct {
	ID   loginguard.MetricID
	Name string
	Help string
}

// HistogramDef maps an engine histogram to its exported name.
type HistogramDef struct {
	ID   loginguard.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in output order.
var CounterDefs = []CounterDef{
	{ID: loginguard.MetricLoginSuccess, Name: "loginguard_login_success_total", Help: "Successful local logins."},
	{ID: loginguard.MetricLoginFailure, Name: "loginguard_login_failure_total", Help: "Local logins denied by credential or lockout checks."},
	{ID: loginguard.MetricLoginRateLimited, Name: "loginguard_login_rate_limited_total", Help: "Local logins denied by the per-origin rate limit."},
	{ID: loginguard.MetricLoginLocked, Name: "loginguard_login_locked_total", Help: "Login attempts against an already locked account."},
	{ID: loginguard.MetricAccountLocked, Name: "loginguard_account_locked_total", Help: "Accounts moved into lockout."},
	{ID: loginguard.MetricInvalidRequest, Name: "loginguard_invalid_request_total", Help: "Requests rejected before any lookup."},
	{ID: loginguard.MetricFederatedLoginSuccess, Name: "loginguard_federated_login_success_total", Help: "Successful federated logins."},
	{ID: loginguard.MetricFederatedLoginFailure, Name: "loginguard_federated_login_failure_total", Help: "Failed federated logins."},
	{ID: loginguard.MetricAccountProvisioned, Name: "loginguard_account_provisioned_total", Help: "Accounts created from a federated identity."},
	{ID: loginguard.MetricSessionIssued, Name: "loginguard_session_issued_total", Help: "Session tokens issued."},
	{ID: loginguard.MetricDependencyFailure, Name: "loginguard_dependency_failure_total", Help: "Logins failed by an unavailable dependency."},
	{ID: loginguard.MetricPasswordUpgraded, Name: "loginguard_password_upgraded_total", Help: "Stored hashes upgraded to current parameters."},
	{ID: loginguard.MetricRateLimiterFailOpen, Name: "loginguard_rate_limiter_fail_open_total", Help: "Attempts admitted while the rate limiter was unavailable."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: loginguard.MetricLoginLatency, Name: "loginguard_login_latency_seconds", Help: "Login latency histogram."},
}

// HistogramBounds are the upper bounds in seconds, matching the engine's
// millisecond buckets.
var HistogramBounds = []string{
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"+Inf",
}

// HistogramBoundSuffix names each bucket where a label value is not allowed.
var HistogramBoundSuffix = []string{
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into cumulative counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
