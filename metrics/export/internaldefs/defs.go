package internaldefs

import (
	"strconv"
	"strings"

	tabAuth "github.com/quillpress/tabAuth"
)

// BucketCount is the number of latency buckets, the unbounded one included.
const BucketCount = tabAuth.HistogramBuckets

// CounterDef names one counter.
type CounterDef struct {
	ID   tabAuth.MetricID
	Name string
	Help string
}

// HistogramDef names one histogram.
type HistogramDef struct {
	ID   tabAuth.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "tabauth_audit_dropped_total"

var CounterDefs = []CounterDef{
	{ID: tabAuth.MetricLoginSuccess, Name: "tabauth_login_success_total", Help: "Sessions established by login."},
	{ID: tabAuth.MetricLoginRejected, Name: "tabauth_login_rejected_total", Help: "Login attempts refused for bad input or credentials."},
	{ID: tabAuth.MetricLoginFailure, Name: "tabauth_login_failure_total", Help: "Login attempts that failed to reach the issuer."},
	{ID: tabAuth.MetricHydrated, Name: "tabauth_hydrated_total", Help: "Sessions restored from the token store."},
	{ID: tabAuth.MetricRefreshSuccess, Name: "tabauth_refresh_success_total", Help: "Applied token renewals."},
	{ID: tabAuth.MetricRefreshFailure, Name: "tabauth_refresh_failure_total", Help: "Token renewals that failed."},
	{ID: tabAuth.MetricRefreshRetried, Name: "tabauth_refresh_retried_total", Help: "Retries within a token renewal."},
	{ID: tabAuth.MetricRefreshSkipped, Name: "tabauth_refresh_skipped_total", Help: "Renewal firings skipped while one was in flight."},
	{ID: tabAuth.MetricRefreshStale, Name: "tabauth_refresh_stale_total", Help: "Renewal results discarded because the session changed."},
	{ID: tabAuth.MetricLogout, Name: "tabauth_logout_total", Help: "Voluntary logouts."},
	{ID: tabAuth.MetricForcedLogout, Name: "tabauth_forced_logout_total", Help: "Sessions ended by a failed renewal."},
	{ID: tabAuth.MetricInvalidationFailure, Name: "tabauth_invalidation_failure_total", Help: "Failed renewal credential invalidations."},
	{ID: tabAuth.MetricStoreFailure, Name: "tabauth_store_failure_total", Help: "Token store errors."},
	{ID: tabAuth.MetricBridgeFailure, Name: "tabauth_bridge_failure_total", Help: "Edge marker bridge errors."},
}

var HistogramDefs = []HistogramDef{
	{ID: tabAuth.MetricRefreshLatency, Name: "tabauth_refresh_latency_seconds", Help: "Token renewal latency including retries."},
}

// UpperBoundsSeconds returns the finite bucket bounds in seconds. The final
// unbounded bucket is omitted.
func UpperBoundsSeconds() []float64 {
	bounds := tabAuth.HistogramUpperBounds()
	out := make([]float64, 0, len(bounds)-1)
	for _, b := range bounds {
		if b > 0 {
			out = append(out, b.Seconds())
		}
	}
	return out
}

// BoundSuffixes returns metric-name-safe labels for each bucket, "inf" last.
func BoundSuffixes() []string {
	out := make([]string, 0, BucketCount)
	for _, b := range UpperBoundsSeconds() {
		out = append(out, strings.ReplaceAll(strconv.FormatFloat(b, 'f', -1, 64), ".", "_"))
	}
	return append(out, "inf")
}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
