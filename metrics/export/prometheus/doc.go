// Package prometheus exposes a session manager's counters and renewal latency
// histogram as a prometheus.Collector.
//
// Counters are named tabauth_*_total; the histogram is
// tabauth_refresh_latency_seconds. Values are read from
// [tabAuth.Manager.MetricsSnapshot] on every scrape, so nothing is double
// counted.
//
// # What this package must NOT do
//
//   - Register with the global Prometheus registry. Callers register the
//     Collector or mount [Collector.Handler].
//   - Mutate manager state.
package prometheus
