// Package prometheus provides Prometheus collectors for email authentication metrics.
//
// [NewPrometheusExporter] accepts an [emailauth.Engine] and exposes an [http.Handler]
// that renders all engine counters and histograms in Prometheus text exposition format.
// Counter names are prefixed emailauth_*_total; the single histogram is
// emailauth_verify_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
