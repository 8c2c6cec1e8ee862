// Package prometheus publishes engine metrics through client_golang.
//
// [Collector] implements prometheus.Collector over Engine.MetricsSnapshot;
// register it with the registry you serve, or use [Handler] for a
// dedicated one. Counters are named authd_*_total and the token validation
// latency is the authd_validate_latency_seconds histogram.
package prometheus
