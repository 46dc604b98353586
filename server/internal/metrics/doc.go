// Package metrics exposes the server's Prometheus collectors: assessment and
// emergency counts, scoring latency, HTTP request metrics, rule set reloads,
// and rate limit and auth rejections.
package metrics
