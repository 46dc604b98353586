// Package source provides the vital-sign feeds the agent forwards.
//
// Each Source returns one Sample per Read call:
//
//   - Simulator (simulator.go) draws synthetic vitals for a scenario:
//     normal, moderate, high_risk, critical, stemi, or escalating, which
//     walks from a normal reading to a critical one over a number of steps.
//   - Prometheus (prometheus.go) scrapes a bedside monitor exporter that
//     publishes vitals as gauges (vital_heart_rate_bpm, ...,
//     ecg_st_segment_elevation_mv). Missing ECG gauges take their defaults.
//
// Factory: New(config.Source) returns the correct Source. Authentication
// (mTLS, API key, bearer token, basic) for exporter endpoints is handled by
// the shared authRoundTripper in http.go.
package source
