// Package api implements the HTTP REST API for the cardiosense server.
//
// New(deps) returns an http.Handler that serves:
//
//	POST   /api/v1/analyze        score one vital-sign sample
//	GET    /api/v1/history        readings newest first (?limit=N, ?patient_id=)
//	GET    /api/v1/history/{id}   one reading; 404 if unknown
//	DELETE /api/v1/history        clear the reading log
//	GET    /api/v1/report         summary report, served through the cache
//	GET    /api/v1/rules          the active rule set
//	GET    /api/v1/rules/{name}   a built-in rule set
//	GET    /api/v1/alerts         firing and recently resolved alerts
//	GET    /api/v1/health         status, active rule set, reading count
//
// All endpoints respond with Content-Type: application/json and return 405
// for methods they do not serve. Analyze rejects missing or out-of-range
// vitals with 400.
//
// RateLimit wraps any handler with a per-client-IP token bucket. JSON types
// are defined in types.go. No external HTTP framework is used.
package api
