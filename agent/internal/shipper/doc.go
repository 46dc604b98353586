// Package shipper posts vital-sign samples to cardiosense-server's
// POST /api/v1/analyze endpoint.
//
// Shipper.Ship() is non-blocking: samples are placed in an in-memory channel
// (default capacity 1000). When the buffer is full the oldest entry is evicted
// so the latest readings are always preserved.
//
// Shipper.Run() drains the buffer in a loop. Transport errors, 429 and 5xx
// responses re-queue the sample and back off exponentially (1s→60s, ±25%
// jitter). Other 4xx responses discard the sample immediately.
//
// Auth: mTLS via the client TLS config, an API key header, or none.
package shipper
