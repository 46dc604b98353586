// Package store keeps the time-ordered log of scored readings.
//
// Log is the persistence contract used by the API. Memory is the default
// in-process implementation with TTL and size-based eviction; the sqlstore
// subpackage provides Postgres and ClickHouse backends. Summarize and
// Aggregate.Build produce the summary report shared by every backend.
package store
