// Package events publishes an event for every scored reading so downstream
// consumers (charting, paging, audit) do not have to poll the API.
//
// Backends: NATS JetStream, Kafka, or Nop.
package events
