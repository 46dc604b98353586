// Package ws implements the WebSocket hub for the cardiosense server.
//
// Hub manages a set of connected dashboard clients and pushes every newly
// scored reading to all of them as it is recorded.
//
// New() creates a Hub.
// Hub.Run(ctx) blocks until ctx is cancelled, then closes all connections.
// Hub.Publish(reading) fans one reading out; slow clients are dropped.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket, sends a hello
// message immediately, then streams readings.
//
// Message format sent to clients:
//
//	{"event": "hello",   "data": {"connected_at": "..."}}
//	{"event": "reading", "data": { /* same schema as GET /api/v1/history/{id} */ }}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. The server mounts the hub at /ws/stream.
package ws
