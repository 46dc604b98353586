// Package types defines the JSON wire types shared by the agent and the
// server: the analyze request and response, the emergency alert block, and
// the stored reading streamed to dashboards.
package types
