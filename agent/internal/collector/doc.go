// Package collector drives the agent's read loop: it reads each configured
// source once per interval and hands the samples to the shipper. A reloaded
// agent configuration is applied in place through Apply.
package collector
