// Package cache fronts expensive read endpoints, currently the summary
// report, with Redis. Nop is used when no cache is configured.
package cache
