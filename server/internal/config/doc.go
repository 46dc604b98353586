// Package config loads the server-side configuration from the `server:` section
// of config.yaml (the `agent:` key is ignored by the server binary).
//
// Config fields:
//   - HTTPPort     : port for the REST API, /metrics and WebSocket hub (default 8080)
//   - LogLevel     : slog level (default info)
//   - Auth         : "apikey" or "none"; key read from the env var named by key_env
//   - Rules        : built-in rule set name (default extended) or a YAML rules file
//   - History      : in-memory reading retention (ttl, max_entries)
//   - Storage      : memory | postgres | clickhouse reading log
//   - Alerts       : per-patient cooldown and webhook targets
//   - Events       : none | nats | kafka assessment publishing
//   - Cache        : none | redis summary report cache
//   - RateLimit    : per client IP token bucket
//
// Load(path) applies defaults before unmarshalling, then validates. WatchFile
// drives hot reload of the rules file.
package config
