// Package sqlstore implements store.Log on database/sql.
//
// Two dialects are supported: Postgres through the pgx stdlib driver and
// ClickHouse through clickhouse-go. Both keep one row per reading in a single
// table; the summary report is computed with aggregate queries.
//
// The schema lives in migrations/<dialect> and is applied by Migrate with
// golang-migrate. The table name is substituted for {table} in each file.
package sqlstore
