package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4/database"
	chmigrate "github.com/golang-migrate/migrate/v4/database/clickhouse"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
)

// Dialect captures the SQL differences between the supported backends.
type Dialect struct {
	// Name is the storage backend name used in config.
	Name string

	// Driver is the database/sql driver name.
	Driver string

	placeholder func(n int) string
	avg         func(col string) string
	clear       string // %s is the table

	// migrationDriver wraps a handle for golang-migrate, recording applied
	// versions in table.
	migrationDriver func(db *sql.DB, table string) (database.Driver, error)
}

// Postgres uses the pgx stdlib driver and $n placeholders.
var Postgres = Dialect{
	Name:        "postgres",
	Driver:      "pgx",
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	avg:         func(col string) string { return fmt.Sprintf("CAST(AVG(%s) AS DOUBLE PRECISION)", col) },
	clear:       "DELETE FROM %s",
	migrationDriver: func(db *sql.DB, table string) (database.Driver, error) {
		return pgxmigrate.WithInstance(db, &pgxmigrate.Config{MigrationsTable: table})
	},
}

// ClickHouse uses the clickhouse-go driver and ? placeholders.
var ClickHouse = Dialect{
	Name:        "clickhouse",
	Driver:      "clickhouse",
	placeholder: func(int) string { return "?" },
	avg:         func(col string) string { return fmt.Sprintf("avg(%s)", col) },
	clear:       "TRUNCATE TABLE %s",
	migrationDriver: func(db *sql.DB, table string) (database.Driver, error) {
		return chmigrate.WithInstance(db, &chmigrate.Config{MigrationsTable: table})
	},
}

// DialectFor returns the dialect for a storage backend name.
func DialectFor(backend string) (Dialect, error) {
	switch backend {
	case Postgres.Name:
		return Postgres, nil
	case ClickHouse.Name:
		return ClickHouse, nil
	default:
		return Dialect{}, fmt.Errorf("sqlstore: unknown backend %q: want postgres|clickhouse", backend)
	}
}

// placeholders returns "p1,p2,...,pn" starting at from.
func (d Dialect) placeholders(from, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = d.placeholder(from + i)
	}
	return strings.Join(ps, ",")
}
