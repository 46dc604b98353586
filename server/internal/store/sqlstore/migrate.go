package sqlstore

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationFiles embed.FS

// Migrate applies the embedded migrations for backend to the database at dsn.
// It opens its own handle, since golang-migrate closes the handle it is given.
// An up-to-date schema is not an error.
func Migrate(ctx context.Context, backend, dsn, table string) error {
	d, err := DialectFor(backend)
	if err != nil {
		return err
	}
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return fmt.Errorf("sqlstore: open %s for migration: %w", d.Name, err)
	}
	m, err := newMigrator(db, d, table)
	if err != nil {
		db.Close()
		return err
	}
	defer m.Close()

	done := make(chan error, 1)
	go func() { done <- m.Up() }()

	select {
	case err = <-done:
	case <-ctx.Done():
		m.GracefulStop <- true
		err = <-done
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlstore: migrate %s: %w", table, err)
	}
	return nil
}

func newMigrator(db *sql.DB, d Dialect, table string) (*migrate.Migrate, error) {
	src, err := migrationSource(d, table)
	if err != nil {
		return nil, err
	}
	drv, err := d.migrationDriver(db, table+"_schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("sqlstore: %s migration driver: %w", d.Name, err)
	}
	m, err := migrate.NewWithInstance("iofs", src, d.Name, drv)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: create migrator: %w", err)
	}
	return m, nil
}

// migrationSource serves migrations/<dialect> with {table} substituted.
func migrationSource(d Dialect, table string) (source.Driver, error) {
	src, err := iofs.New(tableFS{FS: migrationFiles, table: table}, path.Join("migrations", d.Name))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: %s migrations: %w", d.Name, err)
	}
	return src, nil
}

// tableFS renders the {table} placeholder in .sql files as they are opened.
type tableFS struct {
	fs.FS
	table string
}

func (t tableFS) Open(name string) (fs.File, error) {
	f, err := t.FS.Open(name)
	if err != nil || !strings.HasSuffix(name, ".sql") {
		return f, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	data = bytes.ReplaceAll(data, []byte("{table}"), []byte(t.table))
	return &renderedFile{Reader: bytes.NewReader(data), info: info}, nil
}

type renderedFile struct {
	*bytes.Reader
	info fs.FileInfo
}

func (f *renderedFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *renderedFile) Close() error               { return nil }
