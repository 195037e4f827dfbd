// Package store provides the SQLite-backed entry repository.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/starford/wellbeing/internal/store/migrations"
)

// DB wraps a sql.DB with entry-specific operations.
type DB struct {
	conn *sql.DB
	// writeMu serializes writers so readers never observe a half-applied change.
	writeMu sync.Mutex
}

// Open opens (or creates) the SQLite database and migrates it to the latest schema.
func Open(ctx context.Context, dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", connString(dsn))
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if err := migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &DB{conn: conn}, nil
}

// connParams are added to the DSN unless it already sets them.
var connParams = [][2]string{
	{"_journal_mode", "WAL"},
	{"_busy_timeout", "5000"},
	{"_txlock", "immediate"},
}

// connString appends connParams to dsn, which may be a plain path or a
// file: URI that already carries a query string.
func connString(dsn string) string {
	var b strings.Builder
	b.WriteString(dsn)
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	_, query, _ := strings.Cut(dsn, "?")
	for _, kv := range connParams {
		if strings.Contains("&"+query, "&"+kv[0]+"=") {
			continue
		}
		b.WriteString(sep)
		b.WriteString(kv[0] + "=" + kv[1])
		sep = "&"
	}
	return b.String()
}

func migrate(ctx context.Context, conn *sql.DB) error {
	p, err := goose.NewProvider(goose.DialectSQLite3, conn, migrations.FS)
	if err != nil {
		return fmt.Errorf("store: migration provider: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// SchemaVersion reports the applied migration version.
func (db *DB) SchemaVersion(ctx context.Context) (int64, error) {
	p, err := goose.NewProvider(goose.DialectSQLite3, db.conn, migrations.FS)
	if err != nil {
		return 0, fmt.Errorf("store: migration provider: %w", err)
	}
	return p.GetDBVersion(ctx)
}

// Ping checks the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
