// Package sqlite implements the CredentialStore port on an embedded SQLite
// database for single-node deployments and local development.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

const pragmas = "_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"

// DB holds the credential database connections. Writes always go through a
// single connection. Reader is a separate pool only when Open was asked for
// one; otherwise it is the writer.
type DB struct {
	Writer *sql.DB
	Reader *sql.DB
}

// Open opens the database file at path in WAL mode and applies pending
// migrations. readers sizes a separate read pool; zero serves lookups on the
// writer connection.
func Open(ctx context.Context, path string, readers int) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&%s", path, pragmas)

	db, err := openDSN(ctx, dsn, readers)
	if err != nil {
		return nil, err
	}

	version, err := migrateUp(db.Writer)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("sqlite credential store ready", "path", path, "schema_version", version, "readers", readers)

	return db, nil
}

func openDSN(ctx context.Context, dsn string, readers int) (*DB, error) {
	writer, err := openPool(ctx, dsn, 1)
	if err != nil {
		return nil, fmt.Errorf("writer: %w", err)
	}
	if readers <= 0 {
		return &DB{Writer: writer, Reader: writer}, nil
	}

	reader, err := openPool(ctx, dsn, readers)
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("reader: %w", err)
	}
	return &DB{Writer: writer, Reader: reader}, nil
}

func openPool(ctx context.Context, dsn string, maxConns int) (*sql.DB, error) {
	pool, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	pool.SetMaxOpenConns(maxConns)

	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// Close closes the writer and, when separate, the read pool.
func (db *DB) Close() error {
	var firstErr error

	if db.Reader != db.Writer {
		if err := db.Reader.Close(); err != nil {
			firstErr = fmt.Errorf("close reader: %w", err)
		}
	}

	if err := db.Writer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close writer: %w", err)
	}

	return firstErr
}
