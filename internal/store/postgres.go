package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/fleetkit/napi/internal/domain"
)

// Postgres is a Store backed by the same generic object table as SQLite,
// using SELECT ... FOR UPDATE inside a transaction to serialize concurrent
// commits touching the same key.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects to a Postgres-backed store given a libpq DSN.
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}
	db.SetMaxOpenConns(20)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres store: %w", err)
	}
	return &Postgres{db: db}, nil
}

// DB exposes the underlying connection so callers (migrations, health
// checks) can operate on it directly.
func (p *Postgres) DB() *sql.DB { return p.db }

// MigratePostgres applies the store's schema migrations via golang-migrate.
func MigratePostgres(db *sql.DB, migrationsPath string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("store migrations: driver init: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(fmt.Sprintf("file://%s", migrationsPath), "postgres", driver)
	if err != nil {
		return fmt.Errorf("store migrations: instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("store migrations: up: %w", err)
	}
	slog.Info("store migrations applied", "path", migrationsPath)
	return nil
}

func (p *Postgres) Get(ctx context.Context, bucket, key string) (*Record, error) {
	row := p.db.QueryRowContext(ctx, `SELECT value, version FROM napi_objects WHERE bucket = $1 AND key = $2`, bucket, key)
	var rec Record
	if err := row.Scan(&rec.Value, &rec.Version); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, &ConflictError{Kind: KindTransient, Bucket: bucket, Key: key, Err: err}
	}
	return &rec, nil
}

func (p *Postgres) Commit(ctx context.Context, batch domain.Batch) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return &ConflictError{Kind: KindTransient, Err: err}
	}
	defer tx.Rollback()

	for _, item := range batch {
		var existingVersion string
		err := tx.QueryRowContext(ctx,
			`SELECT version FROM napi_objects WHERE bucket = $1 AND key = $2 FOR UPDATE`,
			item.Bucket, item.Key).Scan(&existingVersion)
		exists := err == nil
		if err != nil && err != sql.ErrNoRows {
			return &ConflictError{Kind: KindTransient, Bucket: item.Bucket, Key: item.Key, Err: err}
		}

		switch item.Op {
		case domain.OpPut:
			if item.Unique && exists {
				return &ConflictError{Kind: KindUniqueConflict, Bucket: item.Bucket, Key: item.Key}
			}
			if !item.Unique {
				if item.ExpectVersion == "" && exists {
					return &ConflictError{Kind: KindVersionConflict, Bucket: item.Bucket, Key: item.Key}
				}
				if item.ExpectVersion != "" && (!exists || existingVersion != item.ExpectVersion) {
					return &ConflictError{Kind: KindVersionConflict, Bucket: item.Bucket, Key: item.Key}
				}
			}
			raw, merr := marshalValue(item.Value)
			if merr != nil {
				return &ConflictError{Kind: KindFatal, Bucket: item.Bucket, Key: item.Key, Err: merr}
			}
			newVer := newVersion()
			if exists {
				if _, err := tx.ExecContext(ctx, `UPDATE napi_objects SET value = $1, version = $2 WHERE bucket = $3 AND key = $4`, raw, newVer, item.Bucket, item.Key); err != nil {
					return &ConflictError{Kind: KindTransient, Bucket: item.Bucket, Key: item.Key, Err: err}
				}
			} else {
				if _, err := tx.ExecContext(ctx, `INSERT INTO napi_objects (bucket, key, value, version) VALUES ($1, $2, $3, $4)`, item.Bucket, item.Key, raw, newVer); err != nil {
					return &ConflictError{Kind: KindTransient, Bucket: item.Bucket, Key: item.Key, Err: err}
				}
			}
		case domain.OpDelete:
			if !exists || (item.ExpectVersion != "" && existingVersion != item.ExpectVersion) {
				return &ConflictError{Kind: KindVersionConflict, Bucket: item.Bucket, Key: item.Key}
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM napi_objects WHERE bucket = $1 AND key = $2`, item.Bucket, item.Key); err != nil {
				return &ConflictError{Kind: KindTransient, Bucket: item.Bucket, Key: item.Key, Err: err}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &ConflictError{Kind: KindTransient, Err: err}
	}
	return nil
}

func (p *Postgres) List(ctx context.Context, bucket string, filter ListFilter) ([]*Record, error) {
	query := `SELECT value, version FROM napi_objects WHERE bucket = $1`
	args := []interface{}{bucket}
	if filter.Prefix != "" {
		query += ` AND key LIKE $2`
		args = append(args, filter.Prefix+"%")
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &ConflictError{Kind: KindTransient, Bucket: bucket, Err: err}
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Value, &rec.Version); err != nil {
			return nil, &ConflictError{Kind: KindTransient, Bucket: bucket, Err: err}
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
