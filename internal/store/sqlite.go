package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "modernc.org/sqlite"

	"github.com/fleetkit/napi/internal/domain"
)

// SQLite is a Store backed by a single generic object table, queried and
// written inside one transaction per Commit so the batch's atomicity
// matches the spec's all-or-nothing contract.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if absent) a SQLite-backed store at path.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite store: %w", err)
	}
	return &SQLite{db: db}, nil
}

// DB exposes the underlying connection so callers (migrations, health
// checks) can operate on it directly.
func (s *SQLite) DB() *sql.DB { return s.db }

// MigrateSQLite applies the store's schema migrations via golang-migrate.
func MigrateSQLite(db *sql.DB, migrationsPath string) error {
	absPath, err := filepath.Abs(migrationsPath)
	if err != nil {
		return fmt.Errorf("store migrations: resolve path: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("store migrations: driver init: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(fmt.Sprintf("file://%s", filepath.ToSlash(absPath)), "sqlite", driver)
	if err != nil {
		return fmt.Errorf("store migrations: instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("store migrations: up: %w", err)
	}
	slog.Info("store migrations applied", "path", migrationsPath)
	return nil
}

func (s *SQLite) Get(ctx context.Context, bucket, key string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value, version FROM napi_objects WHERE bucket = ? AND key = ?`, bucket, key)
	var rec Record
	if err := row.Scan(&rec.Value, &rec.Version); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, &ConflictError{Kind: KindTransient, Bucket: bucket, Key: key, Err: err}
	}
	return &rec, nil
}

func (s *SQLite) Commit(ctx context.Context, batch domain.Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &ConflictError{Kind: KindTransient, Err: err}
	}
	defer tx.Rollback()

	for _, item := range batch {
		var existingVersion string
		err := tx.QueryRowContext(ctx, `SELECT version FROM napi_objects WHERE bucket = ? AND key = ?`, item.Bucket, item.Key).Scan(&existingVersion)
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
				if _, err := tx.ExecContext(ctx, `UPDATE napi_objects SET value = ?, version = ? WHERE bucket = ? AND key = ?`, raw, newVer, item.Bucket, item.Key); err != nil {
					return &ConflictError{Kind: KindTransient, Bucket: item.Bucket, Key: item.Key, Err: err}
				}
			} else {
				if _, err := tx.ExecContext(ctx, `INSERT INTO napi_objects (bucket, key, value, version) VALUES (?, ?, ?, ?)`, item.Bucket, item.Key, raw, newVer); err != nil {
					return &ConflictError{Kind: KindTransient, Bucket: item.Bucket, Key: item.Key, Err: err}
				}
			}
		case domain.OpDelete:
			if !exists || (item.ExpectVersion != "" && existingVersion != item.ExpectVersion) {
				return &ConflictError{Kind: KindVersionConflict, Bucket: item.Bucket, Key: item.Key}
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM napi_objects WHERE bucket = ? AND key = ?`, item.Bucket, item.Key); err != nil {
				return &ConflictError{Kind: KindTransient, Bucket: item.Bucket, Key: item.Key, Err: err}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &ConflictError{Kind: KindTransient, Err: err}
	}
	return nil
}

func (s *SQLite) List(ctx context.Context, bucket string, filter ListFilter) ([]*Record, error) {
	query := `SELECT value, version FROM napi_objects WHERE bucket = ?`
	args := []interface{}{bucket}
	if filter.Prefix != "" {
		query += ` AND key LIKE ?`
		args = append(args, strings.ReplaceAll(filter.Prefix, "%", "\\%")+"%")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
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
