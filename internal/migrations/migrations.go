// Package migrations applies the embedded PostgreSQL schema.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

//go:embed sql/*.sql
var files embed.FS

const migrationTable = "schema_migrations"

// File is a single versioned migration.
type File struct {
	Name    string
	Version int
	SQL     string
}

// List returns the embedded migrations ordered by version.
func List() ([]File, error) {
	entries, err := fs.ReadDir(files, "sql")
	if err != nil {
		return nil, errors.Wrap(err, "migrations: read dir")
	}
	result := make([]File, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, err := versionFromName(entry.Name())
		if err != nil {
			return nil, err
		}
		body, err := files.ReadFile("sql/" + entry.Name())
		if err != nil {
			return nil, errors.Wrapf(err, "migrations: read %s", entry.Name())
		}
		result = append(result, File{Name: entry.Name(), Version: version, SQL: string(body)})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Version < result[j].Version })
	return result, nil
}

// versionFromName expects a zero padded version followed by an underscore.
func versionFromName(name string) (int, error) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, errors.Errorf("migrations: invalid file name %q", name)
	}
	version, err := strconv.Atoi(prefix)
	if err != nil || version <= 0 {
		return 0, errors.Errorf("migrations: invalid version in %q", name)
	}
	return version, nil
}

// Upgrade applies every migration newer than the recorded version. Each file
// runs in its own transaction together with its version bookkeeping.
func Upgrade(ctx context.Context, db *sql.DB, logger zerolog.Logger) (int, error) {
	if db == nil {
		return 0, errors.New("migrations: nil db")
	}
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS `+migrationTable+` (
	version    INT PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return 0, errors.Wrap(err, "migrations: install")
	}

	var current sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM `+migrationTable).Scan(&current); err != nil {
		return 0, errors.Wrap(err, "migrations: current version")
	}

	list, err := List()
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, file := range list {
		if current.Valid && int64(file.Version) <= current.Int64 {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return applied, errors.Wrap(err, "migrations: begin")
		}
		if _, err := tx.ExecContext(ctx, file.SQL); err != nil {
			_ = tx.Rollback()
			return applied, errors.Wrapf(err, "migrations: apply %s", file.Name)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO `+migrationTable+` (version, name) VALUES ($1, $2)`, file.Version, file.Name); err != nil {
			_ = tx.Rollback()
			return applied, errors.Wrapf(err, "migrations: record %s", file.Name)
		}
		if err := tx.Commit(); err != nil {
			return applied, errors.Wrapf(err, "migrations: commit %s", file.Name)
		}
		logger.Info().Str("file", file.Name).Int("version", file.Version).Msg("migration applied")
		applied++
	}
	return applied, nil
}
