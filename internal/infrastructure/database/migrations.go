package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"
)

// MigrationsFS holds the *.up.sql / *.down.sql files applied by Migrate.
// A migrations package registers its embedded files here from init:
//
//	//go:embed *.sql
//	var files embed.FS
//
//	func init() {
//	    database.MigrationsFS = files
//	    database.MigrationsDir = "."
//	}
//
// Files are named YYYYMMDD_HHMMSS_description.{up,down}.sql. A nil
// MigrationsFS means there is nothing to apply.
var MigrationsFS fs.FS

// MigrationsDir is the directory within MigrationsFS holding the files.
var MigrationsDir = "migrations"

// Migration represents a single database migration.
type Migration struct {
	Version string // YYYYMMDD_HHMMSS
	Name    string // description part of the filename
	UpSQL   string
	DownSQL string // empty when there is no down file
}

// MigrationRecord represents a row in the schema_migrations table.
type MigrationRecord struct {
	Version   string
	AppliedAt time.Time
}

// Migrate applies pending migrations oldest first, each in its own
// WithTransaction call. A failing migration is rolled back, earlier ones stay
// committed and later ones are not attempted; running Migrate again resumes
// from the failed one.
func (db *DB) Migrate(ctx context.Context) error {
	_, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		return err
	}

	for _, m := range pending {
		if err := db.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", m.Version, m.Name, err)
		}
	}

	return nil
}

// MigrateDown rolls back the most recently applied migration using its
// down file. It does nothing when no migration has been applied.
func (db *DB) MigrateDown(ctx context.Context) error {
	applied, err := db.getAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("getting applied migrations: %w", err)
	}

	if len(applied) == 0 {
		return nil // Nothing to rollback
	}
	latest := applied[len(applied)-1]

	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	i := slices.IndexFunc(migrations, func(m Migration) bool { return m.Version == latest.Version })
	if i < 0 {
		return fmt.Errorf("migration %s not found in filesystem", latest.Version)
	}
	migration := migrations[i]
	if migration.DownSQL == "" {
		return fmt.Errorf("migration %s has no down SQL", latest.Version)
	}

	_, err = WithTransaction(ctx, db, func(ctx context.Context, tx Tx) (int64, error) {
		if _, err := Execute(ctx, tx, migration.DownSQL, nil); err != nil {
			return 0, fmt.Errorf("executing down SQL: %w", err)
		}
		n, err := Execute(ctx, tx,
			"DELETE FROM schema_migrations WHERE version = "+db.Placeholder(1),
			Args(migration.Version),
		)
		if err != nil {
			return 0, fmt.Errorf("removing migration record: %w", err)
		}
		return n, nil
	})
	if err != nil {
		return fmt.Errorf("rolling back migration %s: %w", migration.Version, err)
	}
	return nil
}

// GetMigrationStatus lists applied migrations and the pending ones, both
// oldest first. It creates schema_migrations if needed.
func (db *DB) GetMigrationStatus(ctx context.Context) (applied []MigrationRecord, pending []Migration, err error) {
	applied, err = db.getAppliedMigrations(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("getting applied migrations: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return nil, nil, fmt.Errorf("loading migrations: %w", err)
	}

	done := make(map[string]struct{}, len(applied))
	for _, rec := range applied {
		done[rec.Version] = struct{}{}
	}
	for _, m := range migrations {
		if _, ok := done[m.Version]; !ok {
			pending = append(pending, m)
		}
	}
	return applied, pending, nil
}

// createMigrationsTable creates the schema_migrations table if it doesn't exist.
func (db *DB) createMigrationsTable(ctx context.Context) error {
	_, err := WithConnection(ctx, db, func(ctx context.Context, conn Conn) (int64, error) {
		return Execute(ctx, conn, `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version TEXT PRIMARY KEY,
				applied_at TEXT NOT NULL
			)
		`, nil)
	})
	return err
}

// getAppliedMigrations returns all migrations that have been applied.
// A missing schema_migrations table means nothing has been applied.
func (db *DB) getAppliedMigrations(ctx context.Context) ([]MigrationRecord, error) {
	if err := db.createMigrationsTable(ctx); err != nil {
		return nil, fmt.Errorf("creating migrations table: %w", err)
	}

	return WithConnection(ctx, db, func(ctx context.Context, conn Conn) ([]MigrationRecord, error) {
		return QueryMany(ctx, conn,
			"SELECT version, applied_at FROM schema_migrations ORDER BY version",
			nil,
			func(r *Row) (MigrationRecord, error) {
				version, err := r.String("version")
				if err != nil {
					return MigrationRecord{}, err
				}
				appliedAt, err := r.Time("applied_at")
				if err != nil {
					return MigrationRecord{}, err
				}
				return MigrationRecord{Version: version, AppliedAt: appliedAt}, nil
			},
		)
	})
}

// applyMigration applies a single migration within a transaction.
func (db *DB) applyMigration(ctx context.Context, m Migration) error {
	_, err := WithTransaction(ctx, db, func(ctx context.Context, tx Tx) (int64, error) {
		if _, err := Execute(ctx, tx, m.UpSQL, nil); err != nil {
			return 0, fmt.Errorf("executing SQL: %w", err)
		}
		n, err := Execute(ctx, tx,
			"INSERT INTO schema_migrations (version, applied_at) VALUES ("+db.Placeholder(1)+", "+db.Placeholder(2)+")",
			Args(m.Version, time.Now().UTC().Format(time.RFC3339)),
		)
		if err != nil {
			return 0, fmt.Errorf("recording migration: %w", err)
		}
		return n, nil
	})
	return err
}

// migrationFile is one parsed migration filename.
type migrationFile struct {
	version string // YYYYMMDD_HHMMSS
	name    string // description
	up      bool
}

// parseMigrationFilename splits "20260301_090000_create_settings.up.sql" into
// its version, description and direction. ok is false for anything else.
func parseMigrationFilename(filename string) (f migrationFile, ok bool) {
	base, found := strings.CutSuffix(filename, ".sql")
	if !found {
		return f, false
	}
	if rest, isUp := strings.CutSuffix(base, ".up"); isUp {
		base, f.up = rest, true
	} else if rest, isDown := strings.CutSuffix(base, ".down"); isDown {
		base = rest
	} else {
		return f, false
	}

	date, rest, ok1 := strings.Cut(base, "_")
	clock, name, _ := strings.Cut(rest, "_")
	if !ok1 || date == "" || clock == "" {
		return migrationFile{}, false
	}
	f.version = date + "_" + clock
	f.name = name
	return f, true
}

// loadMigrations reads every migration in MigrationsDir, oldest first.
// A version with only a down file is ignored.
func loadMigrations() ([]Migration, error) {
	if MigrationsFS == nil {
		return nil, nil
	}
	entries, err := fs.ReadDir(MigrationsFS, MigrationsDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", MigrationsDir, err)
	}

	byVersion := make(map[string]*Migration)
	hasUp := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		f, ok := parseMigrationFilename(entry.Name())
		if !ok {
			continue
		}
		body, err := fs.ReadFile(MigrationsFS, path.Join(MigrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}

		m := byVersion[f.version]
		if m == nil {
			m = &Migration{Version: f.version}
			byVersion[f.version] = m
		}
		if f.up {
			m.Name, m.UpSQL = f.name, string(body)
			hasUp[f.version] = true
		} else {
			m.DownSQL = string(body)
		}
	}

	migrations := make([]Migration, 0, len(hasUp))
	for version := range hasUp {
		migrations = append(migrations, *byVersion[version])
	}
	slices.SortFunc(migrations, func(a, b Migration) int {
		return strings.Compare(a.Version, b.Version)
	})
	return migrations, nil
}
