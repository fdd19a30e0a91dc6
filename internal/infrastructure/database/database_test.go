package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestOpen verifies database connection establishment.
func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("creates file and parent directories", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "data", "nested", "app.db")

		db, err := Open(ctx, Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		info, err := os.Stat(dbPath)
		if err != nil {
			t.Fatalf("database file not created: %v", err)
		}
		if perm := info.Mode().Perm(); perm != filePermissions {
			t.Errorf("file mode = %o, want %o", perm, filePermissions)
		}
		dirInfo, err := os.Stat(filepath.Dir(dbPath))
		if err != nil || !dirInfo.IsDir() {
			t.Fatalf("database directory not created: %v", err)
		}
	})

	t.Run("returns path driver and connection string", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")

		db, err := Open(ctx, Config{
			Driver:      "sqlite",
			Path:        dbPath,
			WALMode:     true,
			BusyTimeout: 5,
		})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		if db.Path() != dbPath {
			t.Errorf("Path() = %v, want %v", db.Path(), dbPath)
		}
		if db.Driver() != DriverSQLite {
			t.Errorf("Driver() = %v, want %v", db.Driver(), DriverSQLite)
		}
		if db.ConnectionString() != sqliteDSN(Config{Path: dbPath, WALMode: true, BusyTimeout: 5}) {
			t.Errorf("ConnectionString() = %q", db.ConnectionString())
		}
	})

	t.Run("uses explicit connection string", func(t *testing.T) {
		dsn := "file:" + filepath.Join(t.TempDir(), "explicit.db") + "?_foreign_keys=on"

		db, err := Open(ctx, Config{ConnectionString: dsn})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		if db.ConnectionString() != dsn {
			t.Errorf("ConnectionString() = %q, want %q", db.ConnectionString(), dsn)
		}
	})

	t.Run("rejects blank connection string", func(t *testing.T) {
		for _, cs := range []string{"", "   ", "\t\n"} {
			_, err := Open(ctx, Config{ConnectionString: cs})
			if !errors.Is(err, ErrEmptyConnectionString) {
				t.Errorf("Open(%q) error = %v, want ErrEmptyConnectionString", cs, err)
			}
		}
	})

	t.Run("rejects blank postgres connection string", func(t *testing.T) {
		_, err := Open(ctx, Config{Driver: "postgres", Path: "/ignored.db"})
		if !errors.Is(err, ErrEmptyConnectionString) {
			t.Errorf("Open() error = %v, want ErrEmptyConnectionString", err)
		}
	})

	t.Run("rejects unknown driver", func(t *testing.T) {
		_, err := Open(ctx, Config{Driver: "oracle", ConnectionString: "x"})
		if !errors.Is(err, ErrUnsupportedDriver) {
			t.Errorf("Open() error = %v, want ErrUnsupportedDriver", err)
		}
	})
}

func TestValidateConnectionString(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"empty", "", true},
		{"spaces", "    ", true},
		{"tabs and newlines", "\t\r\n", true},
		{"sqlite file", "file:test.db", false},
		{"postgres url", "postgres://user@localhost:5432/app", false},
		{"padded", "  host=localhost  ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConnectionString(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateConnectionString(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrEmptyConnectionString) {
				t.Errorf("error = %v, want ErrEmptyConnectionString", err)
			}
		})
	}
}

func TestNormaliseDriver(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"", DriverSQLite, false},
		{"sqlite", DriverSQLite, false},
		{"SQLite3", DriverSQLite, false},
		{"pgx", DriverPostgres, false},
		{"postgres", DriverPostgres, false},
		{" PostgreSQL ", DriverPostgres, false},
		{"mysql", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormaliseDriver(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormaliseDriver(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormaliseDriver(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestHealthCheckClosed(t *testing.T) {
	db := openTestDB(t)
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := db.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() on closed DB error = nil, want error")
	}
}

func TestClose(t *testing.T) {
	db := openTestDB(t)
	if err := db.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	var unopened DB
	if err := unopened.Close(); err != nil {
		t.Errorf("Close() on unopened DB error = %v", err)
	}

	_, err := WithConnection(context.Background(), &unopened, func(context.Context, Conn) (int, error) {
		return 1, nil
	})
	if !errors.Is(err, ErrNotOpen) {
		t.Errorf("WithConnection() on unopened DB error = %v, want ErrNotOpen", err)
	}
}

func TestStats(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	stats := db.Stats()
	if stats.MaxOpenConnections != 1 {
		t.Errorf("MaxOpenConnections = %v, want 1 (SQLite single writer)", stats.MaxOpenConnections)
	}

	var nilDB DB
	if got := nilDB.Stats(); got.MaxOpenConnections != 0 {
		t.Errorf("Stats() on unopened DB = %+v, want zero", got)
	}
}

func TestPlaceholder(t *testing.T) {
	sqlite := &DB{driver: DriverSQLite}
	pg := &DB{driver: DriverPostgres}

	if got := sqlite.Placeholder(3); got != "?" {
		t.Errorf("sqlite Placeholder(3) = %q, want ?", got)
	}
	if got := pg.Placeholder(3); got != "$3" {
		t.Errorf("postgres Placeholder(3) = %q, want $3", got)
	}
}

// openTestDB creates a temporary database for testing.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(context.Background(), Config{
		Path:        dbPath,
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	return db
}

// execTestSQL runs setup statements on a dedicated connection.
func execTestSQL(t *testing.T, db *DB, stmts ...string) {
	t.Helper()

	ctx := context.Background()
	for _, stmt := range stmts {
		_, err := WithConnection(ctx, db, func(ctx context.Context, conn Conn) (int64, error) {
			return Execute(ctx, conn, stmt, nil)
		})
		if err != nil {
			t.Fatalf("setup %q error = %v", stmt, err)
		}
	}
}
