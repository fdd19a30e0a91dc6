package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver ("pgx")
	_ "github.com/mattn/go-sqlite3"    // SQLite driver ("sqlite3")
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Database configuration constants.
const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600

	// msPerSecond converts seconds to milliseconds.
	msPerSecond = 1000

	// connectionTimeout is the timeout for verifying database connectivity.
	connectionTimeout = 5 * time.Second

	// connMaxIdleTime is how long idle connections are kept open.
	connMaxIdleTime = 30 * time.Minute

	// defaultPostgresMaxOpen bounds the pool for server databases.
	defaultPostgresMaxOpen = 10
)

// Logger receives the manager's operation log lines.
// Compatible with logging.Logger and *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// DB wraps a sql.DB pool with the connection/transaction manager, migration
// support and health checks.
//
// The connection string is fixed when the DB is opened; reconfiguring means
// opening another DB.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Each WithConnection/WithTransaction call owns its connection exclusively.
type DB struct {
	*sql.DB
	driver  string
	path    string
	connStr string
	pool    Pool

	hooksMu  sync.RWMutex
	logger   Logger
	observer Observer
}

// Config contains database configuration options.
// These map to the database section of config.yaml.
type Config struct {
	// Driver selects the database/sql driver: "sqlite3" (default) or "pgx".
	Driver string

	// ConnectionString is passed to the driver unchanged. For SQLite it may
	// be left empty, in which case one is built from Path.
	ConnectionString string

	// Path is the filesystem path to the SQLite database file.
	// The directory will be created if it doesn't exist.
	Path string

	// WALMode enables Write-Ahead Logging for better concurrent access (SQLite).
	WALMode bool

	// BusyTimeout is the maximum time to wait for a database lock (seconds, SQLite).
	BusyTimeout int

	// MaxOpenConns caps the pool. Zero selects 1 for SQLite (single writer)
	// and 10 for PostgreSQL.
	MaxOpenConns int

	// MaxIdleConns caps idle pooled connections. Zero keeps one.
	MaxIdleConns int

	// ConnMaxLifetime recycles connections older than this. Zero selects one hour.
	ConnMaxLifetime time.Duration
}

// ValidateConnectionString rejects an empty or whitespace-only connection string.
func ValidateConnectionString(s string) error {
	if strings.TrimSpace(s) == "" {
		return ErrEmptyConnectionString
	}
	return nil
}

// NormaliseDriver maps accepted driver aliases to a registered driver name.
func NormaliseDriver(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "pgx", "postgres", "postgresql":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDriver, name)
	}
}

// Open creates a new database pool with the specified configuration.
//
// It performs the following setup:
//  1. Resolves the driver and connection string (rejecting a blank one)
//  2. For SQLite files, creates the directory and applies WAL/busy-timeout pragmas
//  3. Configures the connection pool
//  4. Verifies the connection with a ping
//  5. Sets SQLite file permissions (0600)
//
// Parameters:
//   - ctx: Context bounding the connectivity check
//   - cfg: Database configuration
//
// Returns:
//   - *DB: Connected database wrapper
//   - error: If configuration is invalid or the connection fails
func Open(ctx context.Context, cfg Config) (*DB, error) {
	driver, err := NormaliseDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}

	connStr := cfg.ConnectionString
	if strings.TrimSpace(connStr) == "" && driver == DriverSQLite && cfg.Path != "" {
		// Ensure directory exists
		if mkErr := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); mkErr != nil {
			return nil, fmt.Errorf("creating database directory: %w", mkErr)
		}
		connStr = sqliteDSN(cfg)
	}
	if err := ValidateConnectionString(connStr); err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	configurePool(sqlDB, driver, cfg)

	db := newDB(sqlDB, driver, connStr)
	db.path = cfg.Path

	// Verify connection
	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	if driver == DriverSQLite && cfg.Path != "" {
		// Ignore error - the file may only appear after the first write
		_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // Intentional: first run creates file later
	}

	return db, nil
}

// newDB wraps an already opened pool.
func newDB(sqlDB *sql.DB, driver, connStr string) *DB {
	return &DB{
		DB:      sqlDB,
		driver:  driver,
		connStr: connStr,
		pool:    sqlPool{db: sqlDB},
	}
}

// sqliteDSN builds a go-sqlite3 connection string with pragmas.
// See: https://github.com/mattn/go-sqlite3#connection-string
func sqliteDSN(cfg Config) string {
	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path,
		cfg.BusyTimeout*msPerSecond,
	)
	if cfg.WALMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}
	return connStr
}

// configurePool applies pool limits appropriate to the driver.
func configurePool(sqlDB *sql.DB, driver string, cfg Config) {
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 1 // SQLite only supports one writer
		if driver == DriverPostgres {
			maxOpen = defaultPostgresMaxOpen
		}
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 1
	}
	lifetime := cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = time.Hour
	}

	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(lifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)
}

// Close closes the pool gracefully.
// It should be called when the application shuts down.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the SQLite database file, if any.
func (db *DB) Path() string {
	return db.path
}

// Driver returns the database/sql driver name in use.
func (db *DB) Driver() string {
	return db.driver
}

// ConnectionString returns the connection string the pool was opened with.
func (db *DB) ConnectionString() string {
	return db.connStr
}

// SetLogger sets the logger used for per-operation log lines.
// If not set, operations are not logged.
func (db *DB) SetLogger(logger Logger) {
	db.hooksMu.Lock()
	db.logger = logger
	db.hooksMu.Unlock()
}

// SetObserver sets the observer notified after every manager call.
func (db *DB) SetObserver(observer Observer) {
	db.hooksMu.Lock()
	db.observer = observer
	db.hooksMu.Unlock()
}

func (db *DB) hooks() (Logger, Observer) {
	db.hooksMu.RLock()
	defer db.hooksMu.RUnlock()
	return db.logger, db.observer
}

// HealthCheck verifies the database is accessible and functioning.
// It performs a simple query to ensure the connection is alive.
func (db *DB) HealthCheck(ctx context.Context) error {
	_, err := WithConnection(ctx, db, func(ctx context.Context, conn Conn) (int64, error) {
		return Scalar[int64](ctx, conn, "SELECT CAST(1 AS BIGINT)", nil)
	})
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Stats returns database connection pool statistics.
// Useful for monitoring and debugging connection issues.
func (db *DB) Stats() sql.DBStats {
	if db.DB == nil {
		return sql.DBStats{}
	}
	return db.DB.Stats()
}

// Placeholder returns the positional placeholder for the n-th (1-based)
// argument in the driver's syntax: "?" for SQLite, "$n" for PostgreSQL.
func (db *DB) Placeholder(n int) string {
	if db.driver == DriverPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}
