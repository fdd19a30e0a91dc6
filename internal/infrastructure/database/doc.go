// Package database provides transactional database access for StarterKit Core.
//
// This package manages:
//   - Opening a pool for SQLite (go-sqlite3) or PostgreSQL (pgx)
//   - Scoped connection and transaction lifetimes (WithConnection, WithTransaction)
//   - Query execution with typed row mapping (QueryMany, QuerySingle, Execute, Scalar)
//   - Typed, null-aware column access (Row, Optional)
//   - Schema migrations
//
// Error Handling:
//
// No function in this package panics into the caller. Driver failures,
// mapping failures and panics raised by caller-supplied mappers, binders
// or callbacks are all returned as errors. The sentinel errors in errors.go
// can be matched with errors.Is.
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - SQLite database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: "./data/starterkit.db", WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	theme, err := database.WithConnection(ctx, db, func(ctx context.Context, conn database.Conn) (database.Optional[string], error) {
//	    return database.QuerySingle(ctx, conn, `SELECT value FROM settings WHERE key = :key`,
//	        func(cmd *database.Command) { cmd.Bind("key", "theme") },
//	        func(r *database.Row) (string, error) { return r.String("value") })
//	})
//
// Migration Strategy:
//
// Migrations are embedded SQL files named YYYYMMDD_HHMMSS_description.up.sql
// with a matching .down.sql. Each one is applied in its own transaction.
package database
