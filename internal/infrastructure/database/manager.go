package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Conn is a connection acquired from the pool for the duration of one
// WithConnection or WithTransaction call. It must not be retained after
// the callback returns.
type Conn interface {
	Querier
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error)
	Close() error
}

// Tx is an open transaction. Pass it as the Querier to enlist statements.
type Tx interface {
	Querier
	Commit() error
	Rollback() error
}

// Pool hands out exclusive connections. Capacity and reuse are the pool's
// concern; *sql.DB provides both.
type Pool interface {
	Conn(ctx context.Context) (Conn, error)
}

var _ Tx = (*sql.Tx)(nil)

// sqlPool adapts *sql.DB to Pool.
type sqlPool struct {
	db *sql.DB
}

func (p sqlPool) Conn(ctx context.Context) (Conn, error) {
	c, err := p.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return sqlConn{Conn: c}, nil
}

// sqlConn adapts *sql.Conn to Conn. Close returns it to the pool.
type sqlConn struct {
	*sql.Conn
}

func (c sqlConn) BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error) {
	tx, err := c.Conn.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// WithConnection acquires a connection, runs fn with it and releases it.
//
// The connection is returned to the pool on every path: success, error
// from fn, or panic in fn. Acquisition failures, errors and panics from fn,
// and close failures are all reported through the returned error; nothing
// panics out of WithConnection. Errors returned by fn are passed through
// unwrapped.
//
// Example:
//
//	n, err := database.WithConnection(ctx, db, func(ctx context.Context, conn database.Conn) (int64, error) {
//	    return database.Execute(ctx, conn, `DELETE FROM settings WHERE key = :key`,
//	        func(cmd *database.Command) { cmd.Bind("key", "theme") })
//	})
func WithConnection[T any](ctx context.Context, db *DB, fn func(ctx context.Context, conn Conn) (T, error)) (out T, err error) {
	const op = "with connection"
	start := time.Now()
	defer func() {
		if err != nil {
			var zero T
			out = zero
		}
		outcome := OutcomeOK
		if err != nil {
			outcome = OutcomeFailed
		}
		db.finish(ctx, OpWithConnection, outcome, start, err)
	}()

	if fn == nil {
		return out, fmt.Errorf("%s: callback is nil", op)
	}

	conn, err := db.acquire(ctx)
	if err != nil {
		return out, fmt.Errorf("%s: %w", op, err)
	}
	defer release(op, conn, &err)

	return invoke(ctx, conn, fn)
}

// WithTransaction runs fn inside a transaction on a dedicated connection.
//
// The transaction is committed when fn returns a nil error and rolled back
// otherwise, including when fn panics. Commit and rollback failures are
// reported through the returned error; a failed rollback is joined with the
// error that caused it. The connection is released afterwards on every path.
//
// Sequence: acquire → begin → fn → commit | rollback → close.
func WithTransaction[T any](ctx context.Context, db *DB, fn func(ctx context.Context, tx Tx) (T, error)) (T, error) {
	return WithTransactionOptions(ctx, db, nil, fn)
}

// WithTransactionOptions is WithTransaction with explicit isolation level
// and read-only settings.
func WithTransactionOptions[T any](ctx context.Context, db *DB, opts *sql.TxOptions, fn func(ctx context.Context, tx Tx) (T, error)) (out T, err error) {
	const op = "with transaction"
	start := time.Now()
	outcome := OutcomeFailed
	defer func() {
		if err != nil {
			var zero T
			out = zero
		}
		db.finish(ctx, OpWithTransaction, outcome, start, err)
	}()

	if fn == nil {
		return out, fmt.Errorf("%s: callback is nil", op)
	}

	conn, err := db.acquire(ctx)
	if err != nil {
		return out, fmt.Errorf("%s: %w", op, err)
	}
	defer release(op, conn, &err)

	tx, err := conn.BeginTx(ctx, opts)
	if err != nil {
		return out, fmt.Errorf("%s: beginning transaction: %w", op, err)
	}

	out, err = invoke(ctx, tx, fn)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return out, errors.Join(err, fmt.Errorf("%s: rolling back: %w", op, rbErr))
		}
		outcome = OutcomeRolledBack
		return out, err
	}

	if err = tx.Commit(); err != nil {
		return out, fmt.Errorf("%s: committing: %w", op, err)
	}
	outcome = OutcomeCommitted
	return out, nil
}

// invoke calls fn, converting a panic into ErrPanic.
func invoke[H, T any](ctx context.Context, h H, fn func(context.Context, H) (T, error)) (out T, err error) {
	defer recoverInto("callback", &err)
	return fn(ctx, h)
}

// release closes conn and records a close failure alongside any earlier error.
func release(op string, conn Conn, err *error) {
	cerr := conn.Close()
	if cerr == nil {
		return
	}
	cerr = fmt.Errorf("%s: closing connection: %w", op, cerr)
	if *err == nil {
		*err = cerr
		return
	}
	*err = errors.Join(*err, cerr)
}

// acquire takes a connection from the pool.
func (db *DB) acquire(ctx context.Context) (Conn, error) {
	if db == nil || db.pool == nil {
		return nil, ErrNotOpen
	}
	conn, err := db.pool.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	return conn, nil
}

// finish logs the outcome of a manager call and notifies the observer.
func (db *DB) finish(ctx context.Context, operation, outcome string, start time.Time, err error) {
	if db == nil {
		return
	}
	ev := OperationEvent{
		Operation: operation,
		Outcome:   outcome,
		Duration:  time.Since(start),
		Err:       err,
		At:        start.UTC(),
	}

	logger, observer := db.hooks()
	if logger != nil {
		if err != nil {
			logger.Warn("database operation failed",
				"operation", ev.Operation,
				"outcome", ev.Outcome,
				"duration_ms", ev.Duration.Milliseconds(),
				"error", err,
			)
		} else {
			logger.Debug("database operation complete",
				"operation", ev.Operation,
				"outcome", ev.Outcome,
				"duration_ms", ev.Duration.Milliseconds(),
			)
		}
	}
	if observer != nil {
		observer.ObserveOperation(ctx, ev)
	}
}
