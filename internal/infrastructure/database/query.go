package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
)

// Querier is implemented by *sql.DB, *sql.Conn, *sql.Tx and by the Conn and
// Tx handles passed to WithConnection and WithTransaction callbacks.
//
// Passing a Tx enlists the statement in that transaction.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Compile-time verification that the standard handles satisfy Querier.
var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Conn)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// RowMapper converts the current row into a value of type T.
type RowMapper[T any] func(r *Row) (T, error)

var errNilMapper = errors.New("database: row mapper is nil")

// QueryMany executes query and maps every row through mapper.
//
// Zero matching rows yield an empty, non-nil slice and a nil error. Any
// failure while executing, iterating or mapping (including a panic in
// mapper or bind) is returned as an error; the slice is nil in that case.
//
// Example:
//
//	names, err := database.QueryMany(ctx, db, `SELECT name FROM users WHERE active = :active`,
//	    func(cmd *database.Command) { cmd.Bind("active", true) },
//	    func(r *database.Row) (string, error) { return r.String("name") })
func QueryMany[T any](ctx context.Context, q Querier, query string, bind Binder, mapper RowMapper[T]) (out []T, err error) {
	const op = "query many"
	defer func() {
		if err != nil {
			out = nil
		}
	}()
	defer recoverInto(op, &err)

	if mapper == nil {
		return nil, fmt.Errorf("%s: %w", op, errNilMapper)
	}

	rows, err := openRows(ctx, q, query, bind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer closeRows(op, rows, &err)

	row, err := rowFor(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out = make([]T, 0)
	for rows.Next() {
		if scanErr := row.scan(rows); scanErr != nil {
			return nil, fmt.Errorf("%s: scanning row: %w", op, scanErr)
		}
		v, mapErr := mapper(row)
		if mapErr != nil {
			return nil, fmt.Errorf("%s: mapping row: %w", op, mapErr)
		}
		out = append(out, v)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("%s: iterating rows: %w", op, rowsErr)
	}
	return out, nil
}

// QuerySingle executes query and maps at most the first row.
//
// No matching row is not an error: the result is None. Rows after the
// first are discarded without being mapped.
func QuerySingle[T any](ctx context.Context, q Querier, query string, bind Binder, mapper RowMapper[T]) (out Optional[T], err error) {
	const op = "query single"
	defer func() {
		if err != nil {
			out = None[T]()
		}
	}()
	defer recoverInto(op, &err)

	if mapper == nil {
		return None[T](), fmt.Errorf("%s: %w", op, errNilMapper)
	}

	rows, err := openRows(ctx, q, query, bind)
	if err != nil {
		return None[T](), fmt.Errorf("%s: %w", op, err)
	}
	defer closeRows(op, rows, &err)

	if !rows.Next() {
		if rowsErr := rows.Err(); rowsErr != nil {
			return None[T](), fmt.Errorf("%s: iterating rows: %w", op, rowsErr)
		}
		return None[T](), nil
	}

	row, err := rowFor(rows)
	if err != nil {
		return None[T](), fmt.Errorf("%s: %w", op, err)
	}
	if scanErr := row.scan(rows); scanErr != nil {
		return None[T](), fmt.Errorf("%s: scanning row: %w", op, scanErr)
	}
	v, err := mapper(row)
	if err != nil {
		return None[T](), fmt.Errorf("%s: mapping row: %w", op, err)
	}
	return Some(v), nil
}

// Execute runs a statement that returns no rows (INSERT, UPDATE, DELETE, DDL)
// and returns the number of affected rows.
func Execute(ctx context.Context, q Querier, query string, bind Binder) (n int64, err error) {
	const op = "execute"
	defer recoverInto(op, &err)

	args, err := build(bind)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err = res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: reading affected rows: %w", op, err)
	}
	return n, nil
}

// Scalar executes query and returns the first column of the first row.
//
// The driver value must already have runtime type T; no conversion is
// attempted. A different type, a NULL value or an empty result set is
// reported as ErrTypeMismatch. With SQLite, integers arrive as int64,
// reals as float64 and text as string.
//
// Example:
//
//	count, err := database.Scalar[int64](ctx, db, `SELECT COUNT(*) FROM settings`, nil)
func Scalar[T any](ctx context.Context, q Querier, query string, bind Binder) (out T, err error) {
	const op = "scalar"
	defer func() {
		if err != nil {
			var zero T
			out = zero
		}
	}()
	defer recoverInto(op, &err)

	want := reflect.TypeFor[T]().String()

	rows, err := openRows(ctx, q, query, bind)
	if err != nil {
		return out, fmt.Errorf("%s: %w", op, err)
	}
	defer closeRows(op, rows, &err)

	if !rows.Next() {
		if rowsErr := rows.Err(); rowsErr != nil {
			return out, fmt.Errorf("%s: iterating rows: %w", op, rowsErr)
		}
		return out, fmt.Errorf("%s: %w: query returned no rows, want %s", op, ErrTypeMismatch, want)
	}

	row, err := rowFor(rows)
	if err != nil {
		return out, fmt.Errorf("%s: %w", op, err)
	}
	if len(row.values) == 0 {
		return out, fmt.Errorf("%s: %w: query returned no columns, want %s", op, ErrTypeMismatch, want)
	}
	if scanErr := row.scan(rows); scanErr != nil {
		return out, fmt.Errorf("%s: scanning row: %w", op, scanErr)
	}

	v, ok := row.values[0].(T)
	if !ok {
		return out, fmt.Errorf("%s: %w: got %T, want %s", op, ErrTypeMismatch, row.values[0], want)
	}
	return v, nil
}

// openRows builds the arguments and runs the query.
func openRows(ctx context.Context, q Querier, query string, bind Binder) (*sql.Rows, error) {
	args, err := build(bind)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// rowFor prepares a Row matching the result set's columns.
func rowFor(rows *sql.Rows) (*Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}
	return newRow(cols), nil
}

// closeRows closes rows and reports the close error if nothing failed earlier.
func closeRows(op string, rows *sql.Rows, err *error) {
	if cerr := rows.Close(); cerr != nil && *err == nil {
		*err = fmt.Errorf("%s: closing rows: %w", op, cerr)
	}
}

// recoverInto converts a panic in caller-supplied code into an error.
// It must be deferred directly.
func recoverInto(op string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%s: %w: %v", op, ErrPanic, r)
	}
}
