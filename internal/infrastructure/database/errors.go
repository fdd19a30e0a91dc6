package database

import "errors"

// Sentinel errors for database operations.
//
// Every executor and manager function reports failure through its error
// return; these values exist so callers can branch with errors.Is:
//
//	if errors.Is(err, database.ErrTypeMismatch) {
//	    // Handle unexpected column type
//	}
var (
	// ErrEmptyConnectionString is returned when the configured connection
	// string is empty or contains only whitespace.
	ErrEmptyConnectionString = errors.New("database: connection string is empty")

	// ErrNotOpen is returned when an operation runs on a DB that was never
	// opened or has been closed.
	ErrNotOpen = errors.New("database: not open")

	// ErrUnsupportedDriver is returned when Config.Driver names a driver
	// this package does not register.
	ErrUnsupportedDriver = errors.New("database: unsupported driver")

	// ErrColumnNotFound is returned when a Row accessor names a column the
	// result set does not contain.
	ErrColumnNotFound = errors.New("database: column not found")

	// ErrNullValue is returned by a required Row accessor when the column
	// value is database NULL.
	ErrNullValue = errors.New("database: unexpected NULL value")

	// ErrTypeMismatch is returned when a value cannot be read as the
	// requested Go type.
	ErrTypeMismatch = errors.New("database: type mismatch")

	// ErrInvalidParameter is returned when a Binder attaches a parameter
	// without a name.
	ErrInvalidParameter = errors.New("database: invalid parameter")

	// ErrPanic wraps a panic recovered from caller-supplied logic (row
	// mappers, binders, WithConnection/WithTransaction callbacks).
	ErrPanic = errors.New("database: recovered panic")
)
