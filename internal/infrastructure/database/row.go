package database

import (
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// timeLayouts are tried in order when a time column arrives as text.
// SQLite stores timestamps as TEXT; CURRENT_TIMESTAMP uses the space form.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// Row reads typed values from the current row of a result set by column name.
//
// A Row is only valid inside the RowMapper it was passed to; the executor
// reuses it for the next row once the mapper returns.
//
// Required accessors (String, Int64, ...) fail with ErrNullValue when the
// column is NULL and with ErrTypeMismatch when the driver value cannot be
// converted. Optional accessors (OptString, OptInt64, ...) return None for
// NULL and never fail on it.
type Row struct {
	columns []string
	index   map[string]int
	folded  map[string]int
	values  []any
	dest    []any
}

// newRow prepares a Row for a result set with the given columns.
// The first occurrence wins when a column name repeats.
func newRow(columns []string) *Row {
	r := &Row{
		columns: columns,
		index:   make(map[string]int, len(columns)),
		folded:  make(map[string]int, len(columns)),
		values:  make([]any, len(columns)),
		dest:    make([]any, len(columns)),
	}
	for i, name := range columns {
		if _, dup := r.index[name]; !dup {
			r.index[name] = i
		}
		lower := strings.ToLower(name)
		if _, dup := r.folded[lower]; !dup {
			r.folded[lower] = i
		}
		r.dest[i] = &r.values[i]
	}
	return r
}

// scan loads the current row of rows into r.
func (r *Row) scan(rows *sql.Rows) error {
	for i := range r.values {
		r.values[i] = nil
	}
	return rows.Scan(r.dest...)
}

// Columns returns the column names of the result set in order.
func (r *Row) Columns() []string {
	return r.columns
}

// Value returns the raw driver value of a column (nil for NULL).
func (r *Row) Value(name string) (any, error) {
	return r.lookup(name)
}

// IsNull reports whether a column holds database NULL.
func (r *Row) IsNull(name string) (bool, error) {
	v, err := r.lookup(name)
	if err != nil {
		return false, err
	}
	return v == nil, nil
}

// lookup finds a column by exact name, then case-insensitively.
func (r *Row) lookup(name string) (any, error) {
	i, ok := r.index[name]
	if !ok {
		i, ok = r.folded[strings.ToLower(name)]
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	return r.values[i], nil
}

// required returns a column's non-NULL value.
func (r *Row) required(name string) (any, error) {
	v, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("%w: column %q", ErrNullValue, name)
	}
	return v, nil
}

func mismatch(name, want string, got any) error {
	return fmt.Errorf("%w: column %q: cannot read %T as %s", ErrTypeMismatch, name, got, want)
}

// String reads a text column.
func (r *Row) String(name string) (string, error) {
	v, err := r.required(name)
	if err != nil {
		return "", err
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	default:
		return "", mismatch(name, "string", v)
	}
}

// Int32 reads an integer column that must fit in 32 bits.
func (r *Row) Int32(name string) (int32, error) {
	v, err := r.required(name)
	if err != nil {
		return 0, err
	}
	n, ok := toInt64(v)
	if !ok {
		return 0, mismatch(name, "int32", v)
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, fmt.Errorf("%w: column %q: value %d overflows int32", ErrTypeMismatch, name, n)
	}
	return int32(n), nil
}

// Int64 reads an integer column.
func (r *Row) Int64(name string) (int64, error) {
	v, err := r.required(name)
	if err != nil {
		return 0, err
	}
	n, ok := toInt64(v)
	if !ok {
		return 0, mismatch(name, "int64", v)
	}
	return n, nil
}

// Bool reads a boolean column. Integer storage (SQLite) maps non-zero to true.
func (r *Row) Bool(name string) (bool, error) {
	v, err := r.required(name)
	if err != nil {
		return false, err
	}
	if b, ok := v.(bool); ok {
		return b, nil
	}
	if n, ok := toInt64(v); ok {
		return n != 0, nil
	}
	return false, mismatch(name, "bool", v)
}

// Time reads a timestamp column stored natively or as text.
func (r *Row) Time(name string) (time.Time, error) {
	v, err := r.required(name)
	if err != nil {
		return time.Time{}, err
	}
	var text string
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		text = x
	case []byte:
		text = string(x)
	default:
		return time.Time{}, mismatch(name, "time.Time", v)
	}
	for _, layout := range timeLayouts {
		if t, perr := time.Parse(layout, text); perr == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: column %q: %q is not a recognised timestamp", ErrTypeMismatch, name, text)
}

// UUID reads a UUID column stored as 16 raw bytes or in textual form.
func (r *Row) UUID(name string) (uuid.UUID, error) {
	v, err := r.required(name)
	if err != nil {
		return uuid.Nil, err
	}
	var (
		id   uuid.UUID
		perr error
	)
	switch x := v.(type) {
	case uuid.UUID:
		return x, nil
	case [16]byte:
		return uuid.UUID(x), nil
	case []byte:
		if len(x) == len(id) {
			id, perr = uuid.FromBytes(x)
		} else {
			id, perr = uuid.ParseBytes(x)
		}
	case string:
		id, perr = uuid.Parse(x)
	default:
		return uuid.Nil, mismatch(name, "uuid.UUID", v)
	}
	if perr != nil {
		return uuid.Nil, fmt.Errorf("%w: column %q: %w", ErrTypeMismatch, name, perr)
	}
	return id, nil
}

// Decimal reads a numeric column as an arbitrary-precision decimal.
func (r *Row) Decimal(name string) (decimal.Decimal, error) {
	v, err := r.required(name)
	if err != nil {
		return decimal.Zero, err
	}
	if n, ok := toInt64(v); ok {
		return decimal.NewFromInt(n), nil
	}
	var text string
	switch x := v.(type) {
	case float64:
		return decimal.NewFromFloat(x), nil
	case float32:
		return decimal.NewFromFloat32(x), nil
	case string:
		text = x
	case []byte:
		text = string(x)
	default:
		return decimal.Zero, mismatch(name, "decimal.Decimal", v)
	}
	d, perr := decimal.NewFromString(strings.TrimSpace(text))
	if perr != nil {
		return decimal.Zero, fmt.Errorf("%w: column %q: %w", ErrTypeMismatch, name, perr)
	}
	return d, nil
}

// Float64 reads a floating point column; integer values are widened.
func (r *Row) Float64(name string) (float64, error) {
	v, err := r.required(name)
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	}
	if n, ok := toInt64(v); ok {
		return float64(n), nil
	}
	return 0, mismatch(name, "float64", v)
}

// Bytes reads a binary column.
func (r *Row) Bytes(name string) ([]byte, error) {
	v, err := r.required(name)
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	default:
		return nil, mismatch(name, "[]byte", v)
	}
}

// OptString reads a nullable text column.
func (r *Row) OptString(name string) (Optional[string], error) {
	return optional(r, name, r.String)
}

// OptInt32 reads a nullable 32-bit integer column.
func (r *Row) OptInt32(name string) (Optional[int32], error) {
	return optional(r, name, r.Int32)
}

// OptInt64 reads a nullable integer column.
func (r *Row) OptInt64(name string) (Optional[int64], error) {
	return optional(r, name, r.Int64)
}

// OptBool reads a nullable boolean column.
func (r *Row) OptBool(name string) (Optional[bool], error) {
	return optional(r, name, r.Bool)
}

// OptTime reads a nullable timestamp column.
func (r *Row) OptTime(name string) (Optional[time.Time], error) {
	return optional(r, name, r.Time)
}

// OptUUID reads a nullable UUID column.
func (r *Row) OptUUID(name string) (Optional[uuid.UUID], error) {
	return optional(r, name, r.UUID)
}

// OptDecimal reads a nullable numeric column.
func (r *Row) OptDecimal(name string) (Optional[decimal.Decimal], error) {
	return optional(r, name, r.Decimal)
}

// OptFloat64 reads a nullable floating point column.
func (r *Row) OptFloat64(name string) (Optional[float64], error) {
	return optional(r, name, r.Float64)
}

// OptBytes reads a nullable binary column.
func (r *Row) OptBytes(name string) (Optional[[]byte], error) {
	return optional(r, name, r.Bytes)
}

// optional returns None for NULL, otherwise Some of the required accessor.
func optional[T any](r *Row, name string, read func(string) (T, error)) (Optional[T], error) {
	v, err := r.lookup(name)
	if err != nil {
		return None[T](), err
	}
	if v == nil {
		return None[T](), nil
	}
	x, err := read(name)
	if err != nil {
		return None[T](), err
	}
	return Some(x), nil
}

// toInt64 converts any Go integer kind without loss.
func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int16:
		return int64(x), true
	case int8:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	default:
		return 0, false
	}
}
