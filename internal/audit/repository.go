// Package audit records and queries the audit_logs table.
//
// Entries are written through a caller-supplied database.Querier so they can
// enlist in the same transaction as the change they describe.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/starterkit-core/internal/infrastructure/database"
)

// Actions recorded by StarterKit.
const (
	ActionUpdate  = "update"
	ActionReset   = "reset"
	ActionMigrate = "migrate"
)

// TimestampLayout is the fixed-width UTC layout stored in created_at so that
// text ordering matches time ordering.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Page size limits for List.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// ErrInvalidEntry is returned by Create when a required field is empty.
var ErrInvalidEntry = errors.New("audit: invalid entry")

// AuditLog represents a single audit trail entry.
type AuditLog struct { //nolint:revive // audit.AuditLog is clearer than audit.Log in calling code
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter controls which audit logs to return.
type Filter struct {
	Action     string // optional: filter by action (update, reset, migrate)
	EntityType string // optional: filter by entity type (setting, schema)
	EntityID   string // optional: filter by specific entity ID
	Limit      int    // default 50, max 200
	Offset     int    // pagination offset
}

// ListResult contains the paginated audit log results.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int64      `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Repository defines the interface for audit log operations.
type Repository interface {
	Create(ctx context.Context, q database.Querier, log *AuditLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLRepository stores audit logs through the database helper.
type SQLRepository struct {
	db *database.DB
}

var _ Repository = (*SQLRepository)(nil)

// NewSQLRepository creates a new audit log repository.
func NewSQLRepository(db *database.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

// Create inserts a new audit log entry using q, which may be a transaction.
// The ID and CreatedAt are generated if empty.
func (r *SQLRepository) Create(ctx context.Context, q database.Querier, log *AuditLog) error {
	if log == nil || log.Action == "" || log.EntityType == "" {
		return fmt.Errorf("%w: action and entity type are required", ErrInvalidEntry)
	}
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	if log.Source == "" {
		log.Source = "system"
	}

	var details any
	if log.Details != nil {
		b, err := json.Marshal(log.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		details = string(b)
	}

	query := fmt.Sprintf(
		`INSERT INTO audit_logs (id, action, entity_type, entity_id, source, details, created_at)
		 VALUES (%s)`, r.placeholders(1, 7))
	_, err := database.Execute(ctx, q, query, database.Args(
		log.ID, log.Action, log.EntityType,
		nullableString(log.EntityID),
		log.Source, details,
		log.CreatedAt.UTC().Format(TimestampLayout),
	))
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

// nullableString returns nil for empty strings, or the string otherwise.
// Used for nullable TEXT columns.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// placeholders returns a comma-separated placeholder list for arguments
// first..first+n-1.
func (r *SQLRepository) placeholders(first, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = r.db.Placeholder(first + i)
	}
	return strings.Join(ps, ", ")
}

// List returns audit logs matching the filter, ordered by most recent first.
func (r *SQLRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	filter = clamp(filter)

	var (
		conditions []string
		args       []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conditions = append(conditions, column+" = "+r.db.Placeholder(len(args)))
	}
	add("action", filter.Action)
	add("entity_type", filter.EntityType)
	add("entity_id", filter.EntityID)

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	return database.WithConnection(ctx, r.db, func(ctx context.Context, conn database.Conn) (*ListResult, error) {
		// WHERE is built from parameterised conditions, not user input.
		countQuery := "SELECT CAST(COUNT(*) AS BIGINT) FROM audit_logs " + where //nolint:gosec // parameterised
		total, err := database.Scalar[int64](ctx, conn, countQuery, database.Args(args...))
		if err != nil {
			return nil, fmt.Errorf("counting audit logs: %w", err)
		}

		query := fmt.Sprintf( //nolint:gosec // parameterised
			"SELECT id, action, entity_type, entity_id, source, details, created_at FROM audit_logs %s ORDER BY created_at DESC, id LIMIT %s OFFSET %s",
			where, r.db.Placeholder(len(args)+1), r.db.Placeholder(len(args)+2),
		)
		pageArgs := append(append([]any{}, args...), filter.Limit, filter.Offset)

		logs, err := database.QueryMany(ctx, conn, query, database.Args(pageArgs...), scanAuditLog)
		if err != nil {
			return nil, fmt.Errorf("querying audit logs: %w", err)
		}

		return &ListResult{
			Logs:   logs,
			Total:  total,
			Limit:  filter.Limit,
			Offset: filter.Offset,
		}, nil
	})
}

// clamp applies the default and maximum page size.
func clamp(f Filter) Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

func scanAuditLog(r *database.Row) (AuditLog, error) {
	var (
		log AuditLog
		err error
	)
	if log.ID, err = r.String("id"); err != nil {
		return log, err
	}
	if log.Action, err = r.String("action"); err != nil {
		return log, err
	}
	if log.EntityType, err = r.String("entity_type"); err != nil {
		return log, err
	}
	if log.Source, err = r.String("source"); err != nil {
		return log, err
	}
	if log.CreatedAt, err = r.Time("created_at"); err != nil {
		return log, err
	}

	entityID, err := r.OptString("entity_id")
	if err != nil {
		return log, err
	}
	log.EntityID = entityID.OrElse("")

	details, err := r.OptString("details")
	if err != nil {
		return log, err
	}
	if raw, ok := details.Get(); ok && raw != "" {
		var m map[string]any
		if json.Unmarshal([]byte(raw), &m) == nil {
			log.Details = m
		}
	}
	return log, nil
}
