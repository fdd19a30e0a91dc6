package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/starterkit-core/internal/infrastructure/database"
)

// Measurement names written by this package.
const (
	MeasurementOperations = "db_operations"
	MeasurementSettings   = "settings_changes"
)

var _ database.Observer = (*Client)(nil)

// OperationPoint converts a manager event into a db_operations point.
//
// Tags: operation, outcome. Fields: duration_ms, success.
func OperationPoint(ev database.OperationEvent) *write.Point {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	return write.NewPoint(
		MeasurementOperations,
		map[string]string{
			"operation": ev.Operation,
			"outcome":   ev.Outcome,
		},
		map[string]any{
			"duration_ms": float64(ev.Duration) / float64(time.Millisecond),
			"success":     ev.Success(),
		},
		at,
	)
}

// ObserveOperation implements database.Observer. The write is batched and
// never blocks the caller.
func (c *Client) ObserveOperation(_ context.Context, ev database.OperationEvent) {
	c.write(OperationPoint(ev))
}

// SettingChanged records a setting change as a settings_changes point.
// The value itself is not stored; only which key changed and when.
func (c *Client) SettingChanged(_ context.Context, key, _ string) error {
	p := write.NewPoint(
		MeasurementSettings,
		map[string]string{"key": key},
		map[string]any{"count": 1},
		time.Now(),
	)
	if !c.write(p) {
		return ErrNotConnected
	}
	return nil
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Example:
//
//	client.WritePoint("pool_stats",
//	    map[string]string{"driver": "sqlite3"},
//	    map[string]any{"open_connections": 1, "in_use": 0})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	c.write(write.NewPoint(measurement, tags, fields, timestamp))
}

// WritePoolStats records connection pool statistics for db.
func (c *Client) WritePoolStats(db *database.DB) {
	stats := db.Stats()
	c.WritePoint("db_pool",
		map[string]string{"driver": db.Driver()},
		map[string]any{
			"open_connections": stats.OpenConnections,
			"in_use":           stats.InUse,
			"idle":             stats.Idle,
			"wait_count":       stats.WaitCount,
			"wait_duration_ms": float64(stats.WaitDuration) / float64(time.Millisecond),
		},
	)
}
