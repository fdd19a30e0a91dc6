package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/starterkit-core/internal/audit"
	"github.com/nerrad567/starterkit-core/internal/infrastructure/config"
	"github.com/nerrad567/starterkit-core/internal/infrastructure/database"
)

// entityType is recorded in audit_logs for setting changes.
const entityType = "setting"

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Notifier is told about each committed change. The value is the new
// effective value; after Reset it is the default.
//
// Implemented by mqtt.SettingsNotifier and influxdb.Client.
type Notifier interface {
	SettingChanged(ctx context.Context, key, value string) error
}

// Store persists user preferences in the settings table.
//
// Reads fall back to configured defaults for keys that were never stored.
// Every write runs in one transaction together with its audit entry, and
// notifiers are called only after that transaction commits.
//
// All public methods are thread-safe.
type Store struct {
	db       *database.DB
	audit    audit.Repository
	defaults map[Key]string
	logger   Logger
	now      func() time.Time

	notifiersMu sync.RWMutex
	notifiers   []Notifier
}

// NewStore creates a settings store. Zero fields in defaults fall back to
// the built-in defaults; the rest must pass Normalise, so a default is always
// a value Set would accept.
func NewStore(db *database.DB, auditRepo audit.Repository, defaults config.SettingsConfig) (*Store, error) {
	values, err := defaultValues(defaults)
	if err != nil {
		return nil, fmt.Errorf("settings defaults: %w", err)
	}
	return &Store{
		db:       db,
		audit:    auditRepo,
		defaults: values,
		logger:   noopLogger{},
		now:      time.Now,
	}, nil
}

func defaultValues(cfg config.SettingsConfig) (map[Key]string, error) {
	or := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}
	orInt := func(v, def int) string {
		if v == 0 {
			v = def
		}
		return strconv.Itoa(v)
	}
	raw := map[Key]string{
		KeyTheme:           or(cfg.Theme, ThemeSystem),
		KeyLanguage:        or(cfg.Language, "en"),
		KeyWindowWidth:     orInt(cfg.WindowWidth, 1280), //nolint:mnd // default window size
		KeyWindowHeight:    orInt(cfg.WindowHeight, 800), //nolint:mnd // default window size
		KeyWindowMaximized: "false",
		KeyLastView:        or(cfg.LastView, "home"),
	}

	var errs []error
	values := make(map[Key]string, len(raw))
	for key, v := range raw {
		norm, err := Normalise(key, v)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		values[key] = norm
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return values, nil
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// AddNotifier registers n to be told about committed changes.
func (s *Store) AddNotifier(n Notifier) {
	if n == nil {
		return
	}
	s.notifiersMu.Lock()
	s.notifiers = append(s.notifiers, n)
	s.notifiersMu.Unlock()
}

// Default returns the default value for key. last_opened has none.
func (s *Store) Default(key Key) (string, bool) {
	v, ok := s.defaults[key]
	return v, ok
}

// Get returns the effective value of key.
func (s *Store) Get(ctx context.Context, key Key) (Value, error) {
	values, err := s.values(ctx, key)
	if err != nil {
		return Value{}, err
	}
	return values[0], nil
}

// Effective returns the effective value of every supported key.
func (s *Store) Effective(ctx context.Context) ([]Value, error) {
	return s.values(ctx, AllKeys()...)
}

// values reads keys over a single connection.
func (s *Store) values(ctx context.Context, keys ...Key) ([]Value, error) {
	for _, k := range keys {
		if _, err := ParseKey(string(k)); err != nil {
			return nil, err
		}
	}
	return database.WithConnection(ctx, s.db, func(ctx context.Context, conn database.Conn) ([]Value, error) {
		out := make([]Value, 0, len(keys))
		for _, k := range keys {
			stored, err := s.lookup(ctx, conn, k)
			if err != nil {
				return nil, err
			}
			if st, ok := stored.Get(); ok {
				out = append(out, Value{Key: k, Value: st.Value})
				continue
			}
			def, _ := s.Default(k)
			out = append(out, Value{Key: k, Value: def, Default: true})
		}
		return out, nil
	})
}

// All returns every stored setting ordered by key. Keys never stored are omitted.
func (s *Store) All(ctx context.Context) ([]Setting, error) {
	return database.WithConnection(ctx, s.db, func(ctx context.Context, conn database.Conn) ([]Setting, error) {
		rows, err := database.QueryMany(ctx, conn,
			`SELECT key, value, updated_at FROM settings ORDER BY key`, nil, scanSetting)
		if err != nil {
			return nil, fmt.Errorf("listing settings: %w", err)
		}
		return rows, nil
	})
}

// Set validates value, stores it and records an audit entry in one
// transaction. An unchanged value is not written again.
func (s *Store) Set(ctx context.Context, key Key, value, source string) (Setting, error) {
	out, err := s.SetMany(ctx, map[Key]string{key: value}, source)
	if err != nil {
		return Setting{}, err
	}
	return out[0], nil
}

// SetMany validates and stores several values atomically: either all are
// written (with their audit entries) or none are. Results follow AllKeys order.
func (s *Store) SetMany(ctx context.Context, values map[Key]string, source string) ([]Setting, error) {
	type change struct {
		key   Key
		value string
	}
	var changes []change
	for _, k := range AllKeys() {
		raw, ok := values[k]
		if !ok {
			continue
		}
		v, err := Normalise(k, raw)
		if err != nil {
			return nil, err
		}
		changes = append(changes, change{key: k, value: v})
	}
	if len(changes) != len(values) {
		for k := range values {
			if _, err := ParseKey(string(k)); err != nil {
				return nil, err
			}
		}
	}
	if len(changes) == 0 {
		return []Setting{}, nil
	}

	now := s.now().UTC()
	var changed []Setting
	out, err := database.WithTransaction(ctx, s.db, func(ctx context.Context, tx database.Tx) ([]Setting, error) {
		result := make([]Setting, 0, len(changes))
		for _, c := range changes {
			prev, err := s.lookup(ctx, tx, c.key)
			if err != nil {
				return nil, err
			}
			if p, ok := prev.Get(); ok && p.Value == c.value {
				result = append(result, p)
				continue
			}

			st := Setting{Key: c.key, Value: c.value, UpdatedAt: now}
			if err := s.upsert(ctx, tx, st); err != nil {
				return nil, err
			}

			details := map[string]any{"value": c.value}
			if p, ok := prev.Get(); ok {
				details["previous"] = p.Value
			}
			if err := s.audit.Create(ctx, tx, &audit.AuditLog{
				Action:     audit.ActionUpdate,
				EntityType: entityType,
				EntityID:   string(c.key),
				Source:     source,
				Details:    details,
				CreatedAt:  now,
			}); err != nil {
				return nil, err
			}
			result = append(result, st)
			changed = append(changed, st)
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}

	for _, st := range changed {
		s.logger.Info("setting changed", "key", st.Key, "source", source)
		s.notify(ctx, st.Key, st.Value)
	}
	return out, nil
}

// Reset deletes the stored value for key so the default applies again.
// It reports whether a stored value existed.
func (s *Store) Reset(ctx context.Context, key Key, source string) (bool, error) {
	if _, err := ParseKey(string(key)); err != nil {
		return false, err
	}

	now := s.now().UTC()
	removed, err := database.WithTransaction(ctx, s.db, func(ctx context.Context, tx database.Tx) (bool, error) {
		prev, err := s.lookup(ctx, tx, key)
		if err != nil {
			return false, err
		}
		p, ok := prev.Get()
		if !ok {
			return false, nil
		}

		query := "DELETE FROM settings WHERE key = " + s.db.Placeholder(1)
		if _, err := database.Execute(ctx, tx, query, database.Args(string(key))); err != nil {
			return false, fmt.Errorf("deleting setting %s: %w", key, err)
		}
		return true, s.audit.Create(ctx, tx, &audit.AuditLog{
			Action:     audit.ActionReset,
			EntityType: entityType,
			EntityID:   string(key),
			Source:     source,
			Details:    map[string]any{"previous": p.Value},
			CreatedAt:  now,
		})
	})
	if err != nil {
		return false, err
	}

	if removed {
		def, _ := s.Default(key)
		s.logger.Info("setting reset", "key", key, "source", source)
		s.notify(ctx, key, def)
	}
	return removed, nil
}

// lookup reads the stored row for key through q.
func (s *Store) lookup(ctx context.Context, q database.Querier, key Key) (database.Optional[Setting], error) {
	query := "SELECT key, value, updated_at FROM settings WHERE key = " + s.db.Placeholder(1)
	st, err := database.QuerySingle(ctx, q, query, database.Args(string(key)), scanSetting)
	if err != nil {
		return st, fmt.Errorf("reading setting %s: %w", key, err)
	}
	return st, nil
}

func (s *Store) upsert(ctx context.Context, q database.Querier, st Setting) error {
	query := fmt.Sprintf(
		`INSERT INTO settings (key, value, updated_at) VALUES (%s, %s, %s)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.db.Placeholder(1), s.db.Placeholder(2), s.db.Placeholder(3))
	_, err := database.Execute(ctx, q, query,
		database.Args(string(st.Key), st.Value, st.UpdatedAt.Format(time.RFC3339Nano)))
	if err != nil {
		return fmt.Errorf("storing setting %s: %w", st.Key, err)
	}
	return nil
}

// notify calls every notifier. Failures are logged; the change is already committed.
func (s *Store) notify(ctx context.Context, key Key, value string) {
	s.notifiersMu.RLock()
	notifiers := append([]Notifier(nil), s.notifiers...)
	s.notifiersMu.RUnlock()

	for _, n := range notifiers {
		if err := n.SettingChanged(ctx, string(key), value); err != nil {
			s.logger.Warn("setting change notification failed", "key", key, "error", err)
		}
	}
}

func scanSetting(r *database.Row) (Setting, error) {
	key, err := r.String("key")
	if err != nil {
		return Setting{}, err
	}
	value, err := r.String("value")
	if err != nil {
		return Setting{}, err
	}
	updated, err := r.Time("updated_at")
	if err != nil {
		return Setting{}, err
	}
	return Setting{Key: Key(key), Value: value, UpdatedAt: updated}, nil
}
