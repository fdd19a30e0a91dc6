// Package settings stores StarterKit user preferences.
//
// The supported keys are fixed: theme, language, window_width,
// window_height, window_maximized, last_view and last_opened. Values are
// stored as text in the settings table and validated per key before they
// are written. Keys that were never stored read as their configured default.
//
// Each change is written in one transaction with a matching audit_logs
// entry. Registered notifiers (MQTT, InfluxDB) are told about the change
// once that transaction has committed.
//
// Usage:
//
//	store, err := settings.NewStore(db, audit.NewSQLRepository(db), cfg.Settings)
//	if err != nil {
//	    return err
//	}
//	store.AddNotifier(mqttNotifier)
//	if err := store.SetTheme(ctx, settings.ThemeDark, "cli"); err != nil {
//	    return err
//	}
package settings
