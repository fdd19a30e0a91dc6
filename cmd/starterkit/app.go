package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/nerrad567/starterkit-core/internal/audit"
	"github.com/nerrad567/starterkit-core/internal/infrastructure/config"
	"github.com/nerrad567/starterkit-core/internal/infrastructure/database"
	"github.com/nerrad567/starterkit-core/internal/infrastructure/logging"
	"github.com/nerrad567/starterkit-core/internal/settings"
)

// app holds the components shared by every command.
type app struct {
	cfg      *config.Config
	log      *logging.Logger
	db       *database.DB
	audit    *audit.SQLRepository
	settings *settings.Store
}

// openApp loads configuration, initialises logging and opens the database.
//
// Commands other than serve log to stderr so their output stays clean.
func openApp(ctx context.Context, cmd *cli.Command, serving bool) (*app, error) {
	configPath := cmd.String("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logCfg := cfg.Logging
	if !serving && logCfg.Output == "stdout" {
		logCfg.Output = "stderr"
	}
	log := logging.New(logCfg, version)
	log.Debug("configuration loaded", "path", configPath)

	db, err := database.Open(ctx, database.Config{
		Driver:           cfg.Database.Driver,
		ConnectionString: cfg.Database.ConnectionString,
		Path:             cfg.Database.Path,
		WALMode:          cfg.Database.WALMode,
		BusyTimeout:      cfg.Database.BusyTimeout,
		MaxOpenConns:     cfg.Database.MaxOpenConns,
		MaxIdleConns:     cfg.Database.MaxIdleConns,
		ConnMaxLifetime:  cfg.Database.MaxLifetime(),
	})
	if err != nil {
		log.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetLogger(log)
	log.Debug("database connected", "driver", db.Driver(), "path", db.Path())

	auditRepo := audit.NewSQLRepository(db)
	store, err := settings.NewStore(db, auditRepo, cfg.Settings)
	if err != nil {
		db.Close()  //nolint:errcheck // Best effort cleanup on error path
		log.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}
	store.SetLogger(log)

	return &app{
		cfg:      cfg,
		log:      log,
		db:       db,
		audit:    auditRepo,
		settings: store,
	}, nil
}

// Close releases the database and log file.
func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Error("error closing database", "error", err)
	}
	a.log.Close() //nolint:errcheck // Nothing useful to do at exit
}

// withApp wraps a command action with openApp/Close.
func withApp(serving bool, action func(ctx context.Context, cmd *cli.Command, a *app) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		a, err := openApp(ctx, cmd, serving)
		if err != nil {
			return err
		}
		defer a.Close()
		return action(ctx, cmd, a)
	}
}
