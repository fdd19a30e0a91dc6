package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/starterkit-core/internal/api"
	"github.com/nerrad567/starterkit-core/internal/audit"
	"github.com/nerrad567/starterkit-core/internal/infrastructure/database"
	"github.com/nerrad567/starterkit-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/starterkit-core/internal/infrastructure/mqtt"
)

// poolStatsInterval is how often pool statistics are written to InfluxDB.
const poolStatsInterval = 30 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "run the HTTP API and telemetry integrations until interrupted",
		Action: withApp(true, serve),
	}
}

// serve wires the integrations around the database and blocks until ctx ends.
func serve(ctx context.Context, _ *cli.Command, a *app) error {
	log := a.log
	log.Info("starting StarterKit",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	if a.cfg.Database.AutoMigrate {
		if err := migrateUp(ctx, a, "serve"); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	var observers database.MultiObserver

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if a.cfg.MQTT.Enabled {
		var err error
		mqttClient, err = mqtt.Connect(a.cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT connected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		qos := byte(a.cfg.MQTT.QoS) //nolint:gosec // validated 0-2
		publisher := mqtt.NewOperationPublisher(mqttClient, mqttClient.Topics(), qos, a.cfg.App.Name)
		publisher.SetLogger(log)
		g.Go(func() error { return publisher.Run(gctx) })
		observers = append(observers, publisher)
		a.settings.AddNotifier(mqtt.NewSettingsNotifier(mqttClient, mqttClient.Topics(), qos, a.cfg.App.Name))

		log.Info("MQTT publishing enabled",
			"broker", fmt.Sprintf("%s:%d", a.cfg.MQTT.Broker.Host, a.cfg.MQTT.Broker.Port),
			"prefix", mqttClient.Topics().Prefix,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if a.cfg.InfluxDB.Enabled {
		var err error
		influxClient, err = influxdb.Connect(a.cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		observers = append(observers, influxClient)
		a.settings.AddNotifier(influxClient)
		g.Go(func() error { return writePoolStats(gctx, influxClient, a.db) })

		log.Info("InfluxDB connected",
			"url", a.cfg.InfluxDB.URL,
			"org", a.cfg.InfluxDB.Org,
			"bucket", a.cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	if len(observers) > 0 {
		a.db.SetObserver(observers)
		defer a.db.SetObserver(nil)
	}

	if err := a.settings.TouchLastOpened(ctx, "serve"); err != nil {
		log.Warn("recording last_opened failed", "error", err)
	}

	// Start HTTP API (optional)
	if a.cfg.API.Enabled {
		server, err := api.New(api.Deps{
			Config:   a.cfg.API,
			Logger:   log,
			DB:       a.db,
			Settings: a.settings,
			Audit:    a.audit,
			MQTT:     mqttClient,
			InfluxDB: influxClient,
			Version:  version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := server.Start(gctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-gctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order: API, InfluxDB, MQTT.
	// The database is closed by the caller.
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("StarterKit stopped")
	return nil
}

// writePoolStats records pool statistics until ctx is cancelled.
func writePoolStats(ctx context.Context, client *influxdb.Client, db *database.DB) error {
	ticker := time.NewTicker(poolStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			client.WritePoolStats(db)
		}
	}
}

// migrateUp applies pending migrations and records how many were applied.
func migrateUp(ctx context.Context, a *app, source string) error {
	_, before, err := a.db.GetMigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	if err := a.db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	if len(before) == 0 {
		a.log.Info("database schema up to date")
		return nil
	}

	versions := make([]string, len(before))
	for i, m := range before {
		versions[i] = m.Version
	}
	if err := a.audit.Create(ctx, a.db, &audit.AuditLog{
		Action:     audit.ActionMigrate,
		EntityType: "schema",
		EntityID:   versions[len(versions)-1],
		Source:     source,
		Details:    map[string]any{"applied": versions},
	}); err != nil {
		a.log.Warn("recording migration audit entry failed", "error", err)
	}
	a.log.Info("database migrations complete", "applied", len(versions))
	return nil
}
