package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/nerrad567/starterkit-core/internal/audit"
	"github.com/nerrad567/starterkit-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/starterkit-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/starterkit-core/internal/settings"
)

// sourceCLI is recorded as the audit source for changes made from the CLI.
const sourceCLI = "cli"

// healthTimeout bounds each component check made by `health`.
const healthTimeout = 5 * time.Second

var errUsage = errors.New("invalid arguments")

func out(cmd *cli.Command) io.Writer {
	return cmd.Root().Writer
}

// args returns exactly n positional arguments or a usage error.
func args(cmd *cli.Command, n int) ([]string, error) {
	if cmd.Args().Len() != n {
		return nil, fmt.Errorf("%w: %s expects %d argument(s): %s", errUsage, cmd.Name, n, cmd.ArgsUsage)
	}
	return cmd.Args().Slice(), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ─── migrate ───────────────────────────────────────────────────────

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "manage the database schema",
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply all pending migrations",
				Action: withApp(false, func(ctx context.Context, cmd *cli.Command, a *app) error {
					if err := migrateUp(ctx, a, sourceCLI); err != nil {
						return err
					}
					fmt.Fprintln(out(cmd), "migrations applied")
					return nil
				}),
			},
			{
				Name:  "down",
				Usage: "roll back the most recent migration",
				Action: withApp(false, func(ctx context.Context, cmd *cli.Command, a *app) error {
					if err := a.db.MigrateDown(ctx); err != nil {
						return fmt.Errorf("rolling back migration: %w", err)
					}
					fmt.Fprintln(out(cmd), "rolled back one migration")
					return nil
				}),
			},
			{
				Name:  "status",
				Usage: "list applied and pending migrations",
				Action: withApp(false, func(ctx context.Context, cmd *cli.Command, a *app) error {
					applied, pending, err := a.db.GetMigrationStatus(ctx)
					if err != nil {
						return fmt.Errorf("reading migration status: %w", err)
					}
					tw := tabwriter.NewWriter(out(cmd), 0, 0, 2, ' ', 0)
					for _, m := range applied {
						fmt.Fprintf(tw, "applied\t%s\t%s\n", m.Version, m.AppliedAt.Format(time.RFC3339))
					}
					for _, m := range pending {
						fmt.Fprintf(tw, "pending\t%s\t%s\n", m.Version, m.Name)
					}
					return tw.Flush()
				}),
			},
		},
	}
}

// ─── settings ──────────────────────────────────────────────────────

func settingsCommand() *cli.Command {
	jsonFlag := &cli.BoolFlag{Name: "json", Usage: "print JSON instead of a table"}

	return &cli.Command{
		Name:  "settings",
		Usage: "read and change stored preferences",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "show the effective value of every setting",
				Flags: []cli.Flag{
					jsonFlag,
					&cli.BoolFlag{Name: "stored", Usage: "only show settings that have been stored"},
				},
				Action: withApp(false, func(ctx context.Context, cmd *cli.Command, a *app) error {
					if cmd.Bool("stored") {
						stored, err := a.settings.All(ctx)
						if err != nil {
							return err
						}
						if cmd.Bool("json") {
							return writeJSON(out(cmd), stored)
						}
						tw := tabwriter.NewWriter(out(cmd), 0, 0, 2, ' ', 0)
						for _, st := range stored {
							fmt.Fprintf(tw, "%s\t%s\t%s\n", st.Key, st.Value, st.UpdatedAt.Format(time.RFC3339))
						}
						return tw.Flush()
					}

					values, err := a.settings.Effective(ctx)
					if err != nil {
						return err
					}
					if cmd.Bool("json") {
						return writeJSON(out(cmd), values)
					}
					tw := tabwriter.NewWriter(out(cmd), 0, 0, 2, ' ', 0)
					for _, v := range values {
						marker := ""
						if v.Default {
							marker = "(default)"
						}
						fmt.Fprintf(tw, "%s\t%s\t%s\n", v.Key, v.Value, marker)
					}
					return tw.Flush()
				}),
			},
			{
				Name:      "get",
				Usage:     "print the effective value of one setting",
				ArgsUsage: "<key>",
				Action: withApp(false, func(ctx context.Context, cmd *cli.Command, a *app) error {
					argv, err := args(cmd, 1)
					if err != nil {
						return err
					}
					key, err := settings.ParseKey(argv[0])
					if err != nil {
						return err
					}
					v, err := a.settings.Get(ctx, key)
					if err != nil {
						return err
					}
					fmt.Fprintln(out(cmd), v.Value)
					return nil
				}),
			},
			{
				Name:      "set",
				Usage:     "store a value",
				ArgsUsage: "<key> <value>",
				Action: withApp(false, func(ctx context.Context, cmd *cli.Command, a *app) error {
					argv, err := args(cmd, 2)
					if err != nil {
						return err
					}
					key, err := settings.ParseKey(argv[0])
					if err != nil {
						return err
					}
					st, err := a.settings.Set(ctx, key, argv[1], sourceCLI)
					if err != nil {
						return err
					}
					fmt.Fprintf(out(cmd), "%s = %s\n", st.Key, st.Value)
					return nil
				}),
			},
			{
				Name:      "reset",
				Usage:     "delete a stored value so the default applies",
				ArgsUsage: "<key>",
				Action: withApp(false, func(ctx context.Context, cmd *cli.Command, a *app) error {
					argv, err := args(cmd, 1)
					if err != nil {
						return err
					}
					key, err := settings.ParseKey(argv[0])
					if err != nil {
						return err
					}
					removed, err := a.settings.Reset(ctx, key, sourceCLI)
					if err != nil {
						return err
					}
					def, _ := a.settings.Default(key)
					if !removed {
						fmt.Fprintf(out(cmd), "%s was not set (default %q)\n", key, def)
						return nil
					}
					fmt.Fprintf(out(cmd), "%s reset to default %q\n", key, def)
					return nil
				}),
			},
		},
	}
}

// ─── audit ─────────────────────────────────────────────────────────

func auditCommand() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "list audit log entries, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "action", Usage: "filter by action (update, reset, migrate)"},
			&cli.StringFlag{Name: "entity-type", Usage: "filter by entity type (setting, schema)"},
			&cli.StringFlag{Name: "entity-id", Usage: "filter by entity ID"},
			&cli.IntFlag{Name: "limit", Value: audit.DefaultLimit, Usage: "page size (max 200)"},
			&cli.IntFlag{Name: "offset", Usage: "pagination offset"},
			&cli.BoolFlag{Name: "json", Usage: "print JSON instead of a table"},
		},
		Action: withApp(false, func(ctx context.Context, cmd *cli.Command, a *app) error {
			res, err := a.audit.List(ctx, audit.Filter{
				Action:     cmd.String("action"),
				EntityType: cmd.String("entity-type"),
				EntityID:   cmd.String("entity-id"),
				Limit:      int(cmd.Int("limit")),
				Offset:     int(cmd.Int("offset")),
			})
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				return writeJSON(out(cmd), res)
			}

			tw := tabwriter.NewWriter(out(cmd), 0, 0, 2, ' ', 0)
			for _, l := range res.Logs {
				details := ""
				if l.Details != nil {
					b, _ := json.Marshal(l.Details) //nolint:errcheck // map decoded from JSON re-encodes
					details = string(b)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s/%s\t%s\t%s\n",
					l.CreatedAt.Format(time.RFC3339), l.Action, l.EntityType, l.EntityID, l.Source, details)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "%d of %d entries\n", len(res.Logs), res.Total)
			return nil
		}),
	}
}

// ─── watch ─────────────────────────────────────────────────────────

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "print database operation and setting events from MQTT until interrupted",
		Action: withApp(false, func(ctx context.Context, cmd *cli.Command, a *app) error {
			if !a.cfg.MQTT.Enabled {
				return fmt.Errorf("watch requires mqtt.enabled: true")
			}
			client, err := mqtt.Connect(a.cfg.MQTT)
			if err != nil {
				return fmt.Errorf("connecting to MQTT: %w", err)
			}
			defer client.Close() //nolint:errcheck // Best effort at exit

			var mu sync.Mutex
			w := out(cmd)
			show := func(topic string, payload []byte) error {
				mu.Lock()
				defer mu.Unlock()
				_, err := fmt.Fprintf(w, "%s %s\n", topic, payload)
				return err
			}

			qos := byte(a.cfg.MQTT.QoS) //nolint:gosec // validated 0-2
			topics := client.Topics()
			watched := []string{topics.AllOperations(), topics.AllSettings()}
			for _, topic := range watched {
				if err := client.Subscribe(topic, qos, show); err != nil {
					return fmt.Errorf("subscribing to %s: %w", topic, err)
				}
			}

			<-ctx.Done()
			for _, topic := range watched {
				if err := client.Unsubscribe(topic); err != nil {
					a.log.Debug("unsubscribe failed", "topic", topic, "error", err)
				}
			}
			return nil
		}),
	}
}

// ─── health ────────────────────────────────────────────────────────

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "check connectivity to the database and enabled integrations",
		Action: withApp(false, func(ctx context.Context, cmd *cli.Command, a *app) error {
			w := out(cmd)
			var failed []error

			check := func(name string, fn func(context.Context) error) {
				cctx, cancel := context.WithTimeout(ctx, healthTimeout)
				defer cancel()
				if err := fn(cctx); err != nil {
					fmt.Fprintf(w, "%s: FAIL (%v)\n", name, err)
					failed = append(failed, fmt.Errorf("%s: %w", name, err))
					return
				}
				fmt.Fprintf(w, "%s: ok\n", name)
			}

			check("database", a.db.HealthCheck)

			if a.cfg.MQTT.Enabled {
				check("mqtt", func(ctx context.Context) error {
					client, err := mqtt.Connect(a.cfg.MQTT)
					if err != nil {
						return err
					}
					defer client.Close() //nolint:errcheck // Probe connection
					return client.HealthCheck(ctx)
				})
			}
			if a.cfg.InfluxDB.Enabled {
				check("influxdb", func(ctx context.Context) error {
					client, err := influxdb.Connect(a.cfg.InfluxDB)
					if err != nil {
						return err
					}
					defer client.Close() //nolint:errcheck // Probe connection
					return client.HealthCheck(ctx)
				})
			}

			return errors.Join(failed...)
		}),
	}
}
