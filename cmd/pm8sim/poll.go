package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/pm8sim/internal/bridges/modbus"
	"github.com/nerrad567/pm8sim/internal/history"
	"github.com/nerrad567/pm8sim/internal/infrastructure/config"
	"github.com/nerrad567/pm8sim/internal/infrastructure/database"
	"github.com/nerrad567/pm8sim/internal/infrastructure/influxdb"
	"github.com/nerrad567/pm8sim/internal/infrastructure/logging"
	"github.com/nerrad567/pm8sim/internal/infrastructure/mqtt"
	"github.com/nerrad567/pm8sim/internal/poller"
	"github.com/nerrad567/pm8sim/migrations"
)

// pollFunc is replaced in tests to capture the resolved config.
var pollFunc = runPoll

type pollOptions struct {
	unitID     int
	setpoint   float64
	intervalMS int
}

func newPollCmd(opts *rootOptions) *cobra.Command {
	po := &pollOptions{}

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll a PM8 and log process value and setpoint.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			po.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return pollFunc(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&po.unitID, "unit-id", "u", 1, "Modbus slave ID")
	flags.Float64Var(&po.setpoint, "set-sp", 0, "write this setpoint once before polling")
	flags.IntVarP(&po.intervalMS, "interval", "i", 1000, "poll interval in milliseconds")
	return cmd
}

func (po *pollOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	if flagChanged(cmd, "unit-id") {
		cfg.Poller.UnitID = po.unitID
	}
	if flagChanged(cmd, "set-sp") {
		sp := po.setpoint
		cfg.Poller.Setpoint = &sp
	}
	if flagChanged(cmd, "interval") {
		cfg.Poller.Interval = time.Duration(po.intervalMS) * time.Millisecond
	}
}

// runPoll connects to the device and polls until ctx is cancelled.
//
// Parameters:
//   - ctx: Cancelled on shutdown signal
//   - cfg: Validated configuration
//   - out: Receives the banner and the reading table
//   - errOut: Receives the startup write failure line
//
// Returns:
//   - error: nil on clean shutdown, or the first startup failure
func runPoll(ctx context.Context, cfg *config.Config, out, errOut io.Writer) error {
	log := logging.New(cfg.Logging, version)

	fmt.Fprintln(out, "--- Watlow PM8 Modbus Client ---")
	fmt.Fprintf(out, "Connecting to: %s @ %d baud (Slave ID: %d)\n",
		cfg.Serial.Port, cfg.Serial.BaudRate, cfg.Poller.UnitID)

	client, err := modbus.Dial(modbus.ClientConfig{
		SerialConfig: serialConfig(cfg.Serial),
		UnitID:       byte(cfg.Poller.UnitID), // #nosec G115 -- validated to 1..247
	})
	if err != nil {
		return fmt.Errorf("connecting to device: %w", err)
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			log.Error("error closing serial port", "error", closeErr)
		}
	}()

	sinks := []poller.Sink{poller.NewTableSink(out)}
	closers, extra, err := openSinks(ctx, cfg, log)
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()
	if err != nil {
		return err
	}
	sinks = append(sinks, extra...)

	p := poller.New(client, poller.Config{
		Interval: cfg.Poller.Interval,
		Setpoint: cfg.Poller.Setpoint,
		Out:      out,
		ErrOut:   errOut,
	}, sinks...)
	p.SetLogger(log.Component("poller"))

	runErr := p.Run(ctx)

	stats := p.Stats()
	log.Info("poller stopped",
		"cycles", stats.Cycles,
		"read_errors", stats.ReadErrors,
		"sink_errors", stats.SinkErrors,
	)
	return runErr
}

// openSinks connects the optional MQTT, InfluxDB and history sinks.
// Closers are returned even on error so the caller can release whatever
// was opened.
func openSinks(ctx context.Context, cfg *config.Config, log *logging.Logger) ([]func(), []poller.Sink, error) {
	var (
		closers []func()
		sinks   []poller.Sink
	)

	if cfg.MQTT.Enabled {
		mqttClient, err := mqtt.Connect(ctx, cfg.MQTT)
		if err != nil {
			return closers, nil, fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log.Component("mqtt"))
		closers = append(closers, func() {
			stats := mqttClient.Stats()
			log.Info("disconnecting from MQTT", "published", stats.Published, "publish_errors", stats.PublishErrors)
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		})
		sinks = append(sinks, poller.NewMQTTSink(mqttClient, cfg.Device.ID, mqttClient.QoS()))
		log.Info("MQTT sink enabled", "client_id", mqttClient.ClientID())
	}

	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return closers, nil, fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		closers = append(closers, func() {
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
			stats := influxClient.Stats()
			log.Info("InfluxDB sink stopped", "points", stats.Points, "write_errors", stats.WriteErrors)
		})
		sinks = append(sinks, poller.NewInfluxSink(influxClient, cfg.Device.ID))
		log.Info("InfluxDB sink enabled", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	if cfg.Database.Enabled {
		db, repo, err := openHistory(ctx, cfg.Database, log)
		if err != nil {
			return closers, nil, err
		}
		closers = append(closers, func() {
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		})
		sinks = append(sinks, poller.NewHistorySink(repo, cfg.Device.ID))
		log.Info("history sink enabled", "path", db.Path())
	}

	return closers, sinks, nil
}

// openHistory opens the database, applies migrations and prunes expired
// rows.
func openHistory(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (*database.DB, *history.SQLiteRepository, error) {
	db, err := database.Open(ctx, database.ConfigFrom(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	repo := history.NewSQLiteRepository(db.DB)
	if cfg.Retention > 0 {
		n, err := repo.Prune(ctx, cfg.Retention)
		if err != nil {
			log.Warn("pruning history failed", "error", err)
		} else if n > 0 {
			log.Info("pruned history", "rows", n, "retention", cfg.Retention)
		}
	}
	return db, repo, nil
}
