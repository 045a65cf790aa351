package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/pm8sim/internal/api"
	"github.com/nerrad567/pm8sim/internal/bridges/modbus"
	"github.com/nerrad567/pm8sim/internal/device"
	"github.com/nerrad567/pm8sim/internal/infrastructure/config"
	"github.com/nerrad567/pm8sim/internal/infrastructure/logging"
	"github.com/nerrad567/pm8sim/internal/infrastructure/mqtt"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the simulated PM8 as a Modbus RTU slave.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
}

// runServe runs the simulator until ctx is cancelled.
//
// Parameters:
//   - ctx: Cancelled on shutdown signal
//   - cfg: Validated configuration
//   - out: Receives the startup banner
//
// Returns:
//   - error: nil on clean shutdown, or the first startup failure
func runServe(ctx context.Context, cfg *config.Config, out io.Writer) error {
	log := logging.New(cfg.Logging, version)
	log.Info("starting pm8sim simulator", "version", version, "commit", commit, "build_date", date)

	state := device.NewState(device.Values{
		ProcessValue: cfg.Simulator.InitialPV,
		Setpoint:     cfg.Simulator.InitialSetpoint,
		Ambient:      cfg.Simulator.Ambient,
	})
	handler := device.NewHandler(state, device.DefaultRegisterMap())
	handler.SetLogger(log.Component("device"))

	jitter := device.NoJitter
	if cfg.Simulator.Jitter {
		jitter = device.ClockJitter
	}
	updater := device.NewUpdater(state, device.UpdaterConfig{
		Interval:    cfg.Simulator.TickInterval,
		HeatingStep: cfg.Simulator.HeatingStep,
		CoolingStep: cfg.Simulator.CoolingStep,
		Deadband:    cfg.Simulator.Deadband,
		Jitter:      jitter,
	})

	printServeBanner(out, cfg.Serial, handler.Registers())

	srv := modbus.NewServer(handler, serialConfig(cfg.Serial))
	srv.SetLogger(log.Component("modbus"))
	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting Modbus server: %w", err)
	}
	defer func() {
		log.Info("closing serial port")
		srv.Close()
	}()
	log.Info("Modbus RTU server listening", "port", srv.Port(), "baud", srv.BaudRate())

	go updater.Run(ctx)

	if cfg.MQTT.Enabled {
		stop, err := startServeMQTT(ctx, cfg, srv, state, log)
		if err != nil {
			return err
		}
		defer stop()
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.API.Enabled {
		apiServer, err := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log.Component("api"),
			DeviceID: cfg.Device.ID,
			Version:  version,
			State:    state,
			Handler:  handler,
			Modbus:   srv,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := apiServer.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	<-ctx.Done()

	stats := handler.Stats()
	log.Info("shutdown signal received",
		"reads", stats.Reads,
		"writes", stats.Writes,
		"rejected", stats.Rejected,
		"exceptions", srv.Exceptions(),
		"bad_frames", srv.BadFrames(),
	)
	return nil
}

// startServeMQTT connects to the broker, starts the health reporter and
// subscribes to setpoint commands. The returned func undoes all three.
func startServeMQTT(ctx context.Context, cfg *config.Config, srv *modbus.Server, state *device.State, log *logging.Logger) (func(), error) {
	mqttClient, err := mqtt.Connect(ctx, cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", mqttClient.ClientID(),
	)

	topic := mqtt.Topics{}.DeviceSetpointCommand(cfg.Device.ID)
	if err := mqttClient.Subscribe(topic, mqttClient.QoS(), modbus.SetpointCommandHandler(srv.Handler())); err != nil {
		_ = mqttClient.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	reporter := modbus.NewHealthReporter(modbus.HealthReporterConfig{
		DeviceID:  cfg.Device.ID,
		Version:   version,
		Interval:  cfg.MQTT.HealthInterval,
		StateQoS:  mqttClient.QoS(),
		Publisher: mqttClient,
		Server:    srv,
		State:     state,
	})
	reporter.SetLogger(log.Component("health"))
	if err := reporter.PublishStarting(); err != nil {
		log.Warn("publishing starting status failed", "error", err)
	}
	reporter.Start(ctx)

	return func() {
		// No remote setpoints once shutdown has begun.
		if err := mqttClient.Unsubscribe(topic); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
			log.Warn("unsubscribing from setpoint commands failed", "topic", topic, "error", err)
		}
		reporter.Stop()
		stats := mqttClient.Stats()
		log.Info("disconnecting from MQTT",
			"published", stats.Published,
			"commands_received", stats.Received,
			"commands_rejected", stats.HandlerErrors,
		)
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}, nil
}

// printServeBanner writes the startup banner with the register list.
func printServeBanner(out io.Writer, serial config.SerialConfig, regs *device.RegisterMap) {
	fmt.Fprintln(out, "--- Watlow PM8 RTU Simulator ---")
	fmt.Fprintf(out, "Listening on: %s @ %d baud\n", serial.Port, serial.BaudRate)
	fmt.Fprintln(out, "Available Registers:")
	fmt.Fprintf(out, "  - Process Value (PV): %s\n", registerList(regs, device.QuantityProcessValue))
	fmt.Fprintf(out, "  - Setpoint (SP):     %s\n", registerList(regs, device.QuantitySetpoint))
}

// registerList formats every address of q, highest first. A float pair is
// listed once by its high word.
func registerList(regs *device.RegisterMap, q device.Quantity) string {
	var parts []string
	for _, mp := range slices.Backward(regs.Mappings()) {
		if mp.Quantity != q {
			continue
		}
		switch mp.Encoding {
		case device.EncodingScaledX10:
			parts = append(parts, fmt.Sprintf("%d (Int x10)", mp.Address))
		case device.EncodingFloat32High:
			parts = append(parts, fmt.Sprintf("%d (32-bit Float)", mp.Address))
		}
	}
	return strings.Join(parts, ", ")
}
