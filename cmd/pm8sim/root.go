package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/pm8sim/internal/bridges/modbus"
	"github.com/nerrad567/pm8sim/internal/infrastructure/config"
)

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	port       string
	baud       int
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "pm8sim",
		Short: "Watlow PM8 Modbus RTU simulator and polling client.",
		Long: `pm8sim serves a simulated Watlow PM8 controller on a serial port ` +
			`and polls one, logging process value and setpoint readings.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "YAML config file (default $"+config.EnvConfigPath+")")
	flags.StringVarP(&opts.port, "port", "p", "", "serial port, e.g. /dev/ttyUSB0 or COM3")
	flags.IntVarP(&opts.baud, "baud", "b", 0, "baud rate (default 9600)")

	cmd.AddCommand(
		newServeCmd(opts),
		newPollCmd(opts),
		newHistoryCmd(opts),
		newDBCmd(opts),
	)
	return cmd
}

// load reads the config file and applies the shared flags on top.
// Flags only override the file when they were given.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, error) {
	path := o.configPath
	if path == "" {
		path = os.Getenv(config.EnvConfigPath)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if flagChanged(cmd, "port") {
		cfg.Serial.Port = o.port
	}
	if flagChanged(cmd, "baud") {
		cfg.Serial.BaudRate = o.baud
	}
	return cfg, nil
}

func flagChanged(cmd *cobra.Command, name string) bool {
	f := cmd.Flag(name)
	return f != nil && f.Changed
}

// serialConfig converts the serial section for the Modbus transport.
func serialConfig(cfg config.SerialConfig) modbus.SerialConfig {
	return modbus.SerialConfig{
		Port:     cfg.Port,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  cfg.Timeout,
	}
}
