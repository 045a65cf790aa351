package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nerrad567/pm8sim/internal/history"
	"github.com/nerrad567/pm8sim/internal/infrastructure/config"
	"github.com/nerrad567/pm8sim/internal/infrastructure/logging"
	"github.com/nerrad567/pm8sim/internal/poller"
)

type historyOptions struct {
	limit    int
	deviceID string
	asJSON   bool
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	ho := &historyOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the most recent readings stored by the poller.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if cfg.Database.Path == "" {
				return fmt.Errorf("%w: database.path is required", config.ErrInvalid)
			}
			if ho.deviceID == "" {
				ho.deviceID = cfg.Device.ID
			}
			return runHistory(cmd.Context(), cfg, ho, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&ho.limit, "limit", "n", history.DefaultLimit, "number of readings to show")
	flags.StringVar(&ho.deviceID, "device", "", "device ID (default device.id from config)")
	flags.BoolVar(&ho.asJSON, "json", false, "print readings as JSON")
	return cmd
}

// runHistory prints stored readings oldest first.
func runHistory(ctx context.Context, cfg *config.Config, ho *historyOptions, out io.Writer) error {
	log := logging.New(cfg.Logging, version)

	db, repo, err := openHistory(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	entries, err := repo.Recent(ctx, ho.deviceID, ho.limit)
	if err != nil {
		return fmt.Errorf("querying history: %w", err)
	}

	if ho.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintf(out, "No readings stored for %s\n", ho.deviceID)
		return nil
	}

	table := poller.NewTableSink(out)
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		r := poller.Reading{
			Time:     e.CreatedAt,
			PVScaled: e.PVScaled,
			PVFloat:  e.PVFloat,
			SPScaled: e.SPScaled,
		}
		if err := table.Write(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
