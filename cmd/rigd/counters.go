package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/KevinKickass/OpenRigCore/internal/counter"
	"github.com/KevinKickass/OpenRigCore/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var countersCmd = &cobra.Command{
	Use:   "counters",
	Short: "Read or set the persisted counters while the rig is stopped",
}

var countersGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print every counter",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCounters(cmd.Context(), func(bank *counter.Bank) error {
			values := bank.Values()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "COUNTER\tVALUE\tMIN\tMAX")
			for _, d := range bank.Defs() {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", d.ID, values[d.ID], d.Min, d.Max)
			}
			return w.Flush()
		})
	},
}

var countersSetCmd = &cobra.Command{
	Use:   "set <counter> <value>",
	Short: "Set one counter, clamped to its range",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", args[1], err)
		}
		return withCounters(cmd.Context(), func(bank *counter.Bank) error {
			stored, err := bank.Set(counter.ID(args[0]), value)
			if err != nil {
				return err
			}
			if err := bank.Flush(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %d\n", args[0], stored)
			return nil
		})
	},
}

func init() {
	countersCmd.AddCommand(countersGetCmd, countersSetCmd)
}

func withCounters(ctx context.Context, fn func(*counter.Bank) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	bank, err := counter.NewBank(store, logger, counter.Defaults()...)
	if err != nil {
		return err
	}
	if err := bank.Load(ctx); err != nil {
		return err
	}
	logger.Debug("Counters loaded", zap.String("driver", cfg.Storage.Driver))
	return fn(bank)
}
