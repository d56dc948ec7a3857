package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"kasbon/internal/config"
	"kasbon/internal/ledger"
	"kasbon/internal/storage"
	logx "kasbon/pkg/logx"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect or clear the delivery ledger",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent deliveries, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, cfg *config.Config, st storage.Store) error {
			loc, err := location(cfg)
			if err != nil {
				return err
			}
			entries, err := ledger.New(st, logx.Nop()).Recent(ctx, historyLimit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "no deliveries recorded")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "AT\tDEBTOR\tCHANNEL\tLEVEL\tSTATUS\tREASON")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.At.In(loc).Format(time.DateTime), e.DebtorName, e.Channel, e.Level, e.Status, e.Reason)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			sent, failed := ledger.Summary(entries)
			fmt.Fprintf(out, "\n%d sent, %d failed\n", sent, failed)
			return nil
		})
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every ledger entry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, _ *config.Config, st storage.Store) error {
			if err := ledger.New(st, logx.Nop()).Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "history cleared")
			return nil
		})
	},
}

func init() {
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of entries to show (0 for all)")
	historyCmd.AddCommand(historyListCmd, historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}
