package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"kasbon/internal/config"
	"kasbon/internal/debtors"
	"kasbon/internal/reminder"
	logx "kasbon/pkg/logx"
)

var debtorsAll bool

var debtorsCmd = &cobra.Command{
	Use:   "debtors",
	Short: "List the debtors the next firing would remind, with their escalation level",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		timeout, err := config.ParseDurationOrDefault("debtors.timeout", cfg.Debtors.Timeout, 30*time.Second)
		if err != nil {
			return err
		}
		d := cfg.Debtors
		src, err := debtors.Open(ctx, debtors.Config{Driver: d.Driver, Path: d.Path, URL: d.URL, Token: d.Token, DSN: d.DSN, Timeout: timeout}, logx.Nop())
		if err != nil {
			return err
		}
		defer debtors.Close(src)

		list, err := src.Snapshot(ctx)
		if err != nil {
			return err
		}
		now := time.Now()
		if !debtorsAll {
			elig := reminder.Eligibility{}
			if cfg.Reminder != nil {
				elig = cfg.Reminder.Eligibility
			}
			list = reminder.Eligible(list, elig, now)
		}

		policy := reminder.DefaultEscalationPolicy()
		if cfg.Engine.WarningAfterDays > 0 {
			policy.WarningAfterDays = cfg.Engine.WarningAfterDays
		}
		if cfg.Engine.CriticalAfterDays > 0 {
			policy.CriticalAfterDays = cfg.Engine.CriticalAfterDays
		}
		renderer := reminder.NewRenderer(cfg.Engine.Locale, cfg.Engine.CurrencyPrefix)

		out := cmd.OutOrStdout()
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tBALANCE\tDAYS\tLEVEL\tCHAT")
		for _, db := range list {
			days := "-"
			if n, ok := reminder.DaysSinceLastDebt(db, now); ok {
				days = fmt.Sprint(n)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				db.ID, db.Name, renderer.FormatAmount(db.Balance), days,
				policy.ForDebtor(db, now), strings.TrimSpace(db.ChatID))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%d debtors\n", len(list))
		return nil
	},
}

func init() {
	debtorsCmd.Flags().BoolVar(&debtorsAll, "all", false, "ignore the eligibility filter")
	rootCmd.AddCommand(debtorsCmd)
}
