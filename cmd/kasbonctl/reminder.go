package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"kasbon/internal/config"
	"kasbon/internal/reminder"
	"kasbon/internal/storage"
	"kasbon/pkg/yamljson"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or replace the stored reminder configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored reminder configuration as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, _ *config.Config, st storage.Store) error {
			rc, ok, err := st.GetReminderConfig(ctx)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "no reminder configuration stored")
				return nil
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rc)
		})
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <file>",
	Short: "Validate a reminder configuration file (json or yaml) and store it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rc, err := readReminderFile(args[0])
		if err != nil {
			return err
		}
		return withStore(func(ctx context.Context, _ *config.Config, st storage.Store) error {
			if err := st.PutReminderConfig(ctx, rc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s schedule at %s (enabled=%v)\n", rc.Frequency, rc.TimeOfDay, rc.Enabled)
			return nil
		})
	},
}

// readReminderFile strictly decodes and validates a reminder configuration.
func readReminderFile(path string) (reminder.Configuration, error) {
	var rc reminder.Configuration
	b, err := os.ReadFile(path)
	if err != nil {
		return rc, err
	}
	jb, err := yamljson.ConvertFile(path, b)
	if err != nil {
		return rc, err
	}
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rc); err != nil {
		return rc, fmt.Errorf("%s: %w", path, err)
	}
	if err := rc.Validate(); err != nil {
		return rc, err
	}
	return rc, nil
}

func setEnabled(enabled bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, _ *config.Config, st storage.Store) error {
			rc, ok, err := st.GetReminderConfig(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("no reminder configuration stored; use `kasbonctl config set` first")
			}
			rc.Enabled = enabled
			if err := st.PutReminderConfig(ctx, rc); err != nil {
				return err
			}
			state := "disabled"
			if enabled {
				state = "enabled"
			}
			fmt.Fprintln(cmd.OutOrStdout(), "reminders", state)
			return nil
		})
	}
}

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Turn scheduled reminders on",
	Args:  cobra.NoArgs,
	RunE:  setEnabled(true),
}

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Turn scheduled reminders off",
	Args:  cobra.NoArgs,
	RunE:  setEnabled(false),
}

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Print the next trigger time for the stored schedule",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, cfg *config.Config, st storage.Store) error {
			loc, err := location(cfg)
			if err != nil {
				return err
			}
			rc, ok, err := st.GetReminderConfig(ctx)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "no reminder configuration stored")
				return nil
			}
			next, err := reminder.NextTrigger(rc, time.Now().In(loc))
			if err != nil {
				return err
			}
			rs, err := st.GetRunState(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "next:       %s\n", next.Format(time.RFC1123))
			if !rc.Enabled {
				fmt.Fprintln(out, "            (reminders are disabled)")
			}
			if rs.LastFiredAt != nil {
				fmt.Fprintf(out, "last fired: %s\n", rs.LastFiredAt.In(loc).Format(time.RFC1123))
			} else {
				fmt.Fprintln(out, "last fired: never")
			}
			return nil
		})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the last firing time so the next slot fires",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, _ *config.Config, st storage.Store) error {
			if err := st.ResetRunState(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "run state reset")
			return nil
		})
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd)
	rootCmd.AddCommand(configCmd, enableCmd, disableCmd, nextCmd, resetCmd)
}
