package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"kasbon/internal/config"
	"kasbon/internal/storage"
	logx "kasbon/pkg/logx"
)

var (
	cfgFile string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:           "kasbonctl",
	Short:         "Inspect and edit kasbon reminder state",
	Long:          `kasbonctl reads the daemon config, opens the same store and edits the reminder schedule, run state and delivery history offline.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "./config.yaml", "daemon config file (json or yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file with KASBON_* secrets")
}

// loadConfig reads the daemon config including env secrets.
func loadConfig() (*config.Config, error) {
	if err := config.LoadEnv(envFile); err != nil {
		return nil, err
	}
	return config.NewConfigManager(cfgFile).Load()
}

// openStore opens the durable store named by the config. An in-memory store
// would be empty, so it is refused.
func openStore() (*config.Config, storage.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Storage == nil {
		return nil, nil, errors.New("config has no storage section; nothing to manage")
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	switch driver {
	case "", "none", "memory", "mem":
		return nil, nil, fmt.Errorf("storage driver %q is not durable; nothing to manage", cfg.Storage.Driver)
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second)
	if err != nil {
		return nil, nil, err
	}
	st, err := storage.Open(storage.Config{Driver: driver, Path: cfg.Storage.Path, BusyTimeout: busy}, logx.Nop())
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}

// withStore runs fn against the configured store and closes it afterwards.
func withStore(fn func(ctx context.Context, cfg *config.Config, st storage.Store) error) error {
	cfg, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return fn(ctx, cfg, st)
}

func location(cfg *config.Config) (*time.Location, error) {
	tz := strings.TrimSpace(cfg.Engine.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

func main() {
	Execute()
}
