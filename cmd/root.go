package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bandcoach/bandcoach/internal/config"
	"github.com/bandcoach/bandcoach/internal/logging"
	"github.com/bandcoach/bandcoach/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "bandcoach",
	Short: "IELTS practice bot for Telegram",
	Long: "bandcoach runs a Telegram bot that takes learners through IELTS reading, listening,\n" +
		"speaking and writing practice, scores their answers and tracks their level.",
	SilenceUsage: true,
}

// Execute runs the CLI. ctx is cancelled on SIGINT/SIGTERM.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to config file (default ./bandcoach.yaml)")
	rootCmd.PersistentFlags().String("db", "", "Database DSN (overrides database.dsn)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(contentCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config named by --config and applies --db.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if dsn, _ := cmd.Flags().GetString("db"); dsn != "" {
		cfg.Database.DSN = dsn
		if cfg.Database.Driver == store.DriverSQLite && !strings.HasPrefix(dsn, "file:") {
			if err := store.EnsureDir(dsn); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}
	return cfg, nil
}

// openStore loads the config and opens the database.
func openStore(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	s, err := store.Open(cmd.Context(), cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return s, nil
}

func newLogger(cfg logging.Config) (*zap.Logger, error) {
	log, err := logging.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}
