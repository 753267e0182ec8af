package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"linehaul/config"
	"linehaul/logging"
	"linehaul/store"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "linehaul",
	Short:         "Linehaul dispatch service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "linehaul.yaml", "path to config file")
	rootCmd.AddCommand(serveCmd, generateCmd, migrateCmd, sealCmd, versionCmd)
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	return cfg, logging.New(cfg.Logging), nil
}

func openStore(cfg *config.Config, log zerolog.Logger) (*store.DB, error) {
	db, err := store.Open(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	log.Info().Str("driver", cfg.Database.Driver).Msg("database open")
	return db, nil
}
