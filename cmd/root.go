package cmd

import (
	"context"
	"fmt"
	"os"

	"docshare/config"
	"docshare/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "docshare",
	Short: "Shared documents with version history and magic-link sign-in",
	// With no subcommand the server starts.
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads the dotenv file, reads the configuration and starts the
// logger. Every subcommand begins here.
func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "No %s file found, using environment variables from OS\n", envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return cfg, nil
}
