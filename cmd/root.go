package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/machado-saude/sector-priority/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "sector-priority",
	Short: "Vaccination priority ranking of census sectors",
	Long: "Loads a census sector mesh, SRAG case notifications and vaccine coverage, " +
		"scores each sector by risk population, mean incidence and vulnerability, and ranks them.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return cfg.ValidateShape()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
