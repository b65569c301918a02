package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clarity-dx/referral-portal/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "referral-portal",
	Short: "Referral order intake and approval portal",
	Long:  "Ingests referral order folders, extracts structured fields via OCR and Claude, supports human review, provider matching, and CRM packaging.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
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
