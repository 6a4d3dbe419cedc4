package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/mixsig/internal/config"
	"github.com/MikeSquared-Agency/mixsig/internal/retention"
	"github.com/MikeSquared-Agency/mixsig/internal/store"
	"github.com/MikeSquared-Agency/mixsig/internal/uploads"
	"github.com/MikeSquared-Agency/mixsig/internal/vault"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete uploads past their retention window once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		setupLogging(cfg.LogLevel)

		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}
		db, err := store.New(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()

		files, err := uploads.NewFiles(cfg.UploadDir, cfg.MaxUploadBytes())
		if err != nil {
			return err
		}

		sweeper := retention.NewSweeper(db, files, cfg.RetentionSweepInterval, slog.Default())
		n, err := sweeper.SweepOnce(cmd.Context())
		cmd.Printf("deleted %d expired upload(s)\n", n)
		return err
	},
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Print a new base64 ENCRYPTION_KEY",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := vault.GenerateKey()
		if err != nil {
			return err
		}
		cmd.Println(key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(keygenCmd)
}
