package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sevaconnect-backend/pkg/config"
	"sevaconnect-backend/pkg/database"
	"sevaconnect-backend/pkg/logging"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the kv_store table in PostgreSQL",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		if cfg.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required")
		}
		logger := logging.New(cfg)

		db, err := database.NewPostgresDatabase(cfg.PostgresDSN, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Migrate(cmd.Context()); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("✅ Database initialization completed successfully")
		return nil
	},
}
