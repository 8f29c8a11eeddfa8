package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/pricebot/internal/common"
	"github.com/Veraticus/pricebot/internal/config"
	"github.com/Veraticus/pricebot/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

Use --status to report the current version without applying changes.`,
		RunE: runMigrate,
	}

	cmd.Flags().Bool("status", false, "Show current migration status without applying changes")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := appConfig
	status, _ := cmd.Flags().GetBool("status")

	fields := common.Fields{"driver": cfg.Database.Driver}
	if cfg.Database.Driver != config.DriverPostgres {
		fields["database"] = cfg.Database.Path
	}

	store, err := openStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	if status {
		current, err := store.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		fields["current_version"] = current
		fields["latest_version"] = storage.ExpectedSchemaVersion
		fields["up_to_date"] = current >= storage.ExpectedSchemaVersion
		common.LogInfo("📊 Database migration status", fields)
		return nil
	}

	common.LogInfo("🗄️  Running database migrations...", fields)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	common.LogInfo("✅ Database migrations completed successfully!", nil)

	return nil
}
