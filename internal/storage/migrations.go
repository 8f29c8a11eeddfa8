package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Veraticus/pricebot/internal/common"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 2

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx, Dialect) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx, d Dialect) error {
			idType := "INTEGER PRIMARY KEY AUTOINCREMENT"
			tsType := "DATETIME"
			priceType := "REAL"
			if d == DialectPostgres {
				idType = "BIGSERIAL PRIMARY KEY"
				tsType = "TIMESTAMPTZ"
				priceType = "NUMERIC(14, 4)"
			}

			queries := []string{
				fmt.Sprintf(`CREATE TABLE IF NOT EXISTS business (
					id %s,
					name TEXT UNIQUE NOT NULL,
					created_at %s NOT NULL
				)`, idType, tsType),

				fmt.Sprintf(`CREATE TABLE IF NOT EXISTS products (
					id %s,
					name TEXT UNIQUE NOT NULL,
					created_at %s NOT NULL
				)`, idType, tsType),

				fmt.Sprintf(`CREATE TABLE IF NOT EXISTS prices (
					id %s,
					product_id BIGINT NOT NULL REFERENCES products(id),
					business_id BIGINT NOT NULL REFERENCES business(id),
					price %s NOT NULL CHECK (price > 0),
					created_at %s NOT NULL
				)`, idType, priceType, tsType),
				`CREATE INDEX IF NOT EXISTS idx_prices_pair ON prices(product_id, business_id, created_at)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add case-insensitive name search indexes",
		Up: func(tx *sql.Tx, _ Dialect) error {
			queries := []string{
				`CREATE INDEX IF NOT EXISTS idx_business_name_lower ON business(LOWER(name))`,
				`CREATE INDEX IF NOT EXISTS idx_products_name_lower ON products(LOWER(name))`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
}

// SchemaVersion returns the currently applied schema version.
func (s *Storage) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	version, err := s.dialect.schemaVersion(ctx, s.db)
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Migrate brings the schema up to ExpectedSchemaVersion.
func (s *Storage) Migrate(ctx context.Context) error {
	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx, s.dialect); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if execErr := s.dialect.setSchemaVersion(tx, migration); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		common.LogInfo("Applied migration", common.Fields{
			"version":     migration.Version,
			"description": migration.Description,
			"dialect":     string(s.dialect),
		})
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
