package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/allisson/asherah/internal/database"
)

// RunMigrations applies the encryption_key schema for the configured SQL driver.
// The migration set is read from <migrationsDir>/mysql or <migrationsDir>/postgresql.
// Returns nil when the schema is already up to date.
func RunMigrations(logger *slog.Logger, migrationsDir, driver, connectionString string) error {
	driver, err := database.NormalizeDriver(driver)
	if err != nil {
		return err
	}

	logger.Info("running database migrations", slog.String("driver", driver))

	subdir := "mysql"
	if driver == database.DriverPostgres {
		subdir = "postgresql"
	}
	migrationsPath := "file://" + filepath.Join(migrationsDir, subdir)

	m, err := migrate.New(migrationsPath, migrationURL(driver, connectionString))
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer closeMigrate(m, logger)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("migrations completed successfully")
	return nil
}

// migrationURL turns a database/sql connection string into a golang-migrate URL.
// MySQL DSNs carry no scheme, so one is prefixed.
func migrationURL(driver, connectionString string) string {
	if driver == database.DriverMySQL && !strings.HasPrefix(connectionString, "mysql://") {
		return "mysql://" + connectionString
	}
	return connectionString
}
