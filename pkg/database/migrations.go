package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/database/sqlserver"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	_ "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/ekaya-inc/ekaya-pivot/migrations"
	"github.com/ekaya-inc/ekaya-pivot/pkg/apperrors"
)

// OpenSQL opens a database/sql handle suitable for running migrations
// against the given store driver.
func OpenSQL(driver, dsn string) (*sql.DB, error) {
	var sqlDriver string
	switch driver {
	case "postgres":
		sqlDriver = "pgx"
	case "sqlite":
		sqlDriver = "sqlite"
	case "sqlserver":
		sqlDriver = "sqlserver"
	default:
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownDriver, driver)
	}
	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	return db, nil
}

// RunMigrations applies the embedded migrations for driver.
// It is idempotent and safe to call multiple times - only pending migrations will be executed.
// The migration instance takes ownership of db and closes it.
func RunMigrations(driver string, db *sql.DB, logger *zap.Logger) error {
	m, err := newMigrate(driver, db)
	if err != nil {
		return err
	}
	defer closeMigrate(m, logger)

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("No migrations to apply (database up-to-date)", zap.String("driver", driver))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	newVersion, _, _ := m.Version()
	logger.Info("Applied migrations successfully",
		zap.String("driver", driver),
		zap.Uint("version", newVersion))
	return nil
}

// MigrationVersion reports the applied schema version and dirty flag.
// A database without migrations reports version 0. Closes db.
func MigrationVersion(driver string, db *sql.DB, logger *zap.Logger) (uint, bool, error) {
	m, err := newMigrate(driver, db)
	if err != nil {
		return 0, false, err
	}
	defer closeMigrate(m, logger)

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read migration version: %w", err)
	}
	return version, dirty, nil
}

func newMigrate(driver string, db *sql.DB) (*migrate.Migrate, error) {
	var (
		instance migratedb.Driver
		err      error
	)
	switch driver {
	case "postgres":
		instance, err = postgres.WithInstance(db, &postgres.Config{})
	case "sqlite":
		instance, err = sqlite.WithInstance(db, &sqlite.Config{})
	case "sqlserver":
		instance, err = sqlserver.WithInstance(db, &sqlserver.Config{})
	default:
		_ = db.Close()
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownDriver, driver)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	src, err := openSource(driver)
	if err != nil {
		_ = instance.Close()
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driver, instance)
	if err != nil {
		_ = src.Close()
		_ = instance.Close()
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, nil
}

// openSource returns the embedded migrations for driver.
var openSource = func(driver string) (source.Driver, error) {
	return iofs.New(migrations.FS, driver)
}

func closeMigrate(m *migrate.Migrate, logger *zap.Logger) {
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		logger.Warn("Failed to close migration source", zap.Error(srcErr))
	}
	if dbErr != nil {
		logger.Warn("Failed to close migration database", zap.Error(dbErr))
	}
}
