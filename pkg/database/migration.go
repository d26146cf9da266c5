// Package database connects to Postgres and applies schema migrations for
// the products catalog.
package database

import (
	"fmt"
	"os"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

// Config holds the database connection and migration settings.
type Config struct {
	DSN                 string
	MigrationFolderPath string
	// Version pins the target migration version; zero migrates to latest.
	Version uint
	// Force sets the schema version without running migrations. Used to
	// recover a dirty database.
	Force int
}

// Connect opens and pings a Postgres connection.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to postgres")
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

type migrationLogger struct {
	ectologger.Logger
}

func (l migrationLogger) Verbose() bool { return true }

func (l migrationLogger) Printf(format string, v ...any) {
	l.Infof(format, v...)
}

// MigrationService applies the products schema migrations.
type MigrationService struct {
	cfg    Config
	logger ectologger.Logger
}

func NewMigrationService(cfg Config, logger ectologger.Logger) *MigrationService {
	return &MigrationService{
		cfg:    cfg,
		logger: logger,
	}
}

// Migrate runs the pending migrations against the connected database.
func (ms *MigrationService) Migrate(db *sqlx.DB) error {
	folder := ms.resolveMigrationFolder()
	if _, err := os.Stat(folder); err != nil {
		return errors.Wrap(err, fmt.Sprintf("migration folder %s does not exist", folder))
	}

	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		ms.logger.WithError(err).Error("Failed to create postgres migration driver")
		return err
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+folder, "postgres", driver)
	if err != nil {
		ms.logger.WithError(err).Error("Failed to create migrate instance")
		return err
	}
	m.Log = migrationLogger{Logger: ms.logger}

	if ms.cfg.Force != 0 {
		if err := m.Force(ms.cfg.Force); err != nil {
			ms.logger.WithError(err).Errorf("Failed to force database to version %d", ms.cfg.Force)
			return err
		}
	}

	start := time.Now()
	if ms.cfg.Version != 0 {
		err = m.Migrate(ms.cfg.Version)
	} else {
		err = m.Up()
	}

	if err == migrate.ErrNoChange {
		ms.logger.Info("No new migrations to apply")
		return nil
	}
	if err != nil {
		version, dirty, versionErr := m.Version()
		if versionErr != nil && versionErr != migrate.ErrNilVersion {
			ms.logger.WithError(versionErr).Error("Failed to get current migration version")
		}
		ms.logger.WithError(err).Errorf("Failed to apply migrations. Database dirty=%t at version %d", dirty, version)
		return err
	}

	ms.logger.Infof("Database migrations completed in %v", time.Since(start))
	return nil
}

// resolveMigrationFolder tries the configured path as-is and then relative
// to the working directory.
func (ms *MigrationService) resolveMigrationFolder() string {
	folder := ms.cfg.MigrationFolderPath
	if _, err := os.Stat(folder); err == nil {
		return folder
	}
	wd, _ := os.Getwd()
	sep := ""
	if wd != "/" {
		sep = "/"
	}
	return wd + sep + folder
}
