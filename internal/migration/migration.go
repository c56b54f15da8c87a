package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	accountdomain "github.com/mhminhas/thinklab/internal/account/domain"
	apikeydomain "github.com/mhminhas/thinklab/internal/apikey/domain"
	ledgerdomain "github.com/mhminhas/thinklab/internal/ledger/domain"
	marketplacedomain "github.com/mhminhas/thinklab/internal/marketplace/domain"
	notificationdomain "github.com/mhminhas/thinklab/internal/notification/domain"
	projectdomain "github.com/mhminhas/thinklab/internal/project/domain"
	taskdomain "github.com/mhminhas/thinklab/internal/task/domain"
	"gorm.io/gorm"
)

// This migration package ensures ThinkLab is fully usable
// out of the box for local and self-hosted environments.
// All core tables are created automatically on startup.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// AutoMigrate creates the schema via GORM for non-postgres dialects.
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	return conn.AutoMigrate(
		&accountdomain.Account{},
		&ledgerdomain.ActionRecord{},
		&ledgerdomain.CreditGrant{},
		&projectdomain.Project{},
		&taskdomain.Task{},
		&marketplacedomain.Item{},
		&marketplacedomain.Purchase{},
		&notificationdomain.Notification{},
		&apikeydomain.APIKey{},
	)
}
