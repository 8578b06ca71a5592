// Package migrator applies embedded SQL migrations to Postgres on startup,
// so a fresh environment becomes schema-correct without a separate
// deployment step.
package migrator

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed postgres/*.sql
var migrations embed.FS

// Up applies every pending migration against postgresURL.
func Up(postgresURL string) error {
	source, err := iofs.New(migrations, "postgres")
	if err != nil {
		return fmt.Errorf("migrator: load embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, postgresURL)
	if err != nil {
		return fmt.Errorf("migrator: init: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrator: up: %w", err)
	}
	return nil
}
